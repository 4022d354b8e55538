package feedback

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/diagnoml/platform/pkg/common/logger"
	"github.com/diagnoml/platform/pkg/common/models"
	"github.com/diagnoml/platform/pkg/observability/metrics"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/feedback", h.handleSubmit).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var fb models.FeedbackRecord
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		logger.Log.WithError(err).Warn("invalid feedback payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	accepted, err := h.service.Submit(r.Context(), fb)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownPID), errors.Is(err, ErrMissingOutcomePID):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			logger.Log.WithError(err).Error("feedback submission failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	metrics.FeedbackAccepted.Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(accepted)
}
