package intake

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/diagnoml/platform/pkg/common/logger"
	"github.com/diagnoml/platform/pkg/common/models"
	"github.com/diagnoml/platform/pkg/dataset"
	"github.com/diagnoml/platform/pkg/pseudonym"
)

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/records", h.handleAccept).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleAccept(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var raw models.RawRecord
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		logger.Log.WithError(err).Warn("invalid intake payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := h.service.Accept(r.Context(), raw)
	if err != nil {
		switch {
		case dataset.IsValidationError(err):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case pseudonym.IsCollisionError(err):
			// Halted pending manual review; the record is not persisted.
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			logger.Log.WithError(err).Error("intake failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(rec)
}
