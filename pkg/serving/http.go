package serving

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/diagnoml/platform/pkg/common/logger"
	"github.com/diagnoml/platform/pkg/features"
	"github.com/diagnoml/platform/pkg/warehouse"
)

type HTTPHandler struct {
	predictor *Predictor
}

func NewHTTPHandler(predictor *Predictor) *HTTPHandler {
	return &HTTPHandler{predictor: predictor}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/predictions/{pid}", h.handlePredict).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/predictions/{pid}", h.handleHistory).Methods(http.MethodGet)
}

func (h *HTTPHandler) handlePredict(w http.ResponseWriter, r *http.Request) {
	pid := mux.Vars(r)["pid"]

	version := 0
	if v := r.URL.Query().Get("model_version"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "model_version must be a positive integer", http.StatusBadRequest)
			return
		}
		version = parsed
	}

	prediction, err := h.predictor.Predict(r.Context(), pid, version)
	if err != nil {
		switch {
		case IsNotFound(err):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, warehouse.ErrRecordNotFound):
			http.Error(w, "no minimal record for pseudonym", http.StatusNotFound)
		case features.IsSchemaMismatch(err):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			logger.Log.WithError(err).Error("prediction failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(prediction)
}

func (h *HTTPHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	pid := mux.Vars(r)["pid"]

	predictions, err := h.predictor.store.ListByPID(r.Context(), pid, 50)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list predictions")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(predictions)
}
