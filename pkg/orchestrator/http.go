package orchestrator

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/diagnoml/platform/pkg/common/logger"
)

type HTTPHandler struct {
	orchestrator *Orchestrator
}

func NewHTTPHandler(o *Orchestrator) *HTTPHandler {
	return &HTTPHandler{orchestrator: o}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/orchestrator/state", h.handleState).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/orchestrator/evaluate", h.handleEvaluate).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"state": h.orchestrator.State()})
}

// handleEvaluate is the manual trigger. It runs the full cycle inline so
// the operator sees the outcome in the response.
func (h *HTTPHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	result, err := h.orchestrator.Tick(r.Context(), TriggerManual)
	if err != nil {
		if errors.Is(err, ErrEvaluationInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		logger.Log.WithError(err).Error("manual evaluation failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
