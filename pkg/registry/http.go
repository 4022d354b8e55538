package registry

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/diagnoml/platform/pkg/common/logger"
)

// versionView hides the raw weights and encoder state from the read API;
// those are inference internals, not registry metadata.
type versionView struct {
	Version       int     `json:"version"`
	SnapshotID    string  `json:"snapshot_id"`
	SchemaHash    string  `json:"schema_hash"`
	Status        string  `json:"status"`
	ValidationAUC float64 `json:"validation_auc"`
	CreatedAt     string  `json:"created_at"`
}

type HTTPHandler struct {
	store Store
}

func NewHTTPHandler(store Store) *HTTPHandler {
	return &HTTPHandler{store: store}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/api/v1/models", h.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/models/production", h.handleProduction).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/models/{version}", h.handleGet).Methods(http.MethodGet)
}

func (h *HTTPHandler) handleList(w http.ResponseWriter, r *http.Request) {
	versions, err := h.store.List(r.Context(), 50)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list model versions")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	views := make([]versionView, 0, len(versions))
	for _, mv := range versions {
		views = append(views, toView(mv))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

func (h *HTTPHandler) handleProduction(w http.ResponseWriter, r *http.Request) {
	mv, err := h.store.Production(r.Context())
	if errors.Is(err, ErrNoProduction) {
		http.Error(w, "no production model", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to resolve production model")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toView(mv))
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(mux.Vars(r)["version"])
	if err != nil {
		http.Error(w, "version must be an integer", http.StatusBadRequest)
		return
	}
	mv, err := h.store.Get(r.Context(), version)
	if errors.Is(err, ErrModelNotFound) {
		http.Error(w, "model version not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to fetch model version")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toView(mv))
}

func toView(mv ModelVersion) versionView {
	return versionView{
		Version:       mv.Version,
		SnapshotID:    mv.SnapshotID,
		SchemaHash:    mv.SchemaHash,
		Status:        mv.Status,
		ValidationAUC: mv.Metrics.ValidationAUC,
		CreatedAt:     mv.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
