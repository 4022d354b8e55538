package labmock

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/lab/tests", h.listTests).Methods("GET")
	r.HandleFunc("/api/v1/lab/results/{test_type}", h.getResult).Methods("GET")
}

func (h *Handler) listTests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"tests": ReferenceRanges})
}

func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	testType := mux.Vars(r)["test_type"]
	result, ok := h.service.Generate(testType)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown test type: " + testType})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
