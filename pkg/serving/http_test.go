package serving

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/diagnoml/platform/pkg/common/models"
	"github.com/diagnoml/platform/pkg/registry"
	"github.com/diagnoml/platform/pkg/warehouse"
)

func servingRouter(t *testing.T) (*mux.Router, *registry.MemoryStore, *warehouse.MemoryStore) {
	t.Helper()
	reg := registry.NewMemoryStore()
	records := warehouse.NewMemoryStore()
	router := mux.NewRouter()
	NewHTTPHandler(NewPredictor(reg, records, NewMemoryPredictionStore())).Register(router)
	return router, reg, records
}

func TestHandlePredict(t *testing.T) {
	router, reg, records := servingRouter(t)
	promoteModel(t, reg, 2)
	require.NoError(t, records.Append(context.Background(), servedRecord("PID-A")))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions/PID-A", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var p models.Prediction
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	require.Equal(t, models.RiskHigh, p.RiskCategory)
	require.Equal(t, 1, p.ModelVersion)

	// History is served under the same path.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/predictions/PID-A", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var history []models.Prediction
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &history))
	require.Len(t, history, 1)
}

func TestHandlePredictErrors(t *testing.T) {
	router, reg, records := servingRouter(t)

	// No production model.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/predictions/PID-A", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)

	promoteModel(t, reg, 2)

	// No minimal record for the subject.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/predictions/PID-A", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)

	require.NoError(t, records.Append(context.Background(), servedRecord("PID-A")))

	// Bad pinned version.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/predictions/PID-A?model_version=zero", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	// Unknown pinned version.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/predictions/PID-A?model_version=42", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
