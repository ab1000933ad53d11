package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontology/internal/shared/config"
	"ontology/internal/shared/database"
	"ontology/pkg/metrics"
)

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		APIVersion: "v1",
		APIPrefix:  "/api",
		Database:   config.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:"},
		Analytics:  config.AnalyticsConfig{ClusterSeed: 1},
	}
	sqlDB, err := database.Open(cfg.Database, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(sqlDB))
	db := &database.DB{SQL: sqlDB}
	t.Cleanup(func() { _ = db.Close() })

	collector := metrics.NewCollector("ontology_routes_test")
	engine := gin.New()
	engine.Use(collector.GinMiddleware())
	NewRouter(cfg, db, collector, nil).SetupRoutes(engine)
	return engine
}

func TestHealthRoutes(t *testing.T) {
	engine := newEngine(t)

	for _, path := range []string{"/health", "/ping", "/status"} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ontology_routes_test_http_requests_total")
}

func TestAnalyticsRoundTrip(t *testing.T) {
	engine := newEngine(t)
	org := uuid.NewString()
	base := "/api/v1/organizations/" + org + "/analytics"

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, base+"/latest", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, base+"/runs", nil))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data struct {
			RunID   uuid.UUID `json:"run_id"`
			Summary struct {
				CustomerCount int `json:"customer_count"`
			} `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEqual(t, uuid.Nil, created.Data.RunID)
	assert.Zero(t, created.Data.Summary.CustomerCount)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, base+"/latest", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.Data.RunID.String())
	assert.Contains(t, w.Body.String(), `"status":"completed"`)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, base+"/runs/"+created.Data.RunID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
}
