package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Health(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		expected   string
	}{
		{name: "no components", components: map[string]bool{}, expected: "healthy"},
		{name: "all healthy", components: map[string]bool{"store": true, "collector": true}, expected: "healthy"},
		{name: "one unhealthy", components: map[string]bool{"store": true, "collector": false}, expected: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker("1.0.0")
			for name, healthy := range tt.components {
				checker.Update(name, healthy, "msg")
			}

			health := checker.Health()
			assert.Equal(t, tt.expected, health.Status)
			assert.Len(t, health.Components, len(tt.components))
			assert.Equal(t, "1.0.0", health.Version)
		})
	}
}

func TestHealthChecker_UpdateOverrides(t *testing.T) {
	checker := NewHealthChecker("")
	checker.Update("store", true, "ok")
	checker.Update("store", false, "database closed")

	health := checker.Health()
	assert.Equal(t, "unhealthy: database closed", health.Components["store"])
}

func TestHealthChecker_Readiness(t *testing.T) {
	tests := []struct {
		name        string
		register    map[string]bool
		expected    string
		wantMessage bool
	}{
		{name: "critical ready", register: map[string]bool{"store": true}, expected: "ready"},
		{name: "critical missing", register: map[string]bool{"collector": true}, expected: "not_ready", wantMessage: true},
		{name: "critical unhealthy", register: map[string]bool{"store": false}, expected: "not_ready", wantMessage: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker("")
			for name, healthy := range tt.register {
				checker.Update(name, healthy, "")
			}

			readiness := checker.Readiness([]string{ComponentStore})
			assert.Equal(t, tt.expected, readiness.Status)
			assert.Equal(t, tt.wantMessage, readiness.Message != "")
		})
	}
}

func TestHandlers(t *testing.T) {
	healthChecker = NewHealthChecker("test")
	defer func() { healthChecker = NewHealthChecker("") }()

	mux := NewMux()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	UpdateComponent(ComponentStore, true, "")

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Version)

	UpdateComponent(ComponentCollector, false, "store unavailable")

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "anvil_graph_build_duration_seconds")
}
