package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okPing(context.Context) error   { return nil }
func downPing(context.Context) error { return errors.New("connection refused") }

func TestPingChecker(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, HealthStatusHealthy, PingChecker(okPing, false)(ctx).Status)

	result := PingChecker(downPing, false)(ctx)
	assert.Equal(t, HealthStatusUnhealthy, result.Status)
	assert.Equal(t, "connection refused", result.Message)

	assert.Equal(t, HealthStatusDegraded, PingChecker(downPing, true)(ctx).Status)
}

func TestHealthRegistry_Check(t *testing.T) {
	registry := NewHealthRegistry(time.Second)
	registry.Register("database", PingChecker(okPing, false))
	registry.Register("redis", PingChecker(downPing, true))

	results := registry.Check(context.Background())

	require.Len(t, results, 2)
	assert.Equal(t, HealthStatusHealthy, results["database"].Status)
	assert.Equal(t, HealthStatusDegraded, results["redis"].Status)
	assert.False(t, results["database"].Timestamp.IsZero())
	assert.Equal(t, []string{"database", "redis"}, registry.Names())
}

func TestHealthRegistry_CheckHonoursTimeout(t *testing.T) {
	registry := NewHealthRegistry(20 * time.Millisecond)
	registry.Register("slow", PingChecker(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, false))

	results := registry.Check(context.Background())

	assert.Equal(t, HealthStatusUnhealthy, results["slow"].Status)
	assert.Contains(t, results["slow"].Message, "deadline")
}

func TestOverallStatus(t *testing.T) {
	assert.Equal(t, HealthStatusHealthy, OverallStatus(nil))
	assert.Equal(t, HealthStatusDegraded, OverallStatus(map[string]HealthCheckResult{
		"a": {Status: HealthStatusHealthy},
		"b": {Status: HealthStatusDegraded},
	}))
	assert.Equal(t, HealthStatusUnhealthy, OverallStatus(map[string]HealthCheckResult{
		"a": {Status: HealthStatusDegraded},
		"b": {Status: HealthStatusUnhealthy},
	}))
}

func TestHealthRegistry_Handler(t *testing.T) {
	tests := []struct {
		name     string
		ping     Pinger
		optional bool
		code     int
		status   HealthStatus
	}{
		{"healthy", okPing, false, http.StatusOK, HealthStatusHealthy},
		{"degraded stays ready", downPing, true, http.StatusOK, HealthStatusDegraded},
		{"unhealthy", downPing, false, http.StatusServiceUnavailable, HealthStatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewHealthRegistry(time.Second)
			registry.Register("component", PingChecker(tt.ping, tt.optional))

			rec := httptest.NewRecorder()
			registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var report HealthReport
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
			assert.Equal(t, tt.status, report.Status)
			assert.Contains(t, report.Components, "component")
		})
	}
}
