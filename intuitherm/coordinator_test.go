package intuitherm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusHandler serves the three status endpoints, failing the ones named
// in fail with HTTP 500.
func statusHandler(fail map[string]bool) http.Handler {
	payloads := map[string]string{
		EndpointHealth:        `{"status": "healthy"}`,
		EndpointControlStatus: `{"auto_control_enabled": true}`,
		EndpointMetrics:       `{"solar_kwh": 4.2}`,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail[r.URL.Path] {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		payload, ok := payloads[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(payload))
	})
}

func TestRefresh_PartialFailureCombinations(t *testing.T) {
	// The cycle must survive every combination of the three fetches
	// failing, with exactly the failing fields absent.
	for i := 0; i < 8; i++ {
		healthFails := i&1 != 0
		controlFails := i&2 != 0
		metricsFails := i&4 != 0

		name := fmt.Sprintf("health=%v_control=%v_metrics=%v", healthFails, controlFails, metricsFails)
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(statusHandler(map[string]bool{
				EndpointHealth:        healthFails,
				EndpointControlStatus: controlFails,
				EndpointMetrics:       metricsFails,
			}))
			defer server.Close()

			coordinator := NewCoordinator(NewClient(server.URL, "key"), nil, SensorConfig{})
			snapshot, err := coordinator.Refresh(context.Background())

			require.NoError(t, err, "partial failures must never fail the cycle")
			require.NotNil(t, snapshot)
			assert.NotEmpty(t, snapshot.LastUpdate)

			assert.Equal(t, healthFails, snapshot.Health == nil)
			assert.Equal(t, controlFails, snapshot.Control == nil)
			assert.Equal(t, metricsFails, snapshot.Metrics == nil)

			if !healthFails {
				assert.Equal(t, "healthy", snapshot.Health["status"])
			}
			if !controlFails {
				assert.Equal(t, true, snapshot.Control["auto_control_enabled"])
			}
			if !metricsFails {
				assert.Equal(t, 4.2, snapshot.Metrics["solar_kwh"])
			}
		})
	}
}

func TestRefresh_MetricsQueryWindow(t *testing.T) {
	var mu sync.Mutex
	var metricsQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == EndpointMetrics {
			mu.Lock()
			metricsQuery = r.URL.RawQuery
			mu.Unlock()
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	coordinator := NewCoordinator(NewClient(server.URL, "key"), nil, SensorConfig{})
	_, err := coordinator.Refresh(context.Background())

	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "period_hours=1", metricsQuery)
}

func TestRefresh_TimeoutFailsCycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	coordinator := NewCoordinator(NewClient(server.URL, "key"), nil, SensorConfig{})
	coordinator.timeout = 50 * time.Millisecond

	snapshot, err := coordinator.Refresh(context.Background())

	require.Error(t, err)
	assert.Nil(t, snapshot, "a timed-out cycle must not produce a snapshot")
	assert.Contains(t, err.Error(), "timeout")
}

func TestRefresh_SnapshotReplacedNotMerged(t *testing.T) {
	var mu sync.Mutex
	healthUp := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		up := healthUp
		mu.Unlock()
		if r.URL.Path == EndpointHealth && !up {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status": "healthy"}`))
	}))
	defer server.Close()

	coordinator := NewCoordinator(NewClient(server.URL, "key"), nil, SensorConfig{})

	first, err := coordinator.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first.Health)

	mu.Lock()
	healthUp = false
	mu.Unlock()

	second, err := coordinator.Refresh(context.Background())
	require.NoError(t, err)
	assert.Nil(t, second.Health, "cycle N must not inherit fields from cycle N-1")
	assert.NotNil(t, first.Health, "the published snapshot is immutable")
}

func TestRefresh_RegistersSensorsOnce(t *testing.T) {
	server := httptest.NewServer(statusHandler(nil))
	defer server.Close()

	client := NewClient(server.URL, "key")
	forwarder := NewForwarder(client, stubStates{})
	coordinator := NewCoordinator(client, forwarder, SensorConfig{})

	assert.False(t, coordinator.registered)

	_, err := coordinator.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, coordinator.registered)

	_, err = coordinator.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, coordinator.registered)
}

func TestOverride_Success(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, EndpointControlOverride, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"message": "ok"}`))
	}))
	defer server.Close()

	coordinator := NewCoordinator(NewClient(server.URL, "key"), nil, SensorConfig{})

	power := 5.0
	duration := 30
	result := coordinator.Override(context.Background(), "charge", &power, &duration)

	assert.False(t, result.Failed())
	assert.Equal(t, map[string]any{"message": "ok"}, result.Payload())
	assert.Equal(t, "charge", gotBody["action"])
	assert.Equal(t, 5.0, gotBody["power_kw"])
	assert.Equal(t, 30.0, gotBody["duration_minutes"])
}

func TestOverride_OptionalFieldsOmitted(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"message": "ok"}`))
	}))
	defer server.Close()

	coordinator := NewCoordinator(NewClient(server.URL, "key"), nil, SensorConfig{})
	result := coordinator.Override(context.Background(), "idle", nil, nil)

	assert.False(t, result.Failed())
	assert.Equal(t, map[string]any{"action": "idle"}, gotBody)
}

func TestOverride_FailureShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer server.Close()

	coordinator := NewCoordinator(NewClient(server.URL, "key"), nil, SensorConfig{})

	power := 5.0
	duration := 30
	result := coordinator.Override(context.Background(), "charge", &power, &duration)

	assert.True(t, result.Failed())
	assert.NotEmpty(t, result.Detail)

	payload := result.Payload()
	assert.Equal(t, "failed", payload["status"])
	assert.NotEmpty(t, payload["detail"])
}

func TestEnableDisableAutoControl(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"message": "done"}`))
	}))
	defer server.Close()

	coordinator := NewCoordinator(NewClient(server.URL, "key"), nil, SensorConfig{})

	enabled := coordinator.EnableAutoControl(context.Background())
	disabled := coordinator.DisableAutoControl(context.Background())

	assert.False(t, enabled.Failed())
	assert.False(t, disabled.Failed())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EndpointControlEnable, EndpointControlDisable}, paths)
}

func TestCommands_NeverFailCycle(t *testing.T) {
	// Commands against an unreachable service still resolve to a result.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	coordinator := NewCoordinator(NewClient(server.URL, "key"), nil, SensorConfig{})

	assert.True(t, coordinator.Override(context.Background(), "charge", nil, nil).Failed())
	assert.True(t, coordinator.EnableAutoControl(context.Background()).Failed())
	assert.True(t, coordinator.DisableAutoControl(context.Background()).Failed())
}
