package performance

import (
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Admin API latency verification, <100ms per call.
// Uses a CLI-started server for realistic numbers.
func TestAdminAPILatency(t *testing.T) {
	port := getFreePort()

	ts, err := StartTestServer(port)
	require.NoError(t, err, "Failed to start test server")
	defer ts.Stop()

	client := &http.Client{Timeout: 5 * time.Second}

	t.Run("Health endpoint", func(t *testing.T) {
		start := time.Now()
		resp, err := client.Get(ts.URL() + "/health")
		latency := time.Since(start)
		require.NoError(t, err)
		resp.Body.Close()

		t.Logf("Health endpoint latency: %v", latency)
		assert.Less(t, latency, 100*time.Millisecond, "Health endpoint should respond in <100ms")
	})

	t.Run("List clients endpoint", func(t *testing.T) {
		start := time.Now()
		resp, err := client.Get(ts.URL() + "/api/clients")
		latency := time.Since(start)
		require.NoError(t, err)
		resp.Body.Close()

		t.Logf("List clients latency: %v", latency)
		assert.Less(t, latency, 100*time.Millisecond, "List clients should respond in <100ms")
	})

	t.Run("Put rules endpoint", func(t *testing.T) {
		rules := []map[string]interface{}{
			{
				"path":     "/latency",
				"status":   200,
				"response": "ok",
			},
		}

		start := time.Now()
		err := ts.SetRules("latency-client", rules)
		latency := time.Since(start)
		require.NoError(t, err)

		t.Logf("Put rules latency: %v", latency)
		assert.Less(t, latency, 100*time.Millisecond, "Put rules should respond in <100ms")
	})

	t.Run("Get rules endpoint", func(t *testing.T) {
		start := time.Now()
		resp, err := client.Get(ts.URL() + "/api/clients/latency-client/rules")
		latency := time.Since(start)
		require.NoError(t, err)
		resp.Body.Close()

		t.Logf("Get rules latency: %v", latency)
		assert.Less(t, latency, 100*time.Millisecond, "Get rules should respond in <100ms")
	})

	t.Run("Delete rules endpoint", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, ts.URL()+"/api/clients/latency-client/rules", nil)

		start := time.Now()
		resp, err := client.Do(req)
		latency := time.Since(start)
		require.NoError(t, err)
		resp.Body.Close()

		t.Logf("Delete rules latency: %v", latency)
		assert.Less(t, latency, 100*time.Millisecond, "Delete rules should respond in <100ms")
	})
}

func BenchmarkAdminAPIHealth(b *testing.B) {
	port := getFreePort()

	ts, err := StartTestServer(port)
	if err != nil {
		b.Fatalf("Failed to start test server: %v", err)
	}
	defer ts.Stop()

	client := &http.Client{}
	url := ts.URL() + "/health"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := client.Get(url)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}
}

func BenchmarkAdminAPIListClients(b *testing.B) {
	port := getFreePort()

	ts, err := StartTestServer(port)
	if err != nil {
		b.Fatalf("Failed to start test server: %v", err)
	}
	defer ts.Stop()

	// Seed 50 clients so the listing has something to aggregate.
	for i := 0; i < 50; i++ {
		rules := []map[string]interface{}{
			{
				"path":     fmt.Sprintf("/api/%d", i),
				"status":   200,
				"response": "ok",
			},
		}
		if err := ts.SetRules(fmt.Sprintf("client-%d", i), rules); err != nil {
			b.Fatalf("Failed to seed client %d: %v", i, err)
		}
	}

	client := &http.Client{}
	url := ts.URL() + "/api/clients"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		resp, err := client.Get(url)
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}
}

// Average latency over repeated health probes.
func TestAdminAPIAverageLatency(t *testing.T) {
	port := getFreePort()

	ts, err := StartTestServer(port)
	require.NoError(t, err, "Failed to start test server")
	defer ts.Stop()

	client := &http.Client{Timeout: 5 * time.Second}
	numRequests := 100

	var totalLatency time.Duration

	for i := 0; i < numRequests; i++ {
		start := time.Now()
		resp, err := client.Get(ts.URL() + "/health")
		latency := time.Since(start)
		require.NoError(t, err)
		resp.Body.Close()
		totalLatency += latency
	}

	avgLatency := totalLatency / time.Duration(numRequests)
	t.Logf("Average latency over %d requests: %v", numRequests, avgLatency)

	assert.Less(t, avgLatency, 100*time.Millisecond, "Average latency should be <100ms")
}
