package performance

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Startup benchmark verifying <2s to a healthy server.
// Uses the CLI binary for realistic numbers.
func TestStartupTime(t *testing.T) {
	port := getFreePort()

	start := time.Now()

	ts, err := StartTestServer(port)
	require.NoError(t, err, "Failed to start test server")

	startupTime := time.Since(start)
	ts.Stop()

	assert.Less(t, startupTime, 2*time.Second, "Server startup took %v, expected <2s", startupTime)

	t.Logf("Server startup time: %v", startupTime)
}

// BenchmarkServerStartup measures server startup time via the CLI.
// This is the real-world startup time users will experience.
func BenchmarkServerStartup(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		port := getFreePort()

		ts, err := StartTestServer(port)
		if err != nil {
			b.Fatalf("Failed to start server: %v", err)
		}
		ts.Stop()
	}
}

func TestStartupWithRules(t *testing.T) {
	port := getFreePort()

	ts, err := StartTestServer(port)
	require.NoError(t, err, "Failed to start test server")
	defer ts.Stop()

	// Load 100 rules across 10 clients via the admin API.
	start := time.Now()
	for c := 0; c < 10; c++ {
		rules := make([]map[string]interface{}, 10)
		for i := range rules {
			rules[i] = map[string]interface{}{
				"path":     fmt.Sprintf("/api/resource/%d", i),
				"status":   200,
				"response": map[string]interface{}{"resource": i},
			}
		}
		require.NoError(t, ts.SetRules(fmt.Sprintf("load-client-%d", c), rules),
			"Failed to load rules for client %d", c)
	}
	loadTime := time.Since(start)

	t.Logf("Loaded 100 rules in: %v", loadTime)
	assert.Less(t, loadTime, 10*time.Second, "Loading 100 rules took %v", loadTime)
}
