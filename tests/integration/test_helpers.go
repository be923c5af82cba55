// Package integration exercises the assembled moxy server over real TCP:
// rewrite endpoint, admin API and event stream together, not as isolated
// handlers.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/getmoxy/moxy/pkg/config"
	"github.com/getmoxy/moxy/pkg/logging"
	"github.com/getmoxy/moxy/pkg/rewrite"
)

// startServer boots a server on a free loopback port and registers cleanup.
// It returns the server and its base URL.
func startServer(t *testing.T, cfg *config.Config) (*rewrite.Server, string) {
	t.Helper()

	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.Host = "127.0.0.1"
	cfg.Port = 0

	srv := rewrite.NewServer(cfg, rewrite.WithServerLogger(logging.Nop()))
	if err := srv.LoadRules(); err != nil {
		t.Fatalf("failed to preload rules: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return srv, fmt.Sprintf("http://127.0.0.1:%d", srv.Port())
}

// putRules replaces a client's rules over the admin API and fails the test on
// a non-200 answer.
func putRules(t *testing.T, baseURL, clientID string, rules any) {
	t.Helper()

	body, err := json.Marshal(rules)
	if err != nil {
		t.Fatalf("failed to marshal rules: %v", err)
	}

	req, err := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/clients/%s/rules", baseURL, clientID), bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put rules failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("put rules returned %d: %s", resp.StatusCode, b)
	}
}

// getJSON decodes a GET response into out and returns the status code.
func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decode %s failed: %v\nbody: %s", url, err, body)
		}
	}
	return resp.StatusCode
}

// rewriteURL builds a rewrite call against the server for the given target
// and cookie string.
func rewriteURL(baseURL, target, cookie string) string {
	q := url.Values{}
	q.Set("url", target)
	if cookie != "" {
		q.Set("cookie", cookie)
	}
	return baseURL + "/api/rewrite?" + q.Encode()
}

// waitForObservers polls the status endpoint until the event stream reports
// at least n connections.
func waitForObservers(t *testing.T, baseURL string, n int) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var status struct {
			Events *struct {
				Connections int `json:"connections"`
			} `json:"events"`
		}
		getJSON(t, baseURL+"/status", &status)
		if status.Events != nil && status.Events.Connections >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("event stream never reported %d observers", n)
}
