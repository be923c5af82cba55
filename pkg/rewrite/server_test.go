package rewrite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmoxy/moxy/pkg/config"
	"github.com/getmoxy/moxy/pkg/events"
)

func newRunningServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	cfg.Port = 0

	srv := NewServer(cfg, WithServerVersion("test"))
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func serverURL(srv *Server) string {
	return fmt.Sprintf("http://127.0.0.1:%d", srv.Port())
}

func rewriteURL(srv *Server, target string) string {
	return serverURL(srv) + "/api/rewrite?url=" + url.QueryEscape(target) +
		"&cookie=" + url.QueryEscape("__pmid=clientid")
}

func TestServerForwardsEndToEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "upstream says hi")
	}))
	defer upstream.Close()

	srv := newRunningServer(t, nil)

	resp, err := http.Get(rewriteURL(srv, upstream.URL+"/hello"))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "upstream says hi", string(body))
}

func TestServerAdminToRewriteRoundTrip(t *testing.T) {
	srv := newRunningServer(t, nil)

	// Install a rule through the admin API.
	payload := `[{"path": "/api/users", "response": {"users": ["ann", "bob"]}}]`
	req, err := http.NewRequest(http.MethodPut,
		serverURL(srv)+"/api/clients/clientid/rules", strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	putResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	putResp.Body.Close()
	require.Equal(t, http.StatusOK, putResp.StatusCode)

	// The rule now answers through the rewrite endpoint without any upstream.
	resp, err := http.Get(rewriteURL(srv, "http://unreachable.invalid/api/users"))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"users": ["ann", "bob"]}`, string(body))

	// And the exchange shows up in the history.
	histResp, err := http.Get(serverURL(srv) + "/api/clients/clientid/history")
	require.NoError(t, err)
	histBody, err := io.ReadAll(histResp.Body)
	require.NoError(t, err)
	histResp.Body.Close()

	var hist struct {
		Count   int `json:"count"`
		Entries []struct {
			Pathname string `json:"pathname"`
			IsMock   bool   `json:"isMock"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(histBody, &hist))
	require.Equal(t, 1, hist.Count)
	assert.Equal(t, "/api/users", hist.Entries[0].Pathname)
	assert.True(t, hist.Entries[0].IsMock)
}

func TestServerPublishesEvents(t *testing.T) {
	srv := newRunningServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := fmt.Sprintf("ws://127.0.0.1:%d/api/events?clientId=clientid", srv.Port())
	conn, dialResp, err := ws.Dial(ctx, wsURL, nil)
	if dialResp != nil && dialResp.Body != nil {
		dialResp.Body.Close()
	}
	require.NoError(t, err)
	defer conn.Close(ws.StatusNormalClosure, "test done")

	// Wait until the server has registered the observer.
	deadline := time.Now().Add(2 * time.Second)
	for srv.manager.CountForClient("clientid") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.NotZero(t, srv.manager.CountForClient("clientid"))

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer upstream.Close()

	resp, err := http.Get(rewriteURL(srv, upstream.URL+"/watched"))
	require.NoError(t, err)
	resp.Body.Close()

	readEvent := func() events.Event {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var ev events.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	}

	start := readEvent()
	assert.Equal(t, events.TopicRequestStart, start.Topic)
	end := readEvent()
	assert.Equal(t, events.TopicRequestEnd, end.Topic)
}

func TestServerHealthAndStatus(t *testing.T) {
	srv := newRunningServer(t, nil)

	resp, err := http.Get(serverURL(srv) + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)

	resp, err = http.Get(serverURL(srv) + "/status")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"version":"test"`)
}

func TestServerMetricsExposed(t *testing.T) {
	srv := newRunningServer(t, nil)

	resp, err := http.Get(serverURL(srv) + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "moxy_")
}

func TestServerLoadRules(t *testing.T) {
	rulesDir := t.TempDir()
	content := `client: clientid
rules:
  - path: /api/preloaded
    response:
      loaded: true
`
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "clientid.yaml"), []byte(content), 0644))

	cfg := &config.Config{RulesDir: rulesDir}
	srv := newRunningServer(t, cfg)
	require.NoError(t, srv.LoadRules())

	rules := srv.Store().Get("clientid")
	require.Len(t, rules, 1)
	assert.NotEmpty(t, rules[0].ID)

	resp, err := http.Get(rewriteURL(srv, "http://unreachable.invalid/api/preloaded"))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.JSONEq(t, `{"loaded": true}`, string(body))
}

func TestServerLoadRules_SkipsBrokenFiles(t *testing.T) {
	rulesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "good.yaml"),
		[]byte("client: good\nrules:\n  - path: /ok\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "bad.yaml"),
		[]byte("client: bad\nrules:\n  - pathtype: bogus\n"), 0644))

	cfg := &config.Config{RulesDir: rulesDir}
	srv := newRunningServer(t, cfg)
	require.NoError(t, srv.LoadRules())

	assert.Len(t, srv.Store().Get("good"), 1)
	assert.Empty(t, srv.Store().Get("bad"))
}

func TestServerStartStopLifecycle(t *testing.T) {
	srv := NewServer(&config.Config{Port: 0})

	require.NoError(t, srv.Start())
	assert.True(t, srv.Running())
	assert.NotZero(t, srv.Port())

	// Starting again fails while running.
	assert.Error(t, srv.Start())

	require.NoError(t, srv.Stop())
	assert.False(t, srv.Running())

	// Stopping again is a no-op.
	assert.NoError(t, srv.Stop())
}
