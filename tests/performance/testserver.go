package performance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// TestServer is a moxy server started via the CLI binary, so benchmarks
// exercise the same process users run, not an in-process shortcut.
type TestServer struct {
	Port       int
	cmd        *exec.Cmd
	binaryPath string
	workDir    string
}

var (
	buildMu    sync.Mutex
	binaryPath string
)

// ensureBinary builds the moxy binary, reusing an existing build.
func ensureBinary() (string, error) {
	buildMu.Lock()
	defer buildMu.Unlock()

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	// Navigate to project root (from tests/performance)
	projectRoot := filepath.Join(wd, "..", "..")
	binaryPath = filepath.Join(projectRoot, "moxy_bench")

	if _, err := os.Stat(binaryPath); err == nil {
		return binaryPath, nil
	}

	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/moxy")
	cmd.Dir = projectRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to build CLI: %w\n%s", err, out)
	}

	return binaryPath, nil
}

// StartTestServer starts a moxy server on the given port and returns once
// the health endpoint answers.
func StartTestServer(port int) (*TestServer, error) {
	binary, err := ensureBinary()
	if err != nil {
		return nil, err
	}

	// Isolated work directory so PID files never collide between tests.
	workDir, err := os.MkdirTemp("", "moxy-perf-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	ts := &TestServer{
		Port:       port,
		binaryPath: binary,
		workDir:    workDir,
	}

	ts.cmd = exec.Command(binary, "start",
		"--port", fmt.Sprintf("%d", port),
		"--pid-file", filepath.Join(workDir, "moxy.pid"),
		"--log-level", "error",
	)
	ts.cmd.Stdout = io.Discard
	ts.cmd.Stderr = io.Discard

	if err := ts.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	if err := ts.waitForReady(5 * time.Second); err != nil {
		ts.Stop()
		return nil, err
	}

	return ts, nil
}

// waitForReady polls the health endpoint until the server answers.
func (ts *TestServer) waitForReady(timeout time.Duration) error {
	client := &http.Client{Timeout: 1 * time.Second}
	healthURL := fmt.Sprintf("http://localhost:%d/health", ts.Port)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(healthURL)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}

// Stop terminates the server and cleans up its work directory.
func (ts *TestServer) Stop() error {
	if ts.workDir != "" {
		defer os.RemoveAll(ts.workDir)
	}

	if ts.cmd == nil || ts.cmd.Process == nil {
		return nil
	}

	// SIGTERM for graceful shutdown, SIGKILL as fallback.
	if err := ts.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		ts.cmd.Process.Kill()
	}

	done := make(chan error, 1)
	go func() {
		done <- ts.cmd.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		ts.cmd.Process.Kill()
		return fmt.Errorf("server did not stop gracefully")
	}
}

// SetRules replaces a client's rule list via the admin API.
func (ts *TestServer) SetRules(clientID string, rules interface{}) error {
	body, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d/api/clients/%s/rules", ts.Port, clientID)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to set rules: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("set rules failed with status %d: %s", resp.StatusCode, body)
	}

	return nil
}

// URL returns the server's base URL.
func (ts *TestServer) URL() string {
	return fmt.Sprintf("http://localhost:%d", ts.Port)
}

// RewriteURL builds a rewrite endpoint URL for the given target and cookie.
func (ts *TestServer) RewriteURL(target, cookie string) string {
	q := neturl.Values{}
	q.Set("url", target)
	if cookie != "" {
		q.Set("cookie", cookie)
	}
	return ts.URL() + "/api/rewrite?" + q.Encode()
}
