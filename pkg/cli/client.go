package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/getmoxy/moxy/pkg/admin"
	"github.com/getmoxy/moxy/pkg/requestlog"
	"github.com/getmoxy/moxy/pkg/rule"
)

// AdminClient provides methods for communicating with the moxy admin API.
type AdminClient interface {
	// Health checks if the server is running.
	Health() error
	// Status returns server status and counters.
	Status() (*admin.StatusResponse, error)
	// ListClients returns every client id holding rules.
	ListClients() ([]admin.ClientSummary, error)
	// GetRules returns the rule list stored for a client. Unknown clients
	// yield an empty list, never an error.
	GetRules(clientID string) (rule.List, error)
	// SetRules replaces the client's rule list wholesale.
	SetRules(clientID string, rules rule.List) (*admin.RulesUpdatedResponse, error)
	// ClearRules removes the client's rule list. The bool reports whether
	// anything was stored.
	ClearRules(clientID string) (bool, error)
	// GetHistory returns recent exchange entries, newest first.
	GetHistory(clientID string, limit int) ([]*requestlog.Entry, error)
	// ClearHistory discards the client's exchange history.
	ClearHistory(clientID string) error
}

// APIError represents an error response from the admin API.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
	Details    []string
}

func (e *APIError) Error() string {
	return e.Message
}

// adminClient implements AdminClient using HTTP.
type adminClient struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures an admin client.
type ClientOption func(*adminClient)

// WithTimeout sets the HTTP timeout for the client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *adminClient) {
		c.httpClient.Timeout = timeout
	}
}

// NewAdminClient creates a new admin API client.
// The baseURL should be the server base URL (e.g., "http://localhost:4280").
func NewAdminClient(baseURL string, opts ...ClientOption) AdminClient {
	c := &adminClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks if the server is running.
func (c *adminClient) Health() error {
	resp, err := c.get("/health")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

// Status returns server status and counters.
func (c *adminClient) Status() (*admin.StatusResponse, error) {
	resp, err := c.get("/status")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var status admin.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &status, nil
}

// ListClients returns every client id holding rules.
func (c *adminClient) ListClients() ([]admin.ClientSummary, error) {
	resp, err := c.get("/api/clients")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result admin.ListClientsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return result.Clients, nil
}

// GetRules returns the rule list stored for a client.
func (c *adminClient) GetRules(clientID string) (rule.List, error) {
	resp, err := c.get("/api/clients/" + url.PathEscape(clientID) + "/rules")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result admin.RulesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return result.Rules, nil
}

// SetRules replaces the client's rule list wholesale.
func (c *adminClient) SetRules(clientID string, rules rule.List) (*admin.RulesUpdatedResponse, error) {
	body, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}

	resp, err := c.put("/api/clients/"+url.PathEscape(clientID)+"/rules", body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result admin.RulesUpdatedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// ClearRules removes the client's rule list.
func (c *adminClient) ClearRules(clientID string) (bool, error) {
	resp, err := c.delete("/api/clients/" + url.PathEscape(clientID) + "/rules")
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, c.parseError(resp)
	}

	var result admin.RulesDeletedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to parse response: %w", err)
	}
	return result.Deleted, nil
}

// GetHistory returns recent exchange entries, newest first.
func (c *adminClient) GetHistory(clientID string, limit int) ([]*requestlog.Entry, error) {
	path := "/api/clients/" + url.PathEscape(clientID) + "/history"
	if limit > 0 {
		path += "?limit=" + url.QueryEscape(fmt.Sprint(limit))
	}

	resp, err := c.get(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result admin.HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return result.Entries, nil
}

// ClearHistory discards the client's exchange history.
func (c *adminClient) ClearHistory(clientID string) error {
	resp, err := c.delete("/api/clients/" + url.PathEscape(clientID) + "/history")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return c.parseError(resp)
	}
	return nil
}

func (c *adminClient) get(path string) (*http.Response, error) {
	return c.doRequest(http.MethodGet, path, nil)
}

func (c *adminClient) put(path string, body []byte) (*http.Response, error) {
	return c.doRequest(http.MethodPut, path, body)
}

func (c *adminClient) delete(path string) (*http.Response, error) {
	return c.doRequest(http.MethodDelete, path, nil)
}

func (c *adminClient) doRequest(method, path string, body []byte) (*http.Response, error) {
	fullURL := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{
			StatusCode: 0,
			ErrorCode:  "connection_error",
			Message:    fmt.Sprintf("cannot connect to admin API at %s: %v", c.baseURL, err),
		}
	}
	return resp, nil
}

// parseError parses an error response from the API.
func (c *adminClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error   string            `json:"error"`
		Message string            `json:"message"`
		Details []json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorCode:  errResp.Error,
			Message:    errResp.Message,
			Details:    formatErrorDetails(errResp.Details),
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		ErrorCode:  "unknown_error",
		Message:    fmt.Sprintf("server returned status %d: %s", resp.StatusCode, string(body)),
	}
}

// formatErrorDetails renders validation details, which arrive either as
// {path, message} objects or as plain strings.
func formatErrorDetails(raw []json.RawMessage) []string {
	var details []string
	for _, r := range raw {
		var issue struct {
			Path    string `json:"path"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(r, &issue); err == nil && issue.Message != "" {
			if issue.Path != "" {
				details = append(details, issue.Path+": "+issue.Message)
			} else {
				details = append(details, issue.Message)
			}
			continue
		}
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			details = append(details, s)
			continue
		}
		details = append(details, string(r))
	}
	return details
}

// FormatConnectionError returns a user-friendly error message for connection failures.
func FormatConnectionError(err error) string {
	if apiErr, ok := err.(*APIError); ok && apiErr.ErrorCode == "connection_error" {
		return fmt.Sprintf(`Error: %s

Suggestions:
  • Start the server: moxy start
  • Check if the server is running on the expected port
  • Point at the right server with --admin-url`, apiErr.Message)
	}
	return err.Error()
}
