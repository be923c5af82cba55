package rewrite

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// MaxRedirects caps how many redirects the forwarder follows before the
	// exchange fails upstream.
	MaxRedirects = 5

	// DefaultUpstreamTimeout bounds one complete upstream round trip.
	DefaultUpstreamTimeout = 30 * time.Second
)

// ForwardResult is the captured upstream response. Header keeps the full
// Set-Cookie list intact; Body is raw bytes and need not be JSON.
type ForwardResult struct {
	Status int
	Header http.Header
	Body   []byte
}

// Forwarder replays inbound requests against their real target.
type Forwarder struct {
	client  *http.Client
	maxBody int64
	logger  *slog.Logger
}

// ForwarderOption configures a Forwarder.
type ForwarderOption func(*Forwarder)

// WithForwardTimeout bounds the upstream round trip.
func WithForwardTimeout(d time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		f.client.Timeout = d
	}
}

// WithForwardLogger sets the forwarder's logger.
func WithForwardLogger(logger *slog.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithMaxResponseSize caps how much of the upstream body is captured.
func WithMaxResponseSize(n int64) ForwarderOption {
	return func(f *Forwarder) {
		f.maxBody = n
	}
}

// NewForwarder creates a forwarder that follows up to MaxRedirects redirects
// and keeps platform-default TLS verification.
func NewForwarder(opts ...ForwarderOption) *Forwarder {
	f := &Forwarder{
		client: &http.Client{
			Timeout: DefaultUpstreamTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= MaxRedirects {
					return fmt.Errorf("stopped after %d redirects", MaxRedirects)
				}
				return nil
			},
		},
		maxBody: DefaultMaxBodySize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward replays the inbound request upstream: same method, the impersonated
// cookie (minus the client-id pair), and the tunneled body with its declared
// Content-Type. Failures wrap ErrUpstream.
func (f *Forwarder) Forward(ctx context.Context, in *Inbound) (*ForwardResult, error) {
	var body io.Reader
	if len(in.Body) > 0 {
		body = bytes.NewReader(in.Body)
	}

	req, err := http.NewRequestWithContext(ctx, in.Method, in.TargetURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUpstream, err)
	}
	if in.UpstreamCookie != "" {
		req.Header.Set("Cookie", in.UpstreamCookie)
	}
	if len(in.Body) > 0 && in.ContentType != "" {
		req.Header.Set("Content-Type", in.ContentType)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrUpstream, err)
	}

	f.logger.Debug("forwarded upstream",
		"method", in.Method,
		"url", in.TargetURL.String(),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	header := resp.Header.Clone()
	removeHopByHopHeaders(header)

	return &ForwardResult{
		Status: resp.StatusCode,
		Header: header,
		Body:   respBody,
	}, nil
}

// removeHopByHopHeaders strips headers that describe the upstream connection
// rather than the response.
func removeHopByHopHeaders(h http.Header) {
	hopByHop := []string{
		"Connection",
		"Keep-Alive",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"Te",
		"Trailers",
		"Transfer-Encoding",
		"Upgrade",
	}
	for _, name := range hopByHop {
		h.Del(name)
	}
}
