package rewrite

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ReqType selects the response framing requested by the caller.
type ReqType string

const (
	ReqTypeNormal ReqType = "normal"
	ReqTypeJSONP  ReqType = "jsonp"
)

// DefaultMaxBodySize caps how much of the tunneled body is read (10MB).
const DefaultMaxBodySize = 10 * 1024 * 1024

// Inbound is one parsed rewrite call. TargetURL is the address the caller
// wants reached; Cookie is the cookie string to impersonate there, taken from
// the cookie query parameter and never from the caller's own Cookie header.
type Inbound struct {
	Method    string
	TargetURL *url.URL
	Host      string
	Pathname  string
	Query     url.Values
	Cookie    string
	Body      []byte
	Origin    string
	ReqType   ReqType
	ClientID  string

	// ContentType is the caller's declared body type, preserved upstream.
	ContentType string
	// Header is the caller's full header set, echoed in event payloads.
	Header http.Header
	// Form holds the form-decoded POST body for params matching.
	Form url.Values
	// Data is the parsed POST body carried in event payloads: decoded JSON
	// for JSON bodies, a flat map for form bodies, the raw text otherwise.
	Data any
	// UpstreamCookie is Cookie with the client-id pair removed.
	UpstreamCookie string
}

// ParseInbound reads one rewrite call. clientCookieName is the cookie pair
// that carries the client id. Parse failures wrap ErrBadRequest.
func ParseInbound(r *http.Request, clientCookieName string, maxBody int64) (*Inbound, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}

	q := r.URL.Query()
	rawURL := q.Get("url")
	if rawURL == "" {
		return nil, fmt.Errorf("%w: missing url parameter", ErrBadRequest)
	}
	target, err := url.Parse(rawURL)
	if err != nil || !target.IsAbs() || target.Host == "" {
		return nil, fmt.Errorf("%w: unparseable url %q", ErrBadRequest, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrBadRequest, err)
	}

	in := &Inbound{
		Method:      r.Method,
		TargetURL:   target,
		Host:        target.Host,
		Pathname:    target.Path,
		Query:       target.Query(),
		Cookie:      q.Get("cookie"),
		Body:        body,
		Origin:      r.Header.Get("Origin"),
		ReqType:     ReqTypeNormal,
		ContentType: r.Header.Get("Content-Type"),
		Header:      r.Header.Clone(),
	}
	if in.Pathname == "" {
		in.Pathname = "/"
	}
	if q.Get("reqtype") == string(ReqTypeJSONP) {
		in.ReqType = ReqTypeJSONP
	}
	in.ClientID = cookieValue(in.Cookie, clientCookieName)
	in.UpstreamCookie = withoutCookie(in.Cookie, clientCookieName)

	if r.Method == http.MethodPost {
		if err := in.parsePostBody(); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// parsePostBody interprets the tunneled POST payload. A declared JSON type
// must parse; form bodies feed both params matching and the event payload.
func (in *Inbound) parsePostBody() error {
	switch {
	case strings.Contains(in.ContentType, "json"):
		var v any
		if err := json.Unmarshal(in.Body, &v); err != nil {
			return fmt.Errorf("%w: malformed JSON body: %v", ErrBadRequest, err)
		}
		in.Data = v
	case strings.Contains(in.ContentType, "x-www-form-urlencoded"):
		form, err := url.ParseQuery(string(in.Body))
		if err != nil {
			in.Data = string(in.Body)
			return nil
		}
		in.Form = form
		data := make(map[string]string, len(form))
		for k, vs := range form {
			if len(vs) > 0 {
				data[k] = vs[0]
			}
		}
		in.Data = data
	default:
		in.Data = string(in.Body)
	}
	return nil
}

// cookieValue extracts one pair's value from a Cookie-header-formatted
// string. Missing pairs yield the empty string.
func cookieValue(cookie, name string) string {
	for _, part := range strings.Split(cookie, ";") {
		part = strings.TrimSpace(part)
		k, v, found := strings.Cut(part, "=")
		if found && k == name {
			return v
		}
	}
	return ""
}

// withoutCookie rebuilds a cookie string with the named pair removed, so the
// upstream never sees the proxy's client-id marker.
func withoutCookie(cookie, name string) string {
	parts := strings.Split(cookie, ";")
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		k, _, _ := strings.Cut(trimmed, "=")
		if k == name {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, "; ")
}
