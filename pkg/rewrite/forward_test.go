package rewrite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func testInbound(t *testing.T, method, rawURL string) *Inbound {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse %q: %v", rawURL, err)
	}
	return &Inbound{Method: method, TargetURL: u, Host: u.Host, Pathname: u.Path, Query: u.Query()}
}

func TestForwardGET(t *testing.T) {
	var gotMethod, gotCookie string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCookie = r.Header.Get("Cookie")
		w.Header().Set("X-Upstream", "yes")
		fmt.Fprint(w, "I am running!")
	}))
	defer upstream.Close()

	res, err := NewForwarder().Forward(context.Background(), testInbound(t, "GET", upstream.URL+"/api/test"))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if res.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", res.Status)
	}
	if string(res.Body) != "I am running!" {
		t.Errorf("Body = %q, want upstream body", res.Body)
	}
	if gotMethod != "GET" {
		t.Errorf("upstream saw method %q, want GET", gotMethod)
	}
	if gotCookie != "" {
		t.Errorf("upstream saw Cookie %q, want none", gotCookie)
	}
	if res.Header.Get("X-Upstream") != "yes" {
		t.Error("upstream header not relayed")
	}
}

func TestForwardSendsFilteredCookie(t *testing.T) {
	var gotCookie string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
	}))
	defer upstream.Close()

	in := testInbound(t, "GET", upstream.URL+"/api/test")
	in.UpstreamCookie = "testkey=testvalue"

	if _, err := NewForwarder().Forward(context.Background(), in); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if gotCookie != "testkey=testvalue" {
		t.Errorf("upstream saw Cookie %q, want testkey=testvalue", gotCookie)
	}
}

func TestForwardPOSTBody(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer upstream.Close()

	in := testInbound(t, "POST", upstream.URL+"/api/test")
	in.Body = []byte(`{"a":1}`)
	in.ContentType = "application/json"

	res, err := NewForwarder().Forward(context.Background(), in)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if res.Status != http.StatusCreated {
		t.Errorf("Status = %d, want 201", res.Status)
	}
	if string(gotBody) != `{"a":1}` {
		t.Errorf("upstream saw body %q", gotBody)
	}
	if gotContentType != "application/json" {
		t.Errorf("upstream saw Content-Type %q", gotContentType)
	}
}

func TestForwardRedirectLimit(t *testing.T) {
	var mux http.ServeMux
	upstream := httptest.NewServer(&mux)
	defer upstream.Close()

	hops := 0
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, upstream.URL+"/loop", http.StatusFound)
	})

	_, err := NewForwarder().Forward(context.Background(), testInbound(t, "GET", upstream.URL+"/loop"))
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Forward error = %v, want ErrUpstream", err)
	}
	if hops > MaxRedirects+1 {
		t.Errorf("followed %d hops, want at most %d", hops, MaxRedirects+1)
	}
}

func TestForwardFollowsRedirect(t *testing.T) {
	var mux http.ServeMux
	upstream := httptest.NewServer(&mux)
	defer upstream.Close()

	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, upstream.URL+"/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "moved here")
	})

	res, err := NewForwarder().Forward(context.Background(), testInbound(t, "GET", upstream.URL+"/old"))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if string(res.Body) != "moved here" {
		t.Errorf("Body = %q, want redirect target body", res.Body)
	}
}

func TestForwardConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	dead := "http://" + ln.Addr().String()
	ln.Close()

	_, err = NewForwarder().Forward(context.Background(), testInbound(t, "GET", dead+"/api/test"))
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("Forward error = %v, want ErrUpstream", err)
	}
}

func TestForwardStripsHopByHopHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Proxy-Authenticate", "Basic")
		w.Header().Set("Set-Cookie", "session=abc")
		w.Header().Set("X-Kept", "1")
	}))
	defer upstream.Close()

	res, err := NewForwarder().Forward(context.Background(), testInbound(t, "GET", upstream.URL+"/"))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if got := res.Header.Get("Proxy-Authenticate"); got != "" {
		t.Errorf("hop-by-hop header survived: %q", got)
	}
	if got := res.Header.Get("Set-Cookie"); got != "session=abc" {
		t.Errorf("Set-Cookie = %q, want preserved", got)
	}
	if got := res.Header.Get("X-Kept"); got != "1" {
		t.Errorf("X-Kept = %q, want preserved", got)
	}
}

func TestForwardContextCanceled(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer upstream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewForwarder().Forward(ctx, testInbound(t, "GET", upstream.URL+"/"))
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("Forward error = %v, want ErrUpstream", err)
	}
}
