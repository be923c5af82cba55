package rewrite

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/getmoxy/moxy/pkg/rule"
)

func TestSynthesizeRawJSON(t *testing.T) {
	r := &rule.Rule{
		Path:     "/api/nonexist",
		Status:   200,
		Response: json.RawMessage(`{"code":200,"msg":"mock response"}`),
	}

	out, err := NewSynthesizer().Synthesize(context.Background(), r, &Inbound{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if out.Status != 200 {
		t.Errorf("Status = %d, want 200", out.Status)
	}
	if !strings.HasPrefix(out.ContentType, "application/json") {
		t.Errorf("ContentType = %q, want application/json", out.ContentType)
	}
	if string(out.Body) != `{"code":200,"msg":"mock response"}` {
		t.Errorf("Body = %q, want stored response verbatim", out.Body)
	}
}

func TestSynthesizeRawStringIsPlainText(t *testing.T) {
	r := &rule.Rule{
		Path:     "/api/x",
		Response: json.RawMessage(`"plain text here"`),
	}

	out, err := NewSynthesizer().Synthesize(context.Background(), r, &Inbound{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.HasPrefix(out.ContentType, "text/plain") {
		t.Errorf("ContentType = %q, want text/plain for a string response", out.ContentType)
	}
	if string(out.Body) != "plain text here" {
		t.Errorf("Body = %q, want decoded string without quotes", out.Body)
	}
}

func TestSynthesizeStatusDefaultsAndOverrides(t *testing.T) {
	base := json.RawMessage(`{"ok":true}`)

	out, err := NewSynthesizer().Synthesize(context.Background(), &rule.Rule{Path: "/", Response: base}, &Inbound{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != 200 {
		t.Errorf("default Status = %d, want 200", out.Status)
	}

	out, err = NewSynthesizer().Synthesize(context.Background(), &rule.Rule{Path: "/", Status: 404, Response: base}, &Inbound{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != 404 {
		t.Errorf("Status = %d, want 404", out.Status)
	}
}

func TestSynthesizeMockJS(t *testing.T) {
	r := &rule.Rule{
		Path:         "/api/mock",
		ResponseType: rule.ResponseTypeMockJS,
		Response:     json.RawMessage(`{"code":200,"msg|3":["mock response"]}`),
	}

	out, err := NewSynthesizer().Synthesize(context.Background(), r, &Inbound{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	var got struct {
		Code int      `json:"code"`
		Msg  []string `json:"msg"`
	}
	if err := json.Unmarshal(out.Body, &got); err != nil {
		t.Fatalf("invalid JSON body %q: %v", out.Body, err)
	}
	if got.Code != 200 {
		t.Errorf("code = %d, want 200", got.Code)
	}
	if len(got.Msg) != 3 {
		t.Fatalf("msg has %d elements, want 3", len(got.Msg))
	}
	for _, m := range got.Msg {
		if m != "mock response" {
			t.Errorf("msg element = %q, want mock response", m)
		}
	}
}

func TestSynthesizeMockJSInvalidTemplate(t *testing.T) {
	r := &rule.Rule{
		Path:         "/api/mock",
		ResponseType: rule.ResponseTypeMockJS,
		Response:     json.RawMessage(`{broken`),
	}

	_, err := NewSynthesizer().Synthesize(context.Background(), r, &Inbound{})
	if !errors.Is(err, ErrRule) {
		t.Errorf("Synthesize error = %v, want ErrRule", err)
	}
}

func TestSynthesizeJSONPWrapsStringResponse(t *testing.T) {
	stored, err := json.Marshal(`{"code":200,"msg":"(a(b)c)"}`)
	if err != nil {
		t.Fatal(err)
	}
	r := &rule.Rule{Path: "/api/jsonp", Response: stored}
	in := &Inbound{
		ReqType: ReqTypeJSONP,
		Query:   url.Values{"callback": {"jsonp_cb"}},
	}

	out, err := NewSynthesizer().Synthesize(context.Background(), r, in)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	want := `jsonp_cb({"code":200,"msg":"(a(b)c)"})`
	if string(out.Body) != want {
		t.Errorf("Body = %q, want %q", out.Body, want)
	}
	if !strings.HasPrefix(out.ContentType, "application/javascript") {
		t.Errorf("ContentType = %q, want application/javascript", out.ContentType)
	}
}

func TestSynthesizeJSONPWrapsObjectResponse(t *testing.T) {
	r := &rule.Rule{Path: "/api/jsonp", Response: json.RawMessage(`{"ok":true}`)}
	in := &Inbound{
		ReqType: ReqTypeJSONP,
		Query:   url.Values{"callback": {"cb"}},
	}

	out, err := NewSynthesizer().Synthesize(context.Background(), r, in)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(out.Body) != `cb({"ok":true})` {
		t.Errorf("Body = %q, want cb({\"ok\":true})", out.Body)
	}
}

func TestSynthesizeJSONPWithoutCallback(t *testing.T) {
	r := &rule.Rule{Path: "/api/jsonp", Response: json.RawMessage(`{"ok":true}`)}
	in := &Inbound{ReqType: ReqTypeJSONP, Query: url.Values{}}

	out, err := NewSynthesizer().Synthesize(context.Background(), r, in)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(out.Body) != `{"ok":true}` {
		t.Errorf("Body = %q, want unwrapped body without a callback param", out.Body)
	}
}

func TestSynthesizeDelay(t *testing.T) {
	r := &rule.Rule{
		Path:     "/api/slow",
		DelayMs:  60,
		Response: json.RawMessage(`{"ok":true}`),
	}

	start := time.Now()
	if _, err := NewSynthesizer().Synthesize(context.Background(), r, &Inbound{}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("returned after %v, want at least the 60ms delay", elapsed)
	}
}

func TestSynthesizeDelayCutShortByContext(t *testing.T) {
	r := &rule.Rule{
		Path:     "/api/slow",
		DelayMs:  5000,
		Response: json.RawMessage(`{"ok":true}`),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	out, err := NewSynthesizer().Synthesize(ctx, r, &Inbound{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("returned after %v, want early return once the context ends", elapsed)
	}
	if out == nil || len(out.Body) == 0 {
		t.Error("want a synthesized body even when the delay is cut short")
	}
}
