package performance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"testing"

	"github.com/getmoxy/moxy/internal/matching"
	"github.com/getmoxy/moxy/pkg/logging"
	"github.com/getmoxy/moxy/pkg/mockjs"
	"github.com/getmoxy/moxy/pkg/rewrite"
	"github.com/getmoxy/moxy/pkg/rule"
)

// literalRules builds n literal rules; only the last one matches /api/hit.
func literalRules(n int) rule.List {
	rules := make(rule.List, n)
	for i := 0; i < n-1; i++ {
		rules[i] = rule.Rule{Path: fmt.Sprintf("/api/miss/%d", i)}
	}
	rules[n-1] = rule.Rule{Path: "/api/hit"}
	return rules
}

// BenchmarkMatcherFirstMatch measures a full scan ending on the last rule,
// the worst case for first-match semantics.
func BenchmarkMatcherFirstMatch(b *testing.B) {
	req := &matching.Request{
		Method: "GET",
		Host:   "api.example.com",
		Path:   "/api/hit",
	}

	for _, n := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("rules_%d", n), func(b *testing.B) {
			rules := literalRules(n)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if idx := matching.FirstMatch(rules, req); idx != n-1 {
					b.Fatalf("expected match at %d, got %d", n-1, idx)
				}
			}
		})
	}
}

// BenchmarkMatcherRegexp measures regexp path rules, which compile on every
// evaluation.
func BenchmarkMatcherRegexp(b *testing.B) {
	rules := rule.List{
		{Path: `^/v1/users/\d+$`, PathType: rule.PathTypeRegexp},
		{Path: `^/v1/orders/\d+$`, PathType: rule.PathTypeRegexp},
		{Path: `/assets/.*\.js`, PathType: rule.PathTypeRegexp},
	}
	req := &matching.Request{
		Method: "GET",
		Host:   "api.example.com",
		Path:   "/assets/app/main.js",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if idx := matching.FirstMatch(rules, req); idx != 2 {
			b.Fatalf("expected match at 2, got %d", idx)
		}
	}
}

// BenchmarkMatcherParams measures rules that require query pairs.
func BenchmarkMatcherParams(b *testing.B) {
	rules := rule.List{
		{Path: "/search", Params: "type=user&active=true"},
	}
	req := &matching.Request{
		Method: "GET",
		Host:   "api.example.com",
		Path:   "/search",
		Query:  url.Values{"type": {"user"}, "active": {"true"}, "page": {"2"}},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if idx := matching.FirstMatch(rules, req); idx != 0 {
			b.Fatalf("expected match at 0, got %d", idx)
		}
	}
}

// BenchmarkMockJSGenerate measures template expansion.
func BenchmarkMockJSGenerate(b *testing.B) {
	engine := mockjs.New(mockjs.WithLogger(logging.Nop()))

	templates := map[string]string{
		"flat":   `{"name": "@name", "age|18-60": 0, "email": "@email"}`,
		"list":   `{"users|10": [{"id|+1": 1, "name": "@name"}]}`,
		"nested": `{"data": {"items|5": [{"tags|3": ["@word"], "score|1-100.2": 1}]}}`,
	}

	for name, tmpl := range templates {
		b.Run(name, func(b *testing.B) {
			raw := json.RawMessage(tmpl)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := engine.Generate(raw); err != nil {
					b.Fatalf("generate failed: %v", err)
				}
			}
		})
	}
}

// BenchmarkSynthesizeRaw measures response synthesis for a raw JSON rule.
func BenchmarkSynthesizeRaw(b *testing.B) {
	synth := rewrite.NewSynthesizer(rewrite.WithSynthLogger(logging.Nop()))
	r := &rule.Rule{
		Path:     "/api/users",
		Status:   200,
		Response: json.RawMessage(`{"users": ["alice", "bob"], "total": 2}`),
	}
	in := &rewrite.Inbound{
		Method:   "GET",
		Pathname: "/api/users",
		ReqType:  rewrite.ReqTypeNormal,
	}

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := synth.Synthesize(ctx, r, in); err != nil {
			b.Fatalf("synthesize failed: %v", err)
		}
	}
}

// BenchmarkSynthesizeMockJS measures synthesis through the template engine.
func BenchmarkSynthesizeMockJS(b *testing.B) {
	synth := rewrite.NewSynthesizer(rewrite.WithSynthLogger(logging.Nop()))
	r := &rule.Rule{
		Path:         "/api/users",
		Status:       200,
		ResponseType: rule.ResponseTypeMockJS,
		Response:     json.RawMessage(`{"list|5": [{"id|+1": 1, "name": "@name"}]}`),
	}
	in := &rewrite.Inbound{
		Method:   "GET",
		Pathname: "/api/users",
		ReqType:  rewrite.ReqTypeNormal,
	}

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := synth.Synthesize(ctx, r, in); err != nil {
			b.Fatalf("synthesize failed: %v", err)
		}
	}
}
