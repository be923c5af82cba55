package matching

import (
	"net/url"
	"testing"

	"github.com/getmoxy/moxy/pkg/rule"
)

func req(method, host, path, rawQuery string) *Request {
	q, _ := url.ParseQuery(rawQuery)
	return &Request{Method: method, Host: host, Path: path, Query: q}
}

func TestMatchHost(t *testing.T) {
	r := &rule.Rule{Host: "Example.COM", Path: "/api/test"}

	if !Match(r, req("GET", "example.com", "/api/test", "")) {
		t.Error("host comparison should be case-insensitive")
	}
	if Match(r, req("GET", "other.com", "/api/test", "")) {
		t.Error("different host should not match")
	}

	unset := &rule.Rule{Path: "/api/test"}
	if !Match(unset, req("GET", "anything.example", "/api/test", "")) {
		t.Error("unset host should match any host")
	}
}

func TestMatchLiteralPathExact(t *testing.T) {
	r := &rule.Rule{Path: "/api/test"}

	if !Match(r, req("GET", "h", "/api/test", "")) {
		t.Error("exact path should match")
	}
	if Match(r, req("GET", "h", "/api/test/sub", "")) {
		t.Error("literal match must not accept a prefix")
	}
	if Match(r, req("GET", "h", "/api", "")) {
		t.Error("shorter path should not match")
	}
}

func TestMatchPrePath(t *testing.T) {
	r := &rule.Rule{Path: "/test", PrePath: "/api"}

	if !Match(r, req("GET", "h", "/api/test", "")) {
		t.Error("prepath+path should match the full pathname")
	}
	if Match(r, req("GET", "h", "/test", "")) {
		t.Error("bare path should not match when prepath is set")
	}
}

func TestMatchRegexpFindAnywhere(t *testing.T) {
	r := &rule.Rule{Path: "(bad)?nonexist", PathType: rule.PathTypeRegexp}

	// Find-anywhere semantics: the pattern is not anchored.
	if !Match(r, req("GET", "h", "/api/nonexist", "")) {
		t.Error("unanchored pattern should match inside the pathname")
	}
	if !Match(r, req("GET", "h", "/api/badnonexist", "")) {
		t.Error("optional group should match")
	}
	if Match(r, req("GET", "h", "/api/exist", "")) {
		t.Error("non-matching pathname accepted")
	}
}

func TestMatchRegexpWithPrePath(t *testing.T) {
	r := &rule.Rule{Path: "/v[0-9]+/users", PrePath: "/api", PathType: rule.PathTypeRegexp}

	if !Match(r, req("GET", "h", "/api/v2/users", "")) {
		t.Error("prepath should concatenate before compiling")
	}
	if Match(r, req("GET", "h", "/v2/users", "")) {
		t.Error("pattern without prepath prefix should not match")
	}
}

func TestMatchParamsFromQuery(t *testing.T) {
	r := &rule.Rule{Path: "/api/test", Params: "a=1&b=2"}

	if Match(r, req("GET", "h", "/api/test", "a=1")) {
		t.Error("partial params should not match")
	}
	if !Match(r, req("GET", "h", "/api/test", "a=1&b=2")) {
		t.Error("all params present should match")
	}
	if Match(r, req("GET", "h", "/api/test", "a=1&b=3")) {
		t.Error("wrong value should not match")
	}
}

func TestMatchParamsFromFormBody(t *testing.T) {
	r := &rule.Rule{Path: "/api/test", Params: "a=1&b=2"}

	form, _ := url.ParseQuery("a=1&b=2")
	in := &Request{Method: "POST", Host: "h", Path: "/api/test", Query: url.Values{}, Form: form}
	if !Match(r, in) {
		t.Error("params satisfied by form body should match")
	}

	// Split across query and body.
	q, _ := url.ParseQuery("a=1")
	f, _ := url.ParseQuery("b=2")
	in = &Request{Method: "POST", Host: "h", Path: "/api/test", Query: q, Form: f}
	if !Match(r, in) {
		t.Error("params split across query and body should match")
	}
}

func TestFirstMatchOrder(t *testing.T) {
	rules := rule.List{
		{Path: "/other"},
		{Path: "/api/test", Status: 201},
		{Path: "/api/test", Status: 500},
	}

	idx := FirstMatch(rules, req("GET", "h", "/api/test", ""))
	if idx != 1 {
		t.Fatalf("FirstMatch = %d, want 1", idx)
	}

	// Order-stability: mutating rules after the winner must not change the
	// selection.
	rules[2].Path = "/api/.*"
	rules[2].PathType = rule.PathTypeRegexp
	if got := FirstMatch(rules, req("GET", "h", "/api/test", "")); got != 1 {
		t.Errorf("FirstMatch = %d after reshuffle, want 1", got)
	}
}

func TestFirstMatchNone(t *testing.T) {
	rules := rule.List{{Path: "/a"}, {Path: "/b"}}
	if got := FirstMatch(rules, req("GET", "h", "/c", "")); got != -1 {
		t.Errorf("FirstMatch = %d, want -1", got)
	}
	if got := FirstMatch(nil, req("GET", "h", "/c", "")); got != -1 {
		t.Errorf("FirstMatch on nil list = %d, want -1", got)
	}
}

func TestMatchAllPredicatesTogether(t *testing.T) {
	r := &rule.Rule{
		Host:     "h",
		Path:     "/test",
		PrePath:  "/api",
		Params:   "a=1&b=2",
		PathType: rule.PathTypeLiteral,
	}

	if Match(r, req("GET", "h", "/api/test", "a=1")) {
		t.Error("unmet params should fail the whole rule")
	}
	if !Match(r, req("GET", "h", "/api/test", "a=1&b=2")) {
		t.Error("all predicates satisfied should match")
	}
	if Match(r, req("GET", "other", "/api/test", "a=1&b=2")) {
		t.Error("host mismatch should fail the whole rule")
	}
}
