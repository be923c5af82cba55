package matching

import (
	"net/url"
	"strings"

	"github.com/getmoxy/moxy/pkg/rule"
)

// Request carries the matcher's view of one intercepted exchange. It is
// derived from the rewrite endpoint inputs, not from the literal HTTP request
// that delivered them.
type Request struct {
	// Method is the inbound HTTP method.
	Method string
	// Host is the target URL's host (without port handling beyond what the
	// URL parser produced).
	Host string
	// Path is the target URL's pathname.
	Path string
	// Query is the parsed query of the target URL.
	Query url.Values
	// Form is the form-decoded POST body. Nil for non-POST requests and for
	// bodies that are not form-encoded.
	Form url.Values
}

// Match reports whether a single rule matches the request.
func Match(r *rule.Rule, req *Request) bool {
	if r.Host != "" && !strings.EqualFold(r.Host, req.Host) {
		return false
	}

	effective := r.EffectivePath()
	if r.PathType == rule.PathTypeRegexp {
		if !MatchRegexpPath(effective, req.Path) {
			return false
		}
	} else {
		if !MatchLiteralPath(effective, req.Path) {
			return false
		}
	}

	if r.Params != "" {
		required, err := rule.ParseParams(r.Params)
		if err != nil {
			// Unparseable params cannot be satisfied. Validation at the
			// admin boundary keeps such rules out of the store.
			return false
		}
		if !MatchParams(required, req.Query, req.Form) {
			return false
		}
	}

	return true
}

// FirstMatch scans the list in order and returns the index of the first
// matching rule, or -1 when none matches.
func FirstMatch(rules rule.List, req *Request) int {
	for i := range rules {
		if Match(&rules[i], req) {
			return i
		}
	}
	return -1
}
