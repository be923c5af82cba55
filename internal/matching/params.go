package matching

import "net/url"

// MatchParam reports whether the parameter is present with exactly the
// expected value in either the URL query or the form-decoded body.
func MatchParam(name, expected string, query, form url.Values) bool {
	if vs, ok := query[name]; ok && contains(vs, expected) {
		return true
	}
	if vs, ok := form[name]; ok && contains(vs, expected) {
		return true
	}
	return false
}

// MatchParams reports whether every required pair is satisfied. An empty
// requirement set always matches.
func MatchParams(required map[string]string, query, form url.Values) bool {
	for name, value := range required {
		if !MatchParam(name, value, query, form) {
			return false
		}
	}
	return true
}

func contains(vs []string, want string) bool {
	for _, v := range vs {
		if v == want {
			return true
		}
	}
	return false
}
