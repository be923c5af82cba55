package matching

import "regexp"

// MatchLiteralPath reports whether the inbound pathname equals the effective
// path exactly.
func MatchLiteralPath(effective, pathname string) bool {
	return effective == pathname
}

// MatchRegexpPath compiles the effective path as a regular expression and
// reports whether it matches anywhere in the inbound pathname. Patterns are
// not anchored: "(bad)?nonexist" matches "/api/nonexist". A pattern that
// fails to compile matches nothing; validation at the admin boundary keeps
// such rules out of the store.
func MatchRegexpPath(effective, pathname string) bool {
	re, err := regexp.Compile(effective)
	if err != nil {
		return false
	}
	return re.MatchString(pathname)
}

// ValidatePattern checks that a regexp path compiles.
func ValidatePattern(pattern string) error {
	_, err := regexp.Compile(pattern)
	return err
}
