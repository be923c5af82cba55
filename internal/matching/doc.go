// Package matching implements the rule-matching predicates for intercepted
// requests.
//
// A rule matches when all of its predicates hold:
//
//   - Host: unset, or case-insensitively equal to the target host
//   - Path: the effective path (prepath + path) compared literally, or as a
//     regular expression found anywhere in the inbound pathname
//   - Params: every required k=v pair present in the URL query or, for POST,
//     the form-decoded body
//
// Rules are scanned in list order and the first match wins. There is no
// specificity scoring: a later, more specific rule never overrides an
// earlier match.
package matching
