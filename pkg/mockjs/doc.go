// Package mockjs expands mock templates written in the mockjs convention:
// object keys carry generation directives and string values carry
// placeholders.
//
// Key directives follow the form "name|rule", where the rule and the value
// type together select the expansion:
//
//	"msg|3":    ["x"]          three-element repetition of the array
//	"list|1":   [a, b, c]      one randomly picked element
//	"age|18-60": 0             random integer in [18, 60]
//	"price|10-99.2": 0         float with two decimal places
//	"ok|1":     true           coin-flip boolean
//	"n|+2":     100            increments by 2 per occurrence in a run
//	"sub|2":    {...}          two randomly picked properties
//
// String values may embed placeholders such as "@name lives at @ip". A string
// that consists of exactly one placeholder produces a typed value, so
// "@integer(1,6)" becomes a JSON number rather than a string.
//
// Unknown directives and placeholders fail closed: the literal key or text is
// emitted unchanged and a warning is logged. Expansion is deterministic for
// identical seeds except for clock-based placeholders (@date, @time, @now).
package mockjs
