package mockjs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	mathrand "math/rand/v2"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Engine expands mockjs templates into concrete JSON values.
// A zero-seed engine draws from the process-global RNG; a seeded engine
// produces identical output for identical templates on every Generate call.
type Engine struct {
	seed   *uint64
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSeed makes every Generate call deterministic for the given seed.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		s := seed
		e.seed = &s
	}
}

// WithLogger sets the logger used to flag unsupported directives.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates a template engine.
func New(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate expands the template and returns the resulting JSON.
// The input must be a valid JSON value; strings, numbers and booleans pass
// through placeholder expansion, objects and arrays are walked recursively.
func (e *Engine) Generate(raw json.RawMessage) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("parse mockjs template: %w", err)
	}

	st := &run{logger: e.logger, counters: make(map[string]float64)}
	if e.seed != nil {
		st.rng = mathrand.New(mathrand.NewPCG(*e.seed, 0))
	}

	out := st.expandValue(v, "$")

	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode expanded template: %w", err)
	}
	return b, nil
}

// run holds the state of one Generate call: the RNG and the per-path
// increment counters consumed by "+step" directives.
type run struct {
	rng      *mathrand.Rand
	counters map[string]float64
	logger   *slog.Logger
}

// directive is a parsed "name|rule" key suffix.
// count carries the exact count or the lower range bound; max is -1 when the
// rule has no range. dmin/dmax describe the decimal-place part, -1 when absent.
type directive struct {
	step  int // >0 for the "+step" form
	count int
	max   int
	dmin  int
	dmax  int
}

var directiveRuleRe = regexp.MustCompile(`^(?:\+(\d+)|(\d+)(?:-(\d+))?(?:\.(\d+)(?:-(\d+))?)?)$`)

// parseDirective splits a key at its first "|" and parses the rule part.
// ok is false when the key has no directive; supported is false when it has
// one that this engine cannot interpret.
func parseDirective(key string) (name string, d directive, ok, supported bool) {
	idx := strings.Index(key, "|")
	if idx < 0 {
		return key, directive{}, false, false
	}
	name, rulePart := key[:idx], key[idx+1:]

	m := directiveRuleRe.FindStringSubmatch(rulePart)
	if m == nil || name == "" {
		return key, directive{}, true, false
	}

	d = directive{max: -1, dmin: -1, dmax: -1}
	if m[1] != "" {
		d.step, _ = strconv.Atoi(m[1])
		return name, d, true, true
	}
	d.count, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		d.max, _ = strconv.Atoi(m[3])
	}
	if m[4] != "" {
		d.dmin, _ = strconv.Atoi(m[4])
	}
	if m[5] != "" {
		d.dmax, _ = strconv.Atoi(m[5])
	}
	return name, d, true, true
}

// expandValue dispatches on the JSON value type.
func (st *run) expandValue(v any, path string) any {
	switch val := v.(type) {
	case map[string]any:
		return st.expandObject(val, path)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = st.expandValue(item, fmt.Sprintf("%s[%d]", path, i))
		}
		return out
	case string:
		return st.expandString(val)
	default:
		return v
	}
}

// expandObject walks keys in sorted order so seeded runs consume randomness
// in a stable sequence.
func (st *run) expandObject(obj map[string]any, path string) map[string]any {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(obj))
	for _, k := range keys {
		v := obj[k]
		name, d, hasRule, supported := parseDirective(k)

		if !hasRule {
			out[name] = st.expandValue(v, path+"."+name)
			continue
		}
		if !supported {
			st.warn("unsupported mockjs directive", "key", k)
			out[k] = v
			continue
		}
		out[name] = st.applyDirective(v, d, path+"."+name)
	}
	return out
}

// applyDirective interprets a parsed directive against the value type.
func (st *run) applyDirective(v any, d directive, path string) any {
	switch val := v.(type) {
	case string:
		return st.repeatString(val, d)
	case float64:
		return st.numberDirective(val, d, path)
	case bool:
		return st.boolDirective(val, d)
	case []any:
		return st.arrayDirective(val, d, path)
	case map[string]any:
		return st.objectDirective(val, d, path)
	default:
		// null (or anything unexpected) is returned untouched.
		return v
	}
}

// repeatString repeats the expanded string count (or min..max) times.
func (st *run) repeatString(s string, d directive) any {
	n := d.count
	if d.step > 0 {
		n = 1
	} else if d.max >= 0 {
		n = st.intRange(d.count, d.max)
	}
	expanded := stringify(st.expandString(s))
	return strings.Repeat(expanded, n)
}

// numberDirective produces incremented, ranged-integer or float values.
// The template value only matters for the "+step" form, where it seeds the
// counter.
func (st *run) numberDirective(v float64, d directive, path string) any {
	if d.step > 0 {
		return st.nextCounter(path, v, float64(d.step))
	}

	if d.dmin >= 0 {
		intPart := d.count
		if d.max >= 0 {
			intPart = st.intRange(d.count, d.max)
		}
		decimals := d.dmin
		if d.dmax >= 0 {
			decimals = st.intRange(d.dmin, d.dmax)
		}
		return st.floatWithDecimals(intPart, decimals)
	}

	if d.max >= 0 {
		return float64(st.intRange(d.count, d.max))
	}
	return float64(d.count)
}

// boolDirective flips a coin for "|1"; for "|min-max" the template value is
// kept with probability min/(min+max).
func (st *run) boolDirective(v bool, d directive) any {
	if d.step > 0 {
		return v
	}
	if d.max < 0 {
		return st.float01() < 0.5
	}
	total := d.count + d.max
	if total <= 0 {
		return v
	}
	if st.float01() < float64(d.count)/float64(total) {
		return v
	}
	return !v
}

// arrayDirective picks one element for "|1" and "|+step", otherwise repeats
// the whole array. Picked and repeated elements are expanded individually.
func (st *run) arrayDirective(arr []any, d directive, path string) any {
	if len(arr) == 0 {
		return []any{}
	}

	if d.step > 0 {
		n := st.nextCounter(path, 0, float64(d.step))
		idx := int(n) % len(arr)
		return st.expandValue(arr[idx], fmt.Sprintf("%s[%d]", path, idx))
	}

	if d.count == 1 && d.max < 0 {
		idx := st.intN(len(arr))
		return st.expandValue(arr[idx], fmt.Sprintf("%s[%d]", path, idx))
	}

	n := d.count
	if d.max >= 0 {
		n = st.intRange(d.count, d.max)
	}
	out := make([]any, 0, n*len(arr))
	for rep := 0; rep < n; rep++ {
		for i, item := range arr {
			out = append(out, st.expandValue(item, fmt.Sprintf("%s[%d:%d]", path, rep, i)))
		}
	}
	return out
}

// objectDirective keeps count (or min..max) randomly chosen properties.
func (st *run) objectDirective(obj map[string]any, d directive, path string) any {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := d.count
	if d.max >= 0 {
		n = st.intRange(d.count, d.max)
	}
	if n > len(keys) {
		n = len(keys)
	}

	// Partial Fisher-Yates over the sorted keys keeps seeded runs stable.
	for i := 0; i < n; i++ {
		j := i + st.intN(len(keys)-i)
		keys[i], keys[j] = keys[j], keys[i]
	}
	picked := keys[:n]
	sort.Strings(picked)

	sub := make(map[string]any, n)
	for _, k := range picked {
		sub[k] = obj[k]
	}
	return st.expandObject(sub, path)
}

var placeholderRe = regexp.MustCompile(`@([A-Za-z][A-Za-z0-9]*)(?:\(([^)]*)\))?`)

// expandString resolves placeholders. A string that is exactly one
// placeholder yields that placeholder's typed value; otherwise every
// occurrence is replaced with its text form.
func (st *run) expandString(s string) any {
	loc := placeholderRe.FindStringIndex(s)
	if loc == nil {
		return s
	}

	if loc[0] == 0 && loc[1] == len(s) {
		m := placeholderRe.FindStringSubmatch(s)
		if v, ok := st.resolvePlaceholder(m[1], m[2]); ok {
			return v
		}
		st.warn("unknown mockjs placeholder", "placeholder", s)
		return s
	}

	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		m := placeholderRe.FindStringSubmatch(match)
		if v, ok := st.resolvePlaceholder(m[1], m[2]); ok {
			return stringify(v)
		}
		st.warn("unknown mockjs placeholder", "placeholder", match)
		return match
	})
}

var arrayIndexRe = regexp.MustCompile(`\[[^\]]*\]`)

// nextCounter returns the current value of the counter at path and advances
// it by step. The first occurrence returns the template's own value. Array
// positions are stripped from the key so every repetition of
// "list|3": [{"id|+1": 1}] advances one shared counter.
func (st *run) nextCounter(path string, initial, step float64) float64 {
	key := arrayIndexRe.ReplaceAllString(path, "")
	cur, seen := st.counters[key]
	if !seen {
		cur = initial
	}
	st.counters[key] = cur + step
	return cur
}

func (st *run) warn(msg string, args ...any) {
	if st.logger != nil {
		st.logger.Warn(msg, args...)
	}
}

// stringify renders a resolved placeholder value for embedding in a string.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
