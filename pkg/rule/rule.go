// Package rule defines the mock rule model: the per-client entries that
// decide whether an intercepted request is answered with a synthesized
// response or forwarded to the real upstream.
package rule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// PathType selects how a rule's path is compared against the inbound pathname.
type PathType string

const (
	// PathTypeLiteral compares the effective path for exact equality.
	PathTypeLiteral PathType = "literal"
	// PathTypeRegexp compiles the effective path and matches it anywhere in
	// the inbound pathname. Patterns are never implicitly anchored.
	PathTypeRegexp PathType = "regexp"
)

// ResponseType selects how a rule's response body is produced.
type ResponseType string

const (
	// ResponseTypeRaw uses the response value verbatim.
	ResponseTypeRaw ResponseType = "raw"
	// ResponseTypeMockJS expands the response value through the mockjs
	// template engine before serializing.
	ResponseTypeMockJS ResponseType = "mockjs"
)

// Rule describes one mock entry. Rules are matched in list order; the first
// rule whose host, path and params predicates all hold wins.
type Rule struct {
	// ID is assigned at the admin boundary when absent (UUID).
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Host restricts the rule to one target host when set.
	// Comparison is case-insensitive equality.
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Path is the literal path or regular expression to compare. Required.
	Path string `json:"path" yaml:"path"`

	// PathType is literal or regexp. Empty means literal.
	PathType PathType `json:"pathtype,omitempty" yaml:"pathtype,omitempty"`

	// PrePath is prepended to Path before comparing; the effective compare
	// path is PrePath + Path.
	PrePath string `json:"prepath,omitempty" yaml:"prepath,omitempty"`

	// Params lists required parameters in k=v&k=v form. Every pair must be
	// present in the target URL query or, for POST, the form-decoded body.
	Params string `json:"params,omitempty" yaml:"params,omitempty"`

	// DelayMs is artificial latency in milliseconds applied before the mock
	// response is written.
	DelayMs int `json:"delay,omitempty" yaml:"delay,omitempty"`

	// Status is the HTTP status of the synthesized response. 0 means 200.
	Status int `json:"status,omitempty" yaml:"status,omitempty"`

	// ResponseType is raw or mockjs. Empty means raw.
	ResponseType ResponseType `json:"responsetype,omitempty" yaml:"responsetype,omitempty"`

	// Response is the body to return, any JSON value. When absent the rule
	// is observation-only: it still matches (and is reported as a mock hit
	// to observers) but the request is forwarded upstream.
	Response json.RawMessage `json:"response,omitempty" yaml:"-"`

	// Unknown holds fields this version does not understand. They are
	// ignored by the engine but survive a PUT/GET round-trip.
	Unknown map[string]json.RawMessage `json:"-" yaml:"-"`
}

// knownRuleFields are the JSON keys owned by Rule itself.
var knownRuleFields = []string{
	"id", "host", "path", "pathtype", "prepath", "params",
	"delay", "status", "responsetype", "response",
}

var jsonNull = []byte("null")

// HasResponse reports whether the rule carries a response body.
// A JSON null counts as absent: the rule is then observation-only.
func (r *Rule) HasResponse() bool {
	trimmed := bytes.TrimSpace(r.Response)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, jsonNull)
}

// EffectivePath returns the path actually compared against the inbound
// pathname: PrePath + Path.
func (r *Rule) EffectivePath() string {
	return r.PrePath + r.Path
}

// EffectiveStatus returns the status of the synthesized response,
// defaulting to 200.
func (r *Rule) EffectiveStatus() int {
	if r.Status == 0 {
		return 200
	}
	return r.Status
}

// ResponseString decodes the response as a JSON string. The second return
// is false when the response is absent or not a string.
func (r *Rule) ResponseString() (string, bool) {
	if !r.HasResponse() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(r.Response, &s); err != nil {
		return "", false
	}
	return s, true
}

// Validate checks that the rule is well-formed. Regexp rules must compile with
// their prepath applied; params must parse as k=v pairs; delay must be
// non-negative and status, when set, a valid HTTP code.
func (r *Rule) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("path is required")
	}

	switch r.PathType {
	case "", PathTypeLiteral:
	case PathTypeRegexp:
		if _, err := regexp.Compile(r.EffectivePath()); err != nil {
			return fmt.Errorf("invalid regexp %q: %w", r.EffectivePath(), err)
		}
	default:
		return fmt.Errorf("unknown pathtype %q", r.PathType)
	}

	switch r.ResponseType {
	case "", ResponseTypeRaw, ResponseTypeMockJS:
	default:
		return fmt.Errorf("unknown responsetype %q", r.ResponseType)
	}

	if r.DelayMs < 0 {
		return fmt.Errorf("delay must be non-negative, got %d", r.DelayMs)
	}

	if r.Status != 0 && (r.Status < 100 || r.Status > 599) {
		return fmt.Errorf("status %d out of range", r.Status)
	}

	if r.Params != "" {
		if _, err := ParseParams(r.Params); err != nil {
			return fmt.Errorf("invalid params %q: %w", r.Params, err)
		}
	}

	return nil
}

// ParseParams parses a k=v&k=v requirement string. Keys must be non-empty;
// repeated keys keep their last value.
func ParseParams(s string) (map[string]string, error) {
	values, err := url.ParseQuery(s)
	if err != nil {
		return nil, err
	}
	pairs := make(map[string]string, len(values))
	for k, vs := range values {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("empty parameter name")
		}
		pairs[k] = vs[len(vs)-1]
	}
	return pairs, nil
}

// UnmarshalJSON decodes a rule, keeping any fields this version does not
// understand in Unknown so they round-trip.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type ruleAlias Rule
	var alias ruleAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*r = Rule(alias)

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownRuleFields {
		delete(all, k)
	}
	if len(all) > 0 {
		r.Unknown = all
	}
	return nil
}

// MarshalJSON encodes the rule, merging preserved unknown fields back in.
func (r Rule) MarshalJSON() ([]byte, error) {
	type ruleAlias Rule
	known, err := json.Marshal(ruleAlias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Unknown) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Unknown {
		if _, owned := merged[k]; !owned {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalYAML decodes a rule from YAML. The response value may be any YAML
// node; mappings and sequences are converted to their JSON encoding so the
// engine sees the same bytes regardless of the source format.
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		ID           string     `yaml:"id"`
		Host         string     `yaml:"host"`
		Path         string     `yaml:"path"`
		PathType     string     `yaml:"pathtype"`
		PrePath      string     `yaml:"prepath"`
		Params       string     `yaml:"params"`
		DelayMs      int        `yaml:"delay"`
		Status       int        `yaml:"status"`
		ResponseType string     `yaml:"responsetype"`
		Response     *yaml.Node `yaml:"response"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}

	r.ID = aux.ID
	r.Host = aux.Host
	r.Path = aux.Path
	r.PathType = PathType(aux.PathType)
	r.PrePath = aux.PrePath
	r.Params = aux.Params
	r.DelayMs = aux.DelayMs
	r.Status = aux.Status
	r.ResponseType = ResponseType(aux.ResponseType)

	if aux.Response != nil {
		var v any
		if err := aux.Response.Decode(&v); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode response as JSON: %w", err)
		}
		r.Response = raw
	}
	return nil
}

// List is an ordered sequence of rules under one client id.
type List []Rule

// Validate checks every rule and returns one error per ill-formed rule,
// prefixed with its index. An empty result means the list may be stored.
// Lists are accepted or rejected wholesale so the engine never observes a
// partially valid update.
func (l List) Validate() []error {
	var errs []error
	for i := range l {
		if err := l[i].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", i, err))
		}
	}
	return errs
}

// Clone returns a deep-enough copy for snapshot semantics: the slice is
// copied so the caller may append or reorder without affecting the original.
// Rule values themselves are never mutated after publication.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	copy(out, l)
	return out
}
