package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/getmoxy/moxy/pkg/mockjs"
	"github.com/getmoxy/moxy/pkg/rule"
)

// Synthesized is a response produced from a matched rule. EventBody is the
// value REQUEST_END carries: the JSON value for JSON bodies, the literal text
// otherwise.
type Synthesized struct {
	Status      int
	ContentType string
	Body        []byte
	EventBody   any
}

// Synthesizer builds responses from rules that carry a response value.
type Synthesizer struct {
	engine *mockjs.Engine
	logger *slog.Logger
}

// SynthesizerOption configures a Synthesizer.
type SynthesizerOption func(*Synthesizer)

// WithSynthLogger sets the synthesizer's logger.
func WithSynthLogger(logger *slog.Logger) SynthesizerOption {
	return func(s *Synthesizer) {
		s.logger = logger
	}
}

// WithEngine replaces the template engine, e.g. with a seeded one in tests.
func WithEngine(engine *mockjs.Engine) SynthesizerOption {
	return func(s *Synthesizer) {
		s.engine = engine
	}
}

// NewSynthesizer creates a synthesizer backed by an unseeded mockjs engine.
func NewSynthesizer(opts ...SynthesizerOption) *Synthesizer {
	s := &Synthesizer{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = mockjs.New(mockjs.WithLogger(s.logger))
	}
	return s
}

// Synthesize renders the rule's response. The rule must carry one; rules
// without a response are pass-through and never reach here. The configured
// delay elapses inside this call, so callers publish REQUEST_START first.
// Caller disconnect cuts the delay short; the response is still returned so
// the exchange can close normally. Failures wrap ErrRule.
func (s *Synthesizer) Synthesize(ctx context.Context, r *rule.Rule, in *Inbound) (*Synthesized, error) {
	body, isJSON, err := s.renderBody(r)
	if err != nil {
		return nil, err
	}

	out := &Synthesized{
		Status: r.EffectiveStatus(),
		Body:   body,
	}
	if isJSON {
		out.ContentType = "application/json; charset=utf-8"
		out.EventBody = json.RawMessage(body)
	} else {
		out.ContentType = "text/plain; charset=utf-8"
		out.EventBody = string(body)
	}

	if in.ReqType == ReqTypeJSONP {
		if callback := in.Query.Get("callback"); callback != "" {
			wrapped := make([]byte, 0, len(callback)+len(body)+2)
			wrapped = append(wrapped, callback...)
			wrapped = append(wrapped, '(')
			wrapped = append(wrapped, body...)
			wrapped = append(wrapped, ')')
			out.Body = wrapped
			out.ContentType = "application/javascript"
			out.EventBody = string(wrapped)
		}
	}

	if r.DelayMs > 0 {
		sleep(ctx, time.Duration(r.DelayMs)*time.Millisecond)
	}
	return out, nil
}

// renderBody resolves the response value into bytes. A JSON string becomes
// its text content; any other JSON value stays serialized JSON; mockjs
// responses are expanded first.
func (s *Synthesizer) renderBody(r *rule.Rule) (body []byte, isJSON bool, err error) {
	raw := json.RawMessage(bytes.TrimSpace(r.Response))

	if r.ResponseType == rule.ResponseTypeMockJS {
		expanded, err := s.engine.Generate(raw)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrRule, err)
		}
		return expanded, true, nil
	}

	if len(raw) > 0 && raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, false, fmt.Errorf("%w: decode string response: %w", ErrRule, err)
		}
		return []byte(text), false, nil
	}
	return raw, true, nil
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
