package rewrite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getmoxy/moxy/internal/matching"
	"github.com/getmoxy/moxy/internal/storage"
	"github.com/getmoxy/moxy/pkg/events"
	"github.com/getmoxy/moxy/pkg/metrics"
	"github.com/getmoxy/moxy/pkg/requestlog"
	"github.com/getmoxy/moxy/pkg/rule"
)

// DefaultClientCookieName is the cookie pair that carries the client id when
// no other name is configured.
const DefaultClientCookieName = "__pmid"

// decision is the outcome of matching an inbound request against the
// client's rules.
type decision string

const (
	// decideMock answers from the matched rule's response.
	decideMock decision = "mock"
	// decideForward goes upstream because no rule matched.
	decideForward decision = "forward"
	// decidePassthrough goes upstream although a rule matched: the rule has
	// no response value and serves as a watchpoint only.
	decidePassthrough decision = "passthrough"
)

// Handler serves the rewrite endpoint. Every call runs the same sequence:
// parse, resolve the client, decide mock or forward, respond, then close the
// exchange with a REQUEST_END event and a history entry. Events are published
// only for exchanges that reached the decision step.
type Handler struct {
	store            storage.RuleStore
	publisher        events.Publisher
	forwarder        *Forwarder
	synthesizer      *Synthesizer
	history          requestlog.Recorder
	clientCookieName string
	maxBody          int64
	logger           *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithStore sets the rule store the handler matches against.
func WithStore(store storage.RuleStore) HandlerOption {
	return func(h *Handler) { h.store = store }
}

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) HandlerOption {
	return func(h *Handler) { h.publisher = p }
}

// WithForwarder replaces the upstream forwarder.
func WithForwarder(f *Forwarder) HandlerOption {
	return func(h *Handler) { h.forwarder = f }
}

// WithSynthesizer replaces the response synthesizer.
func WithSynthesizer(s *Synthesizer) HandlerOption {
	return func(h *Handler) { h.synthesizer = s }
}

// WithHistory sets the exchange history sink.
func WithHistory(rec requestlog.Recorder) HandlerOption {
	return func(h *Handler) { h.history = rec }
}

// WithClientCookieName sets the cookie pair that carries the client id.
func WithClientCookieName(name string) HandlerOption {
	return func(h *Handler) {
		if name != "" {
			h.clientCookieName = name
		}
	}
}

// WithMaxBodySize caps how much of the tunneled body is read.
func WithMaxBodySize(n int64) HandlerOption {
	return func(h *Handler) { h.maxBody = n }
}

// WithLogger sets the handler's logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// NewHandler creates a rewrite handler. Missing collaborators default to an
// empty in-memory store, a discarding publisher, and stock forwarder and
// synthesizer instances.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		clientCookieName: DefaultClientCookieName,
		maxBody:          DefaultMaxBodySize,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.store == nil {
		h.store = storage.NewInMemoryRuleStore()
	}
	if h.publisher == nil {
		h.publisher = events.NopPublisher{}
	}
	if h.forwarder == nil {
		h.forwarder = NewForwarder(WithForwardLogger(h.logger))
	}
	if h.synthesizer == nil {
		h.synthesizer = NewSynthesizer(WithSynthLogger(h.logger))
	}
	return h
}

// exchange carries one rewrite call through the pipeline.
type exchange struct {
	in          *Inbound
	decision    decision
	ruleIndex   int
	matched     *rule.Rule
	requestData any

	started time.Time

	status       int
	responseBody any
	failure      error
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	in, err := ParseInbound(r, h.clientCookieName, h.maxBody)
	if err != nil {
		h.logger.Debug("rejected rewrite call", "error", err)
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	if in.ClientID == "" {
		h.logger.Debug("rewrite call without client id", "url", in.TargetURL.String())
		writeText(w, http.StatusOK, NoClientBody)
		return
	}

	ex := h.decide(in)
	h.publishStart(ex)
	h.respond(r.Context(), w, ex)
	h.finish(ex)
}

// decide fetches the client's rules and picks the matched rule, if any.
func (h *Handler) decide(in *Inbound) *exchange {
	rules := h.store.Get(in.ClientID)
	idx := matching.FirstMatch(rules, &matching.Request{
		Method: in.Method,
		Host:   in.Host,
		Path:   in.Pathname,
		Query:  in.Query,
		Form:   in.Form,
	})

	ex := &exchange{
		in:          in,
		decision:    decideForward,
		ruleIndex:   idx,
		requestData: events.NotPOSTRequest,
	}
	if in.Method == http.MethodPost {
		ex.requestData = in.Data
	}
	if idx >= 0 {
		ex.matched = &rules[idx]
		if ex.matched.HasResponse() {
			ex.decision = decideMock
		} else {
			ex.decision = decidePassthrough
		}
	}

	h.logger.Debug("decided rewrite exchange",
		"client", in.ClientID,
		"method", in.Method,
		"host", in.Host,
		"pathname", in.Pathname,
		"decision", string(ex.decision),
		"rule", idx)
	return ex
}

// publishStart opens the exchange's event pair and starts the timecost clock.
func (h *Handler) publishStart(ex *exchange) {
	ex.started = time.Now()
	h.publisher.Publish(ex.in.ClientID, events.TopicRequestStart, events.StartPayload{
		IsMock:         ex.ruleIndex >= 0,
		Method:         ex.in.Method,
		Host:           ex.in.Host,
		Pathname:       ex.in.Pathname,
		URL:            ex.in.TargetURL.String(),
		RequestHeaders: ex.in.Header,
		RequestData:    ex.requestData,
	})
}

// respond writes the decided response: a synthesized mock or the relayed
// upstream answer. Failures write their error status and are kept on the
// exchange for the closing event.
func (h *Handler) respond(ctx context.Context, w http.ResponseWriter, ex *exchange) {
	if ex.decision == decideMock {
		h.respondMock(ctx, w, ex)
		return
	}
	h.respondUpstream(ctx, w, ex)
}

func (h *Handler) respondMock(ctx context.Context, w http.ResponseWriter, ex *exchange) {
	syn, err := h.synthesizer.Synthesize(ctx, ex.matched, ex.in)
	if err != nil {
		h.logger.Error("rule synthesis failed",
			"client", ex.in.ClientID,
			"rule", ex.ruleIndex,
			"error", err)
		ex.status = http.StatusInternalServerError
		ex.responseBody = err.Error()
		ex.failure = err
		writeText(w, ex.status, err.Error())
		return
	}

	ex.status = syn.Status
	ex.responseBody = syn.EventBody
	w.Header().Set("Content-Type", syn.ContentType)
	w.WriteHeader(syn.Status)
	_, _ = w.Write(syn.Body)
}

func (h *Handler) respondUpstream(ctx context.Context, w http.ResponseWriter, ex *exchange) {
	res, err := h.forwarder.Forward(ctx, ex.in)
	if err != nil {
		h.logger.Warn("upstream forward failed",
			"client", ex.in.ClientID,
			"url", ex.in.TargetURL.String(),
			"error", err)
		if metrics.UpstreamFailuresTotal != nil {
			_ = metrics.UpstreamFailuresTotal.Inc()
		}
		ex.status = http.StatusBadGateway
		ex.responseBody = err.Error()
		ex.failure = err
		writeText(w, ex.status, "Error forwarding request: "+err.Error())
		return
	}

	ex.status = res.Status
	ex.responseBody = string(res.Body)
	header := w.Header()
	for name, values := range res.Header {
		if name == "Access-Control-Allow-Origin" || name == "Access-Control-Allow-Credentials" {
			continue
		}
		header[name] = values
	}
	w.WriteHeader(res.Status)
	_, _ = w.Write(res.Body)
}

// finish closes the exchange: REQUEST_END, history entry, metrics.
func (h *Handler) finish(ex *exchange) {
	timecost := time.Since(ex.started).Milliseconds()

	h.publisher.Publish(ex.in.ClientID, events.TopicRequestEnd, events.EndPayload{
		Status:         ex.status,
		RequestData:    ex.requestData,
		RequestHeaders: ex.in.Header,
		ResponseBody:   ex.responseBody,
		Timecost:       timecost,
	})

	if h.history != nil {
		entry := &requestlog.Entry{
			ClientID:     ex.in.ClientID,
			Method:       ex.in.Method,
			Host:         ex.in.Host,
			Pathname:     ex.in.Pathname,
			URL:          ex.in.TargetURL.String(),
			IsMock:       ex.ruleIndex >= 0,
			RuleIndex:    ex.ruleIndex,
			Status:       ex.status,
			RequestBody:  requestlog.Truncate(string(ex.in.Body)),
			ResponseBody: requestlog.Truncate(bodyText(ex.responseBody)),
			TimecostMs:   timecost,
		}
		if ex.failure != nil {
			entry.Error = ex.failure.Error()
		}
		h.history.Record(entry)
	}

	if metrics.ExchangesTotal != nil {
		if vec, err := metrics.ExchangesTotal.WithLabels(string(ex.decision)); err == nil {
			_ = vec.Inc()
		}
		if vec, err := metrics.ExchangeDuration.WithLabels(string(ex.decision)); err == nil {
			vec.Observe(float64(timecost) / 1000)
		}
	}
}

// bodyText renders an event response body for the history entry.
func bodyText(body any) string {
	switch t := body.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.RawMessage:
		return string(t)
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// writeText writes a plain-text response.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
