package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LokiConfig configures a LokiHandler.
type LokiConfig struct {
	// Endpoint is the Loki push URL, e.g. "http://localhost:3100/loki/api/v1/push".
	Endpoint string

	// Labels are attached to the log stream. A "job" label is always present.
	Labels map[string]string

	// Level is the minimum level shipped to Loki. Defaults to LevelInfo.
	Level Level

	// BatchSize is the number of entries buffered before a push. Default 100.
	BatchSize int

	// FlushInterval pushes partial batches at this cadence. Default 5s.
	FlushInterval time.Duration
}

// LokiHandler is a slog.Handler that ships records to a Loki push endpoint.
// Records are queued to a background shipper; a full queue drops records
// rather than blocking the caller.
type LokiHandler struct {
	ship   *lokiShipper
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

type lokiEntry struct {
	ts   time.Time
	line string
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

type lokiPush struct {
	Streams []lokiStream `json:"streams"`
}

// lokiShipper owns the entry queue and the push loop. Handler clones created
// by WithAttrs/WithGroup share one shipper.
type lokiShipper struct {
	endpoint string
	labels   map[string]string
	client   *http.Client
	batch    int
	interval time.Duration

	entries  chan lokiEntry
	stop     chan struct{}
	drained  chan struct{}
	stopOnce sync.Once
}

// NewLokiHandler creates a Loki log handler and starts its push loop.
// Call Close to flush buffered entries on shutdown.
func NewLokiHandler(cfg LokiConfig) *LokiHandler {
	labels := map[string]string{"job": "moxy"}
	for k, v := range cfg.Labels {
		labels[k] = v
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	ship := &lokiShipper{
		endpoint: cfg.Endpoint,
		labels:   labels,
		client:   &http.Client{Timeout: 5 * time.Second},
		batch:    cfg.BatchSize,
		interval: cfg.FlushInterval,
		entries:  make(chan lokiEntry, 4*cfg.BatchSize),
		stop:     make(chan struct{}),
		drained:  make(chan struct{}),
	}
	go ship.run()

	return &LokiHandler{ship: ship, level: cfg.Level}
}

// Enabled implements slog.Handler.
func (h *LokiHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler. The record is queued; it never blocks.
func (h *LokiHandler) Handle(_ context.Context, r slog.Record) error {
	entry := lokiEntry{ts: r.Time, line: h.formatRecord(r)}
	select {
	case h.ship.entries <- entry:
	default:
		// Queue full: dropping beats stalling request handling.
	}
	return nil
}

// formatRecord renders the record as a single JSON line.
func (h *LokiHandler) formatRecord(r slog.Record) string {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
		"time":  r.Time.Format(time.RFC3339Nano),
	}

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	for _, attr := range h.attrs {
		data[prefix+attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[prefix+a.Key] = a.Value.Any()
		return true
	})

	b, _ := json.Marshal(data)
	return string(b)
}

// WithAttrs implements slog.Handler.
func (h *LokiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LokiHandler{
		ship:   h.ship,
		level:  h.level,
		attrs:  append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *LokiHandler) WithGroup(name string) slog.Handler {
	return &LokiHandler{
		ship:   h.ship,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}

// Close stops the push loop and flushes buffered entries.
func (h *LokiHandler) Close() error {
	h.ship.stopOnce.Do(func() { close(h.ship.stop) })
	<-h.ship.drained
	return nil
}

func (s *lokiShipper) run() {
	defer close(s.drained)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var pending []lokiEntry
	flush := func() {
		if len(pending) == 0 {
			return
		}
		// Pushes are best-effort; a failed batch is dropped.
		_ = s.push(pending)
		pending = pending[:0]
	}

	for {
		select {
		case e := <-s.entries:
			pending = append(pending, e)
			if len(pending) >= s.batch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stop:
			for {
				select {
				case e := <-s.entries:
					pending = append(pending, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *lokiShipper) push(batch []lokiEntry) error {
	values := make([][]string, len(batch))
	for i, e := range batch {
		values[i] = []string{strconv.FormatInt(e.ts.UnixNano(), 10), e.line}
	}

	body, err := json.Marshal(lokiPush{Streams: []lokiStream{{Stream: s.labels, Values: values}}})
	if err != nil {
		return fmt.Errorf("marshal loki push: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create loki request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send logs to loki: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("loki returned status %d", resp.StatusCode)
	}
	return nil
}
