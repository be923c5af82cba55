package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/getmoxy/moxy/internal/storage"
	"github.com/getmoxy/moxy/pkg/admin"
	"github.com/getmoxy/moxy/pkg/config"
	"github.com/getmoxy/moxy/pkg/metrics"
	"github.com/getmoxy/moxy/pkg/requestlog"
	"github.com/getmoxy/moxy/pkg/websocket"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// Server assembles the whole proxy: the rewrite endpoint, the event stream,
// and the management API on one listen port.
type Server struct {
	cfg     *config.Config
	store   storage.RuleStore
	history *requestlog.History
	manager *websocket.Manager
	log     *slog.Logger
	version string

	handler    *Handler
	adminAPI   *admin.API
	httpServer *http.Server
	listener   net.Listener

	mu        sync.Mutex
	running   bool
	startTime time.Time
}

// ServerOption configures a Server. Handler-level options in this package
// carry unprefixed names, so server options are Server-prefixed.
type ServerOption func(*Server)

// WithServerLogger sets the operational logger.
func WithServerLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithServerStore replaces the in-memory rule store.
func WithServerStore(store storage.RuleStore) ServerOption {
	return func(s *Server) { s.store = store }
}

// WithServerHistory replaces the exchange history.
func WithServerHistory(h *requestlog.History) ServerOption {
	return func(s *Server) { s.history = h }
}

// WithServerVersion sets the version string reported by the status endpoint.
func WithServerVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// NewServer wires the proxy from configuration. A nil cfg uses defaults.
func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	// Work on a defaulted copy. Port is restored afterwards: a zero port
	// means bind any free port, not the default port.
	c := *cfg
	port := c.Port
	c.ApplyDefaults()
	c.Port = port

	s := &Server{
		cfg: &c,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = storage.NewInMemoryRuleStore()
	}
	if s.history == nil {
		s.history = requestlog.NewHistory(s.cfg.HistorySize)
	}

	registry := metrics.Init()

	s.manager = websocket.NewManager(websocket.WithManagerLogger(s.log))
	publisher := websocket.NewPublisher(s.manager, websocket.WithPublisherLogger(s.log))

	forwarder := NewForwarder(
		WithForwardLogger(s.log),
		WithForwardTimeout(time.Duration(s.cfg.UpstreamTimeoutMs)*time.Millisecond),
		WithMaxResponseSize(s.cfg.MaxBodyBytes),
	)

	s.handler = NewHandler(
		WithStore(s.store),
		WithPublisher(publisher),
		WithForwarder(forwarder),
		WithSynthesizer(NewSynthesizer(WithSynthLogger(s.log))),
		WithHistory(s.history),
		WithClientCookieName(s.cfg.ClientCookieName),
		WithMaxBodySize(s.cfg.MaxBodyBytes),
		WithLogger(s.log),
	)

	s.adminAPI = admin.New(s.store,
		admin.WithLogger(s.log),
		admin.WithHistory(s.history),
		admin.WithManager(s.manager),
		admin.WithRegistry(registry),
		admin.WithVersion(s.version),
	)

	eventsHandler := websocket.NewEventsHandler(s.manager,
		websocket.WithEventsLogger(s.log),
	)

	mux := http.NewServeMux()
	mux.Handle("/api/rewrite", NewCORSEcho(s.handler))
	mux.Handle("/api/events", eventsHandler)
	mux.Handle("/health", s.adminAPI)
	mux.Handle("/status", s.adminAPI)
	mux.Handle("/metrics", s.adminAPI)
	mux.Handle("/api/clients", s.adminAPI)
	mux.Handle("/api/clients/", s.adminAPI)

	s.httpServer = &http.Server{
		Handler: mux,
		// No read or write deadline: event streams stay open indefinitely
		// and mock delays are rule-controlled.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// LoadRules preloads the store from the configured rules directory. Broken
// files are logged and skipped.
func (s *Server) LoadRules() error {
	if s.cfg.RulesDir == "" {
		return nil
	}

	files, failures, err := config.LoadRulesDir(s.cfg.RulesDir)
	if err != nil {
		return err
	}
	for i := range failures {
		s.log.Warn("skipping rule file", "path", failures[i].Path, "error", failures[i].Err)
	}
	for _, rf := range files {
		rules := rf.Rules
		for i := range rules {
			if rules[i].ID == "" {
				rules[i].ID = uuid.NewString()
			}
		}
		s.store.Put(rf.Client, rules)
		if metrics.ActiveRules != nil {
			if vec, err := metrics.ActiveRules.WithLabels(rf.Client); err == nil {
				vec.Set(float64(len(rules)))
			}
		}
		s.log.Info("loaded rules", "client", rf.Client, "count", len(rules))
	}
	return nil
}

// Start binds the listener and begins serving. It returns once the listener
// is accepting; the serve loop runs in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("server is already running")
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr(), err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("server error", "error", err)
		}
	}()

	s.running = true
	s.startTime = time.Now()
	s.log.Info("moxy started", "addr", listener.Addr().String(), "port", s.Port())
	return nil
}

// Stop gracefully shuts the server down: in-flight exchanges get
// shutdownTimeout to finish, then event connections are closed.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	s.manager.Close()

	s.running = false
	s.log.Info("moxy stopped")

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Port returns the bound port, useful when the configured port was 0.
func (s *Server) Port() int {
	if s.listener == nil {
		return s.cfg.Port
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.cfg.Port
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Store exposes the rule store for embedding callers.
func (s *Server) Store() storage.RuleStore {
	return s.store
}

// History exposes the exchange history.
func (s *Server) History() *requestlog.History {
	return s.history
}
