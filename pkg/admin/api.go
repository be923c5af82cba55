package admin

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getmoxy/moxy/internal/storage"
	"github.com/getmoxy/moxy/pkg/logging"
	"github.com/getmoxy/moxy/pkg/metrics"
	"github.com/getmoxy/moxy/pkg/requestlog"
	"github.com/getmoxy/moxy/pkg/websocket"
)

// maxRuleBodyBytes caps PUT rule payloads.
const maxRuleBodyBytes = 10 * 1024 * 1024

// API serves the management endpoints. It is an http.Handler; the server
// mounts it next to the rewrite and event endpoints.
type API struct {
	store    storage.RuleStore
	history  *requestlog.History
	manager  *websocket.Manager
	registry *metrics.Registry
	log      *slog.Logger
	version  string

	mux       *http.ServeMux
	startTime time.Time
}

// Option configures the API.
type Option func(*API)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}

// WithHistory wires the exchange history backing the history endpoints.
func WithHistory(h *requestlog.History) Option {
	return func(a *API) { a.history = h }
}

// WithManager wires the event connection manager so /status can report
// observer statistics.
func WithManager(m *websocket.Manager) Option {
	return func(a *API) { a.manager = m }
}

// WithRegistry sets the metrics registry served at /metrics.
func WithRegistry(r *metrics.Registry) Option {
	return func(a *API) { a.registry = r }
}

// WithVersion sets the version string reported by /status.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// New creates the management API over a rule store.
func New(store storage.RuleStore, opts ...Option) *API {
	a := &API{
		store:     store,
		log:       logging.Nop(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}

	mux := http.NewServeMux()
	a.registerRoutes(mux)
	a.mux = mux
	return a
}

// registerRoutes sets up all management routes.
func (a *API) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /status", a.handleStatus)
	if a.registry != nil {
		mux.Handle("GET /metrics", a.registry.Handler())
	}

	mux.HandleFunc("GET /api/clients", a.handleListClients)
	mux.HandleFunc("GET /api/clients/{clientId}/rules", a.handleGetRules)
	mux.HandleFunc("PUT /api/clients/{clientId}/rules", a.handlePutRules)
	mux.HandleFunc("DELETE /api/clients/{clientId}/rules", a.handleDeleteRules)
	mux.HandleFunc("GET /api/clients/{clientId}/history", a.handleGetHistory)
	mux.HandleFunc("DELETE /api/clients/{clientId}/history", a.handleClearHistory)
}

// ServeHTTP dispatches to the management routes with logging and request
// metrics applied.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

	a.mux.ServeHTTP(rec, r)

	duration := time.Since(start)
	path := normalizePath(r.URL.Path)
	a.log.Debug("admin request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.statusCode,
		"duration", duration,
	)
	if metrics.AdminRequestsTotal != nil {
		status := strconv.Itoa(rec.statusCode)
		if vec, err := metrics.AdminRequestsTotal.WithLabels(r.Method, path, status); err == nil {
			_ = vec.Inc()
		}
	}
}

// Uptime returns how long the API has been serving.
func (a *API) Uptime() string {
	return time.Since(a.startTime).Round(time.Second).String()
}

// normalizePath collapses per-client paths into one metric label so client
// ids do not explode label cardinality.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[1] == "api" && parts[2] == "clients" && parts[3] != "" {
		parts[3] = "{clientId}"
		return strings.Join(parts, "/")
	}
	return path
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}
