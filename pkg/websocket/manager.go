package websocket

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"

	"github.com/getmoxy/moxy/pkg/metrics"
)

// Manager tracks open observer connections and fans events out by client id.
type Manager struct {
	connections map[string]*Connection            // connection id -> connection
	byClient    map[string]map[string]*Connection // client id -> connection id -> connection

	totalSent atomic.Int64
	startTime time.Time
	logger    *slog.Logger
	mu        sync.RWMutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates an empty connection manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		connections: make(map[string]*Connection),
		byClient:    make(map[string]map[string]*Connection),
		startTime:   time.Now(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add registers a connection under its client id.
func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	m.connections[conn.ID()] = conn
	group := m.byClient[conn.ClientID()]
	if group == nil {
		group = make(map[string]*Connection)
		m.byClient[conn.ClientID()] = group
	}
	group[conn.ID()] = conn
	m.mu.Unlock()

	if metrics.ActiveConnections != nil {
		_ = metrics.ActiveConnections.Inc()
	}
	m.logger.Debug("observer registered",
		"connection", conn.ID(),
		"client", conn.ClientID())
}

// Remove unregisters a connection. Removing an unknown id is a no-op.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	conn, exists := m.connections[id]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.connections, id)
	if group, ok := m.byClient[conn.ClientID()]; ok {
		delete(group, id)
		if len(group) == 0 {
			delete(m.byClient, conn.ClientID())
		}
	}
	m.mu.Unlock()

	m.totalSent.Add(conn.EventsSent())
	if metrics.ActiveConnections != nil {
		_ = metrics.ActiveConnections.Dec()
	}
	m.logger.Debug("observer unregistered",
		"connection", id,
		"client", conn.ClientID())
}

// Get returns a connection by id, or nil.
func (m *Manager) Get(id string) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[id]
}

// Count returns the total number of open connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// CountForClient returns the number of observers watching one client id.
func (m *Manager) CountForClient(clientID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byClient[clientID])
}

// ClientIDs returns the client ids with at least one observer, sorted.
func (m *Manager) ClientIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.byClient))
	for id := range m.byClient {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Broadcast queues data on every connection watching clientID. It returns
// how many observers accepted the frame and how many dropped it. The
// connection set is snapshotted first so sends happen outside the lock.
func (m *Manager) Broadcast(clientID string, data []byte) (sent, dropped int) {
	m.mu.RLock()
	group := m.byClient[clientID]
	conns := make([]*Connection, 0, len(group))
	for _, conn := range group {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(data); err != nil {
			dropped++
			continue
		}
		sent++
	}
	return sent, dropped
}

// Infos returns public information about every open connection.
func (m *Manager) Infos() []*ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]*ConnectionInfo, 0, len(m.connections))
	for _, conn := range m.connections {
		infos = append(infos, conn.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ConnectedAt.Before(infos[j].ConnectedAt) })
	return infos
}

// Stats summarizes the manager for status reporting.
type Stats struct {
	Connections int    `json:"connections"`
	Clients     int    `json:"clients"`
	EventsSent  int64  `json:"eventsSent"`
	Uptime      string `json:"uptime"`
}

// StatsSnapshot returns aggregate connection statistics. EventsSent covers
// both open and already-closed connections.
func (m *Manager) StatsSnapshot() *Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sent := m.totalSent.Load()
	for _, conn := range m.connections {
		sent += conn.EventsSent()
	}
	return &Stats{
		Connections: len(m.connections),
		Clients:     len(m.byClient),
		EventsSent:  sent,
		Uptime:      time.Since(m.startTime).Round(time.Second).String(),
	}
}

// Close closes every connection and resets the manager.
func (m *Manager) Close() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
		m.totalSent.Add(conn.EventsSent())
	}
	m.connections = make(map[string]*Connection)
	m.byClient = make(map[string]map[string]*Connection)
	m.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(ws.StatusGoingAway, "server shutdown")
		if metrics.ActiveConnections != nil {
			_ = metrics.ActiveConnections.Dec()
		}
	}
}
