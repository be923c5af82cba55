package requestlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxEntries is the history capacity when none is configured.
const DefaultMaxEntries = 1000

// History implements SubscribableStore with an in-memory circular buffer.
// FIFO eviction keeps at most maxEntries entries across all clients.
type History struct {
	entries     []*Entry
	maxEntries  int
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	subMu       sync.RWMutex
}

var _ SubscribableStore = (*History)(nil)

// NewHistory creates a history with the given capacity.
func NewHistory(maxEntries int) *History {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &History{
		entries:     make([]*Entry, 0, maxEntries),
		maxEntries:  maxEntries,
		subscribers: make(map[Subscriber]struct{}),
	}
}

// Record appends an entry, evicting the oldest at capacity. A missing ID or
// timestamp is filled in. Entries must not be mutated after recording.
func (h *History) Record(entry *Entry) {
	if entry == nil {
		return
	}

	h.mu.Lock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if len(h.entries) >= h.maxEntries {
		h.entries = h.entries[1:]
	}
	h.entries = append(h.entries, entry)
	h.mu.Unlock()

	h.subMu.RLock()
	for sub := range h.subscribers {
		select {
		case sub <- entry:
		default:
			// Drop when the subscriber is slow.
		}
	}
	h.subMu.RUnlock()
}

// Recent returns up to limit entries for the client, newest first.
func (h *History) Recent(clientID string, limit int) []*Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	capHint := limit
	if capHint <= 0 {
		capHint = len(h.entries)
	}
	out := make([]*Entry, 0, capHint)
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].ClientID != clientID {
			continue
		}
		out = append(out, h.entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len reports how many entries are retained.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Clear drops all entries recorded for the client.
func (h *History) Clear(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.entries[:0]
	for _, e := range h.entries {
		if e.ClientID != clientID {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(h.entries); i++ {
		h.entries[i] = nil
	}
	h.entries = kept
}

// Subscribe attaches an observer. The returned channel is buffered; entries
// beyond the buffer are dropped, not queued. The second return value detaches
// the observer and closes the channel.
func (h *History) Subscribe() (Subscriber, func()) {
	sub := make(Subscriber, 100)

	h.subMu.Lock()
	h.subscribers[sub] = struct{}{}
	h.subMu.Unlock()

	unsubscribe := func() {
		h.subMu.Lock()
		if _, ok := h.subscribers[sub]; ok {
			delete(h.subscribers, sub)
			close(sub)
		}
		h.subMu.Unlock()
	}
	return sub, unsubscribe
}
