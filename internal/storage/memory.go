package storage

import (
	"sort"
	"sync"

	"github.com/getmoxy/moxy/pkg/rule"
)

// InMemoryRuleStore is a thread-safe in-memory implementation of RuleStore.
// Lists are swapped whole under the lock; rule values are never mutated after
// publication, so handing out the stored slice is safe.
type InMemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[string]rule.List
}

// NewInMemoryRuleStore creates an empty store.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		rules: make(map[string]rule.List),
	}
}

// Get returns the client's rule list, or an empty list when unknown.
func (s *InMemoryRuleStore) Get(clientID string) rule.List {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules[clientID]
}

// Put atomically replaces the client's rule list. The caller must not modify
// the list after handing it over; admin code clones before calling.
func (s *InMemoryRuleStore) Put(clientID string, rules rule.List) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[clientID] = rules
}

// Delete removes the client's rule list.
func (s *InMemoryRuleStore) Delete(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[clientID]; !exists {
		return false
	}
	delete(s.rules, clientID)
	return true
}

// ClientIDs returns the ids that currently have rules, sorted.
func (s *InMemoryRuleStore) ClientIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.rules))
	for id := range s.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the total number of rules across all clients.
func (s *InMemoryRuleStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, l := range s.rules {
		n += len(l)
	}
	return n
}

var _ RuleStore = (*InMemoryRuleStore)(nil)
