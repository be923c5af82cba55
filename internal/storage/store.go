// Package storage provides the per-client rule store.
package storage

import "github.com/getmoxy/moxy/pkg/rule"

// RuleStore maps client ids to their ordered rule lists. Implementations must
// be safe for concurrent use: a reader observes either the pre-Put or the
// post-Put list for a client, never a torn intermediate.
type RuleStore interface {
	// Get returns the rule list for a client, or an empty list when the
	// client is unknown. The returned slice is a snapshot: later Puts do not
	// change it.
	Get(clientID string) rule.List

	// Put atomically replaces the client's rule list.
	Put(clientID string, rules rule.List)

	// Delete removes the client's rule list. Returns true when the client
	// had one.
	Delete(clientID string) bool

	// ClientIDs returns the ids that currently have rules, sorted.
	ClientIDs() []string

	// Count returns the total number of rules across all clients.
	Count() int
}
