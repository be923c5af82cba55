package requestlog

// Subscriber receives entries as they are recorded. Slow subscribers miss
// entries rather than block the recorder.
type Subscriber chan *Entry

// Recorder is the sink side of the history, used by the rewrite handler.
type Recorder interface {
	Record(entry *Entry)
}

// Store is the query side, used by the admin API.
type Store interface {
	Recorder

	// Recent returns up to limit entries for the client, newest first.
	// limit <= 0 means all retained entries.
	Recent(clientID string, limit int) []*Entry

	// Len reports how many entries are retained across all clients.
	Len() int

	// Clear drops the retained entries for one client.
	Clear(clientID string)
}

// SubscribableStore is a Store observers can attach to.
type SubscribableStore interface {
	Store

	// Subscribe returns a channel of new entries and an unsubscribe func.
	Subscribe() (Subscriber, func())
}
