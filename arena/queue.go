package arena

import "time"

// QueueEntry is one agent waiting for a quick match.
type QueueEntry struct {
	Address  string    `json:"address"`
	ConnID   string    `json:"conn_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Queue is the FIFO quick-match queue. An address appears at most once.
// Like the rest of the arena state it is mutated only from the event loop
// and carries no lock of its own.
type Queue struct {
	entries []QueueEntry
}

func NewQueue() *Queue { return &Queue{} }

// Add appends an entry unless the address is already queued. Duplicate
// joins are silently absorbed; the returned bool reports whether the entry
// was added.
func (q *Queue) Add(address, connID string) bool {
	if q.Contains(address) {
		return false
	}
	q.entries = append(q.entries, QueueEntry{
		Address:  address,
		ConnID:   connID,
		JoinedAt: time.Now(),
	})
	return true
}

// Remove drops the entry for address, reporting whether one existed.
func (q *Queue) Remove(address string) bool {
	for i, e := range q.entries {
		if e.Address == address {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether address is queued.
func (q *Queue) Contains(address string) bool {
	for _, e := range q.entries {
		if e.Address == address {
			return true
		}
	}
	return false
}

// TryPair dequeues the two longest-waiting entries when at least two are
// present.
func (q *Queue) TryPair() (a, b QueueEntry, ok bool) {
	if len(q.entries) < 2 {
		return QueueEntry{}, QueueEntry{}, false
	}
	a, b = q.entries[0], q.entries[1]
	q.entries = q.entries[2:]
	return a, b, true
}

// Len returns the number of waiting agents.
func (q *Queue) Len() int { return len(q.entries) }

// Entries returns a copy of the queue in FIFO order.
func (q *Queue) Entries() []QueueEntry {
	return append([]QueueEntry(nil), q.entries...)
}

// Addresses returns the queued addresses in FIFO order.
func (q *Queue) Addresses() []string {
	out := make([]string, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.Address
	}
	return out
}
