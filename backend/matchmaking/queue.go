// Package matchmaking holds the waiting queue and the pairing policy.
//
// Neither type locks internally: the lifecycle service serializes every
// queue mutation together with room creation under a single lock, which is
// what keeps a match decision atomic with respect to concurrent arrivals.
package matchmaking

import (
	"time"

	"github.com/camroulette/signaling/backend/model"
)

// Queue holds participants waiting for a match in enqueue order.
// A connection has at most one entry at any time; Enqueue enforces this by
// dropping any prior entry for the same connection.
type Queue struct {
	entries []*model.QueueEntry
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Enqueue(conn *model.Connection, filters model.Filters) *model.QueueEntry {
	q.Remove(conn.ID)
	entry := &model.QueueEntry{
		Conn:       conn,
		Filters:    filters,
		EnqueuedAt: time.Now(),
	}
	q.entries = append(q.entries, entry)
	return entry
}

func (q *Queue) Remove(connID string) {
	for i, entry := range q.entries {
		if entry.Conn.ID == connID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// DequeueCompatible removes and returns the earliest entry whose filters
// are mutually compatible with the given ones, excluding excludeConnID.
// FIFO among compatible candidates bounds wait time.
func (q *Queue) DequeueCompatible(filters model.Filters, excludeConnID string) (*model.QueueEntry, bool) {
	for i, entry := range q.entries {
		if entry.Conn.ID == excludeConnID {
			continue
		}
		if filters.Compatible(entry.Filters) {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return entry, true
		}
	}
	return nil, false
}

func (q *Queue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the queue in enqueue order.
func (q *Queue) Entries() []*model.QueueEntry {
	entries := make([]*model.QueueEntry, len(q.entries))
	copy(entries, q.entries)
	return entries
}
