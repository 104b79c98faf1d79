package matchmaking

import (
	"time"

	"github.com/camroulette/signaling/backend/model"
	"github.com/rs/zerolog"
)

// Matcher decides when two waiting participants form a room.
type Matcher struct {
	logger zerolog.Logger
	queue  *Queue
}

func NewMatcher(queue *Queue, logger *zerolog.Logger) *Matcher {
	return &Matcher{
		logger: logger.With().Str("component", "matcher").Logger(),
		queue:  queue,
	}
}

// TryMatch pairs the arriving connection with the earliest compatible
// waiting entry. On success both sides are out of the queue and the match
// is returned; the side that was already waiting is the Existing one and
// will take the p1 role. With no compatible partner the arrival is left
// enqueued and false is returned.
func (m *Matcher) TryMatch(conn *model.Connection, filters model.Filters) (*model.Match, bool) {
	m.queue.Remove(conn.ID)

	existing, ok := m.queue.DequeueCompatible(filters, conn.ID)
	if !ok {
		m.queue.Enqueue(conn, filters)
		m.logger.Debug().
			Str("connID", conn.ID).
			Int("queued", m.queue.Len()).
			Msg("no compatible partner, waiting")
		return nil, false
	}

	m.logger.Debug().
		Str("connID", conn.ID).
		Str("peerConnID", existing.Conn.ID).
		Msg("compatible partner found")

	return &model.Match{
		Existing: existing,
		Arriving: &model.QueueEntry{
			Conn:       conn,
			Filters:    filters,
			EnqueuedAt: time.Now(),
		},
	}, true
}
