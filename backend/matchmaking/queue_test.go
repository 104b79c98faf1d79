package matchmaking_test

import (
	"testing"

	"github.com/camroulette/signaling/backend/matchmaking"
	"github.com/camroulette/signaling/backend/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var anyone = model.Filters{Gender: model.GenderBoth, Country: model.CountryBalanced}

func TestQueueSingleEntryPerConnection(t *testing.T) {
	q := matchmaking.NewQueue()
	conn := model.NewConnection("conn-1", "")

	q.Enqueue(conn, anyone)
	q.Enqueue(conn, model.Filters{Gender: "female", Country: "us"})

	assert.Equal(t, 1, q.Len(), "re-enqueue must replace the prior entry")

	entry, ok := q.DequeueCompatible(anyone, "other")
	require.True(t, ok)
	assert.Equal(t, "female", entry.Filters.Gender, "replacement entry carries the latest filters")
	assert.Equal(t, 0, q.Len())
}

func TestQueueFIFOAmongCompatible(t *testing.T) {
	q := matchmaking.NewQueue()
	first := model.NewConnection("conn-1", "")
	second := model.NewConnection("conn-2", "")

	q.Enqueue(first, anyone)
	q.Enqueue(second, anyone)

	entry, ok := q.DequeueCompatible(anyone, "conn-3")
	require.True(t, ok)
	assert.Equal(t, "conn-1", entry.Conn.ID, "earliest enqueued compatible entry wins")
}

func TestQueueSkipsIncompatible(t *testing.T) {
	q := matchmaking.NewQueue()
	picky := model.NewConnection("conn-1", "")
	open := model.NewConnection("conn-2", "")

	q.Enqueue(picky, model.Filters{Gender: "female", Country: "jp"})
	q.Enqueue(open, anyone)

	entry, ok := q.DequeueCompatible(model.Filters{Gender: "male", Country: model.CountryBalanced}, "conn-3")
	require.True(t, ok)
	assert.Equal(t, "conn-2", entry.Conn.ID, "incompatible earlier entry must be passed over")
	assert.Equal(t, 1, q.Len())
}

func TestQueueExcludesSelf(t *testing.T) {
	q := matchmaking.NewQueue()
	conn := model.NewConnection("conn-1", "")
	q.Enqueue(conn, anyone)

	_, ok := q.DequeueCompatible(anyone, "conn-1")
	assert.False(t, ok)
	assert.Equal(t, 1, q.Len())
}

func TestQueueRemove(t *testing.T) {
	q := matchmaking.NewQueue()
	q.Enqueue(model.NewConnection("conn-1", ""), anyone)
	q.Enqueue(model.NewConnection("conn-2", ""), anyone)

	q.Remove("conn-1")
	q.Remove("conn-1") // removing twice is a no-op

	assert.Equal(t, 1, q.Len())
	entry, ok := q.DequeueCompatible(anyone, "")
	require.True(t, ok)
	assert.Equal(t, "conn-2", entry.Conn.ID)
}
