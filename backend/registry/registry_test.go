package registry_test

import (
	"testing"

	"github.com/camroulette/signaling/backend/model"
	"github.com/camroulette/signaling/backend/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := registry.New()

	conn := reg.Register("conn-1", "user-1")
	require.NotNil(t, conn)
	assert.Equal(t, model.StateIdle, conn.State)
	assert.Equal(t, 1, reg.Count())

	got, err := reg.Get("conn-1")
	require.NoError(t, err)
	assert.Same(t, conn, got)

	require.NoError(t, reg.Unregister("conn-1"))
	assert.Equal(t, 0, reg.Count())

	_, err = reg.Get("conn-1")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.ErrorIs(t, reg.Unregister("conn-1"), registry.ErrNotFound)
}

func TestRegistryConnections(t *testing.T) {
	reg := registry.New()
	reg.Register("conn-1", "user-1")
	reg.Register("conn-2", "")

	conns := reg.Connections()
	assert.Len(t, conns, 2)

	ids := []string{conns[0].ID, conns[1].ID}
	assert.ElementsMatch(t, []string{"conn-1", "conn-2"}, ids)
}
