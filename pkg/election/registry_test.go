package election

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPeerValidation(t *testing.T) {
	a := newTestNode(t, "a", 1)
	b := newTestNode(t, "b", 2)

	require.Error(t, a.AddPeer(nil))
	require.Error(t, a.AddPeer(a))

	require.NoError(t, a.AddPeer(b))
	require.Error(t, a.AddPeer(b))
}

func TestAddPeerDuplicatePriority(t *testing.T) {
	a := newTestNode(t, "a", 1)
	b := newTestNode(t, "b", 1)
	c := newTestNode(t, "c", 2)
	d := newTestNode(t, "d", 2)

	// Same priority as the owner
	require.Error(t, a.AddPeer(b))

	// Same priority as an already registered peer
	require.NoError(t, a.AddPeer(c))
	require.Error(t, a.AddPeer(d))
}

func TestPeersSnapshot(t *testing.T) {
	a := newTestNode(t, "a", 1)
	b := newTestNode(t, "b", 2)
	c := newTestNode(t, "c", 3)

	assert.Empty(t, a.Registry().Peers())

	require.NoError(t, a.AddPeer(b))
	require.NoError(t, a.AddPeer(c))

	assert.Len(t, a.Registry().Peers(), 2)
}

func TestHealthierPeer(t *testing.T) {
	a := newTestNode(t, "a", 1)
	b := newTestNode(t, "b", 2)
	c := newTestNode(t, "c", 3)

	require.NoError(t, a.AddPeer(b))
	require.NoError(t, a.AddPeer(c))

	assert.NotNil(t, a.Registry().HealthierPeer(1))
	assert.Nil(t, a.Registry().HealthierPeer(3))

	// Unhealthy peers are not healthier peers, whatever their priority
	b.SetHealthy(false)
	c.SetHealthy(false)

	assert.Nil(t, a.Registry().HealthierPeer(1))

	c.SetHealthy(true)
	assert.Equal(t, NodeId("c"), a.Registry().HealthierPeer(1).Id())
}
