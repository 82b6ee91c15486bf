package election

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, id NodeId, priority int, modifiers ...func(*CoordinatorCfg)) *Coordinator {
	t.Helper()

	cfg := CoordinatorCfg{
		Node: NodeCfg{
			Id:                id,
			Priority:          priority,
			Logger:            testLogger{},
			HeartbeatInterval: 20 * time.Millisecond,
		},

		Work:         func() {},
		WorkInterval: 20 * time.Millisecond,
	}

	for _, modify := range modifiers {
		modify(&cfg)
	}

	c, err := NewCoordinator(cfg)
	require.NoError(t, err)

	return c
}

func startCluster(t *testing.T, coordinators ...*Coordinator) {
	t.Helper()

	for _, c := range coordinators {
		for _, other := range coordinators {
			if other == c {
				continue
			}

			require.NoError(t, c.AddPeer(other))
		}
	}

	errorChan := make(chan error, 8)

	for _, c := range coordinators {
		require.NoError(t, c.Start(errorChan))
		t.Cleanup(c.Shutdown)
	}
}

func TestNewCoordinatorValidation(t *testing.T) {
	_, err := NewCoordinator(CoordinatorCfg{
		Node: NodeCfg{Id: "a", Priority: 1, Logger: testLogger{}},
	})
	require.Error(t, err)

	_, err = NewCoordinator(CoordinatorCfg{
		Node: NodeCfg{Priority: 1, Logger: testLogger{}},
		Work: func() {},
	})
	require.Error(t, err)
}

func TestCoordinatorOnlyLeaderExecutesWork(t *testing.T) {
	c1 := newTestCoordinator(t, "c1", 1)
	c2 := newTestCoordinator(t, "c2", 2)
	c3 := newTestCoordinator(t, "c3", 3)

	startCluster(t, c1, c2, c3)

	require.True(t, c3.IsLeader())
	require.False(t, c1.IsLeader())
	require.False(t, c2.IsLeader())

	require.Eventually(t, func() bool {
		return c3.WorkExecuted() >= 2
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(0), c1.WorkExecuted())
	assert.Equal(t, int64(0), c2.WorkExecuted())
}

func TestCoordinatorFailover(t *testing.T) {
	c1 := newTestCoordinator(t, "c1", 1)
	c2 := newTestCoordinator(t, "c2", 2)
	c3 := newTestCoordinator(t, "c3", 3)

	startCluster(t, c1, c2, c3)

	require.True(t, c3.IsLeader())

	c3.SimulateFailure()
	c1.TriggerElection()
	c2.TriggerElection()

	require.True(t, c2.IsLeader())

	// Work moves to the new leader; the failed one stops executing
	nbDone := c3.WorkExecuted()

	require.Eventually(t, func() bool {
		return c2.WorkExecuted() >= 2
	}, time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, nbDone, c3.WorkExecuted())

	// And back after recovery and re-election. The recovered node keeps a
	// stale leader view until the standing leader's heartbeat reconciles
	// it.
	c3.SimulateRecovery()

	require.Eventually(t, func() bool {
		return c3.Node().Role() == RoleFollower &&
			c3.Node().KnownLeader() == NodeId("c2")
	}, time.Second, 10*time.Millisecond)

	c3.TriggerElection()
	assert.True(t, c3.IsLeader())
}

func TestCoordinatorShutdownStopsWork(t *testing.T) {
	c1 := newTestCoordinator(t, "c1", 1)
	c2 := newTestCoordinator(t, "c2", 2)

	startCluster(t, c1, c2)

	require.True(t, c2.IsLeader())
	require.Eventually(t, func() bool {
		return c2.WorkExecuted() >= 2
	}, time.Second, 10*time.Millisecond)

	c2.Shutdown()
	c2.Shutdown() // idempotent

	nbDone := c2.WorkExecuted()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, nbDone, c2.WorkExecuted())
}

func TestCoordinatorPromoteDemoteCallbacks(t *testing.T) {
	var promotions, demotions atomic.Int64

	track := func(cfg *CoordinatorCfg) {
		cfg.Node.OnPromote = func(NodeId, Term) {
			promotions.Add(1)
		}
		cfg.Node.OnDemote = func(NodeId, Term) {
			demotions.Add(1)
		}
	}

	c1 := newTestCoordinator(t, "c1", 1, track)
	c2 := newTestCoordinator(t, "c2", 2, track)

	startCluster(t, c1, c2)

	require.True(t, c2.IsLeader())
	require.Equal(t, int64(1), promotions.Load())
	require.Equal(t, int64(0), demotions.Load())

	c2.SimulateFailure()
	c1.TriggerElection()

	require.True(t, c1.IsLeader())
	assert.Equal(t, int64(2), promotions.Load())
}

func TestCoordinatorStatus(t *testing.T) {
	c1 := newTestCoordinator(t, "c1", 1)
	c2 := newTestCoordinator(t, "c2", 2)

	startCluster(t, c1, c2)

	require.True(t, c2.IsLeader())
	require.Eventually(t, func() bool {
		return c2.WorkExecuted() >= 2
	}, time.Second, 10*time.Millisecond)

	status := c2.Status()
	assert.Equal(t, NodeId("c2"), status.Node.Id)
	assert.Equal(t, RoleLeader, status.Node.Role)
	assert.Equal(t, Term(1), status.Node.CurrentTerm)
	assert.True(t, status.Node.Healthy)
	assert.GreaterOrEqual(t, status.WorkExecuted, int64(2))

	status = c1.Status()
	assert.Equal(t, RoleFollower, status.Node.Role)
	assert.Equal(t, NodeId("c2"), status.Node.KnownLeader)
	assert.Equal(t, int64(0), status.WorkExecuted)
}

func TestCoordinatorWorkPanicReported(t *testing.T) {
	c := newTestCoordinator(t, "c1", 1, func(cfg *CoordinatorCfg) {
		cfg.Work = func() {
			panic("work failure")
		}
	})

	errorChan := make(chan error, 64)
	require.NoError(t, c.Start(errorChan))
	t.Cleanup(c.Shutdown)

	require.True(t, c.IsLeader())

	select {
	case err := <-errorChan:
		assert.ErrorContains(t, err, "work failure")
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}
}
