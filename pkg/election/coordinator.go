package election

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type CoordinatorCfg struct {
	Node NodeCfg

	// Work is invoked at each WorkInterval tick, but only while this
	// coordinator's node is the leader. It runs on the coordinator's own
	// goroutine; a panic in the callback is reported through the error
	// channel and does not affect peers.
	Work         func()
	WorkInterval time.Duration
}

// Coordinator is the facade application code schedules periodic work
// through: a cluster of coordinators runs the same work definition, and
// exactly one of them, the current leader, executes it.
type Coordinator struct {
	Cfg CoordinatorCfg
	Log Logger

	node *Node

	workDone atomic.Int64

	errorChan chan<- error
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewCoordinator(cfg CoordinatorCfg) (*Coordinator, error) {
	if cfg.Work == nil {
		return nil, fmt.Errorf("missing work callback")
	}

	if cfg.WorkInterval == 0 {
		cfg.WorkInterval = 3 * time.Second
	}

	node, err := NewNode(cfg.Node)
	if err != nil {
		return nil, fmt.Errorf("cannot create node: %w", err)
	}

	c := &Coordinator{
		Cfg: cfg,
		Log: cfg.Node.Logger,

		node: node,

		stopChan: make(chan struct{}),
	}

	return c, nil
}

func (c *Coordinator) Node() *Node {
	return c.node
}

// AddPeer wires this coordinator's node to observe the other one. As with
// Node.AddPeer, the relation is one-way: wire both directions for mutual
// observation.
func (c *Coordinator) AddPeer(other *Coordinator) error {
	return c.node.AddPeer(other.node)
}

// Start starts the underlying node, runs an initial election and begins
// scheduling work.
func (c *Coordinator) Start(errorChan chan<- error) error {
	if err := c.node.Start(errorChan); err != nil {
		return fmt.Errorf("cannot start node: %w", err)
	}

	c.errorChan = errorChan

	c.node.StartElection()

	c.wg.Add(1)
	go c.workMain()

	return nil
}

// Shutdown stops scheduled work and the underlying node. It is idempotent.
func (c *Coordinator) Shutdown() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})

	c.wg.Wait()
	c.node.Stop()
}

// TriggerElection re-runs the election decision on the underlying node.
// Drivers call this after failing or recovering nodes to reconverge the
// cluster.
func (c *Coordinator) TriggerElection() {
	c.node.StartElection()
}

func (c *Coordinator) SimulateFailure() {
	c.node.SetHealthy(false)
}

// SimulateRecovery marks the node healthy again. It does not trigger an
// election: the caller decides when the recovered node rejoins the race.
func (c *Coordinator) SimulateRecovery() {
	c.node.SetHealthy(true)
}

func (c *Coordinator) IsLeader() bool {
	return c.node.Role() == RoleLeader
}

// CoordinatorStatus extends a node snapshot with scheduling data.
type CoordinatorStatus struct {
	Node NodeStatus `json:"node"`

	WorkExecuted int64 `json:"workExecuted"`
}

func (c *Coordinator) Status() CoordinatorStatus {
	return CoordinatorStatus{
		Node: c.node.Status(),

		WorkExecuted: c.workDone.Load(),
	}
}

// WorkExecuted returns the number of times the work callback ran on this
// coordinator.
func (c *Coordinator) WorkExecuted() int64 {
	return c.workDone.Load()
}

func (c *Coordinator) workMain() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.Cfg.WorkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return

		case <-ticker.C:
			c.onWorkTick()
		}
	}
}

func (c *Coordinator) onWorkTick() {
	if c.node.Role() != RoleLeader || !c.node.Healthy() {
		return
	}

	defer func() {
		if value := recover(); value != nil {
			msg := PanicMessage(value)
			trace := PanicStackTrace()
			c.Log.Error("work panic: %s\n%s", msg, trace)

			if c.errorChan != nil {
				c.errorChan <- fmt.Errorf("work panic: %s", msg)
			}
		}
	}()

	c.Cfg.Work()

	nbDone := c.workDone.Add(1)
	c.Log.Debug(2, "executed work #%d", nbDone)
}
