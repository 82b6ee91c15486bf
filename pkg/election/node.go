package election

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type NodeCfg struct {
	Id       NodeId
	Priority int

	Logger Logger

	Strategy Strategy

	HeartbeatInterval time.Duration

	// Lease shared by all nodes of the cluster; required for the lease-based
	// strategy, ignored otherwise.
	Lease *Lease

	// When enabled, the node tracks the time since the last signal from the
	// current leader and starts an election on its own once FailureTimeout
	// elapses without one. When disabled, re-elections must be triggered by
	// the caller.
	FailureDetection bool
	FailureTimeout   time.Duration

	// Called on each heartbeat the node emits while it is the leader.
	OnHeartbeat func(NodeId, Term)

	// Called when the node gains or loses leadership.
	OnPromote func(NodeId, Term)
	OnDemote  func(NodeId, Term)
}

// Node is one participant of a cluster. It carries a stable identity, a
// fixed priority and a health flag, and moves between the follower,
// candidate and leader roles as elections run.
//
// Role, term and known-leader data are guarded by a single per-node mutex;
// health is a bare atomic flag since it gates decisions without being part
// of a multi-field invariant. Decisions over peers only ever go through
// their synchronized accessors, so no two node locks are ever held at once.
type Node struct {
	Cfg NodeCfg
	Log Logger

	id       NodeId
	priority int

	healthy atomic.Bool

	registry *PeerRegistry

	mu          sync.Mutex
	role        NodeRole
	currentTerm Term
	knownLeader NodeId
	running     bool
	stopped     bool
	hbStop      chan struct{}

	detectorReset chan struct{}

	errorChan chan<- error
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

func NewNode(cfg NodeCfg) (*Node, error) {
	if cfg.Id == "" {
		return nil, fmt.Errorf("missing or empty node id")
	}

	if cfg.Logger == nil {
		return nil, fmt.Errorf("missing logger")
	}

	if cfg.Strategy == "" {
		cfg.Strategy = StrategyPriorityBully
	}

	switch cfg.Strategy {
	case StrategyPriorityBully:

	case StrategyLeaseBased:
		if cfg.Lease == nil {
			return nil, fmt.Errorf("missing lease")
		}

	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}

	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 2 * time.Second
	}

	if cfg.FailureTimeout == 0 {
		cfg.FailureTimeout = 5 * cfg.HeartbeatInterval / 2
	}

	n := &Node{
		Cfg: cfg,
		Log: cfg.Logger,

		id:       cfg.Id,
		priority: cfg.Priority,

		registry: newPeerRegistry(cfg.Id, cfg.Priority),

		role: RoleFollower,

		detectorReset: make(chan struct{}, 1),

		stopChan: make(chan struct{}),
	}

	n.healthy.Store(true)

	return n, nil
}

func (n *Node) Id() NodeId {
	return n.id
}

func (n *Node) Priority() int {
	return n.priority
}

func (n *Node) Healthy() bool {
	return n.healthy.Load()
}

func (n *Node) Role() NodeRole {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.role
}

func (n *Node) CurrentTerm() Term {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.currentTerm
}

// KnownLeader returns the id of the node this node currently believes is
// leader, or an empty id if it does not know of one.
func (n *Node) KnownLeader() NodeId {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.knownLeader
}

// Status returns a point-in-time snapshot of the node's observable state,
// for status reporting. All role-related fields come from a single lock
// acquisition, so they are mutually consistent.
func (n *Node) Status() NodeStatus {
	n.mu.Lock()
	defer n.mu.Unlock()

	return NodeStatus{
		Id:          n.id,
		Priority:    n.priority,
		Role:        n.role,
		CurrentTerm: n.currentTerm,
		KnownLeader: n.knownLeader,
		Healthy:     n.healthy.Load(),
	}
}

// AddPeer registers a peer handle. Peering is not symmetric: callers wanting
// both nodes to observe each other must wire both directions.
func (n *Node) AddPeer(peer *Node) error {
	return n.registry.Add(peer)
}

func (n *Node) Registry() *PeerRegistry {
	return n.registry
}

func (n *Node) Start(errorChan chan<- error) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return fmt.Errorf("node already stopped")
	}

	if n.running {
		return fmt.Errorf("node already started")
	}

	n.errorChan = errorChan
	n.running = true

	if n.Cfg.FailureDetection {
		n.wg.Add(1)
		go n.detectorMain()
	}

	n.Log.Debug(1, "started")

	return nil
}

// Stop shuts the node down: its heartbeat and failure detector stop, and it
// can no longer start elections or be promoted. Stopping an already stopped
// node is a no-op.
func (n *Node) Stop() {
	n.mu.Lock()

	if !n.running {
		n.mu.Unlock()
		return
	}

	n.running = false
	n.stopped = true

	n.stopHeartbeat()
	close(n.stopChan)

	n.mu.Unlock()

	n.wg.Wait()

	if n.Cfg.Strategy == StrategyLeaseBased {
		n.Cfg.Lease.Release(n.id)
	}

	n.Log.Debug(1, "stopped")
}

// SetHealthy toggles the health flag, simulating failure or recovery.
// Recovery does not trigger an election on its own: the node keeps whatever
// role it had, and a new election must be started for the cluster to
// reconverge.
func (n *Node) SetHealthy(healthy bool) {
	wasHealthy := n.healthy.Swap(healthy)
	if wasHealthy == healthy {
		return
	}

	if healthy {
		n.Log.Info("node recovered")

		// A failure cost a bully node its leadership even if no peer has
		// claimed it yet; stepping down here keeps two nodes from both
		// reporting leader until the standing leader's next signal. A
		// lease holder keeps its role: the lease survives brief failures,
		// and renewal demotes it if it did not.
		if n.Cfg.Strategy == StrategyPriorityBully {
			n.demoteAfterRecovery()
		}

		return
	}

	n.Log.Info("node failed")

	if n.Role() == RoleLeader {
		n.Log.Info("leader failed, election needed")
	}
}

func (n *Node) demoteAfterRecovery() {
	n.mu.Lock()

	if n.role != RoleLeader {
		n.mu.Unlock()
		return
	}

	n.role = RoleFollower
	n.knownLeader = ""
	term := n.currentTerm

	n.stopHeartbeat()

	n.mu.Unlock()

	n.Log.Info("stepping down after recovery")

	if n.Cfg.OnDemote != nil {
		n.Cfg.OnDemote(n.id, term)
	}
}
