package election

import (
	"fmt"
	"time"
)

// The leader side of liveness: while a node is leader, a dedicated goroutine
// emits a heartbeat at a fixed interval and delivers it to every healthy
// peer. The goroutine is started on promotion and must stop as soon as the
// node is demoted or shut down; a late heartbeat from a former leader must
// never be mistaken for a live current one, which the tick-time role check
// and the term rule in adoptLeader both guard against.

// startHeartbeat must be called with n.mu held.
func (n *Node) startHeartbeat() {
	if n.hbStop != nil {
		Panicf("heartbeat already started")
	}

	stop := make(chan struct{})
	n.hbStop = stop

	n.wg.Add(1)
	go n.heartbeatMain(stop)
}

// stopHeartbeat must be called with n.mu held. It is a no-op if no heartbeat
// is running.
func (n *Node) stopHeartbeat() {
	if n.hbStop == nil {
		return
	}

	close(n.hbStop)
	n.hbStop = nil
}

func (n *Node) heartbeatMain(stop chan struct{}) {
	defer n.wg.Done()

	defer func() {
		if value := recover(); value != nil {
			msg := PanicMessage(value)
			trace := PanicStackTrace()
			n.Log.Error("panic: %s\n%s", msg, trace)

			if n.errorChan != nil {
				n.errorChan <- fmt.Errorf("panic: %s", msg)
			}
		}
	}()

	ticker := time.NewTicker(n.Cfg.HeartbeatInterval)
	defer ticker.Stop()

	// The lease-based strategy renews its lease at half the lease duration
	// while it leads; the bully strategy has no renewal channel.
	var renewChan <-chan time.Time

	if n.Cfg.Strategy == StrategyLeaseBased {
		renewTicker := time.NewTicker(n.Cfg.Lease.Duration() / 2)
		defer renewTicker.Stop()

		renewChan = renewTicker.C
	}

	for {
		select {
		case <-stop:
			return

		case <-ticker.C:
			n.onHeartbeatTick()

		case <-renewChan:
			n.onLeaseRenewal()
		}
	}
}

func (n *Node) onHeartbeatTick() {
	n.mu.Lock()

	if n.role != RoleLeader || !n.running || !n.healthy.Load() {
		n.mu.Unlock()
		return
	}

	term := n.currentTerm
	n.mu.Unlock()

	n.Log.Debug(2, "heartbeat (term %d)", term)

	if n.Cfg.OnHeartbeat != nil {
		n.Cfg.OnHeartbeat(n.id, term)
	}

	for _, peer := range n.registry.Peers() {
		if !peer.Healthy() {
			continue
		}

		peer.HandleHeartbeat(n.id, term)
	}
}

func (n *Node) onLeaseRenewal() {
	n.mu.Lock()
	if n.role != RoleLeader || !n.running {
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	// An unhealthy leader must not keep extending its lease, otherwise the
	// lease never expires and no other node can take over.
	if n.healthy.Load() && n.Cfg.Lease.TryAcquire(n.id) {
		n.Log.Debug(2, "lease renewed")
		return
	}

	// Lost the lease or cannot renew it; step down and let whoever holds it
	// lead.
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

	n.Cfg.Lease.Release(n.id)

	n.Log.Info("cannot renew lease, stepping down")

	if n.Cfg.OnDemote != nil {
		n.Cfg.OnDemote(n.id, term)
	}
}

// The follower side of liveness, enabled by NodeCfg.FailureDetection: a
// deadline is rearmed by every signal from the current leader, and a node
// that goes FailureTimeout without one starts an election on its own
// instead of waiting for an external driver.

func (n *Node) detectorMain() {
	defer n.wg.Done()

	defer func() {
		if value := recover(); value != nil {
			msg := PanicMessage(value)
			trace := PanicStackTrace()
			n.Log.Error("panic: %s\n%s", msg, trace)

			if n.errorChan != nil {
				n.errorChan <- fmt.Errorf("panic: %s", msg)
			}
		}
	}()

	timer := time.NewTimer(n.Cfg.FailureTimeout)
	defer timer.Stop()

	for {
		select {
		case <-n.stopChan:
			return

		case <-n.detectorReset:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(n.Cfg.FailureTimeout)

		case <-timer.C:
			n.onLeaderTimeout()
			timer.Reset(n.Cfg.FailureTimeout)
		}
	}
}

func (n *Node) resetDetector() {
	if !n.Cfg.FailureDetection {
		return
	}

	select {
	case n.detectorReset <- struct{}{}:
	default:
	}
}

func (n *Node) onLeaderTimeout() {
	if !n.healthy.Load() {
		return
	}

	n.mu.Lock()
	running := n.running
	isLeader := n.role == RoleLeader
	n.mu.Unlock()

	if !running || isLeader {
		return
	}

	n.Log.Debug(1, "no signal from leader within %v, starting election",
		n.Cfg.FailureTimeout)

	n.StartElection()
}
