package election

// StartElection runs the election decision procedure for this node. It is a
// synchronous scan over peer state and returns immediately; it never blocks
// on I/O. Unhealthy or stopped nodes do not participate: the call is then a
// no-op.
func (n *Node) StartElection() {
	if !n.healthy.Load() {
		return
	}

	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}

	wasLeader := n.role == RoleLeader
	if !wasLeader {
		n.role = RoleCandidate
	}
	n.mu.Unlock()

	n.Log.Debug(1, "starting election (priority %d)", n.priority)

	switch n.Cfg.Strategy {
	case StrategyPriorityBully:
		n.runBullyElection(wasLeader)

	case StrategyLeaseBased:
		n.runLeaseElection(wasLeader)

	default:
		Panicf("unhandled strategy %q", n.Cfg.Strategy)
	}
}

func (n *Node) runBullyElection(wasLeader bool) {
	// The highest-priority live node always wins. If a healthy peer with a
	// strictly greater priority exists, defer to it: it is expected to run
	// its own election and take leadership.
	if peer := n.registry.HealthierPeer(n.priority); peer != nil {
		n.Log.Debug(1, "deferring to node %q (priority %d)",
			peer.Id(), peer.Priority())
		n.stepDown("")
		return
	}

	if wasLeader {
		// Already the rightful leader: re-running the election must not
		// bump the term or re-broadcast.
		return
	}

	n.becomeLeader()
}

func (n *Node) runLeaseElection(wasLeader bool) {
	if !n.Cfg.Lease.TryAcquire(n.id) {
		n.Log.Debug(1, "cannot acquire lease held by node %q, "+
			"remaining follower", n.Cfg.Lease.Holder())
		n.stepDown("")
		return
	}

	if wasLeader {
		return
	}

	n.Log.Debug(1, "acquired lease")
	n.becomeLeader()
}

// becomeLeader promotes the node and announces the new term to every healthy
// peer. The broadcast is best-effort and fire-and-forget: unhealthy peers
// are skipped, and no acknowledgement is expected.
func (n *Node) becomeLeader() {
	n.mu.Lock()

	// An election can race with a shutdown or a failure injection; a node
	// stopped or failed in the interim must not claim leadership.
	if !n.running || !n.healthy.Load() {
		n.mu.Unlock()
		return
	}

	if n.role == RoleLeader {
		n.mu.Unlock()
		return
	}

	n.role = RoleLeader
	n.currentTerm++
	n.knownLeader = n.id
	term := n.currentTerm

	n.startHeartbeat()

	n.mu.Unlock()

	n.Log.Info("elected leader (term %d)", term)

	if n.Cfg.OnPromote != nil {
		n.Cfg.OnPromote(n.id, term)
	}

	announcement := Announcement{LeaderId: n.id, Term: term}

	for _, peer := range n.registry.Peers() {
		if !peer.Healthy() {
			continue
		}

		peer.HandleAnnouncement(announcement)
	}
}

// HandleAnnouncement processes a leadership announcement from a peer.
// Announcements whose term is lower than the node's current term are stale
// and ignored, so a node never regresses to an older leader even when
// announcements race.
func (n *Node) HandleAnnouncement(announcement Announcement) {
	n.adoptLeader(announcement.LeaderId, announcement.Term, false)
}

// HandleHeartbeat processes a liveness signal from the current leader. A
// heartbeat carries the leader's term, so a node with a stale view adopts
// the signalling leader exactly as it would an announcement.
func (n *Node) HandleHeartbeat(leaderId NodeId, term Term) {
	n.adoptLeader(leaderId, term, true)
}

func (n *Node) adoptLeader(leaderId NodeId, term Term, viaHeartbeat bool) {
	n.mu.Lock()

	if term < n.currentTerm {
		currentTerm := n.currentTerm
		n.mu.Unlock()

		n.Log.Debug(1, "ignoring stale announcement from node %q "+
			"(term %d, current term %d)", leaderId, term, currentTerm)
		return
	}

	changed := n.knownLeader != leaderId || n.currentTerm != term ||
		n.role != RoleFollower
	wasLeader := n.role == RoleLeader

	n.currentTerm = term
	n.knownLeader = leaderId
	n.role = RoleFollower

	if wasLeader {
		n.stopHeartbeat()
	}

	n.mu.Unlock()

	n.resetDetector()

	if viaHeartbeat {
		n.Log.Debug(3, "heartbeat from leader %q (term %d)", leaderId, term)
	}

	if !changed {
		return
	}

	if viaHeartbeat {
		n.Log.Debug(1, "adopted leader %q from heartbeat (term %d)",
			leaderId, term)
	} else {
		n.Log.Info("acknowledged leader %q (term %d)", leaderId, term)
	}

	if wasLeader {
		if n.Cfg.Strategy == StrategyLeaseBased {
			n.Cfg.Lease.Release(n.id)
		}

		if n.Cfg.OnDemote != nil {
			n.Cfg.OnDemote(n.id, term)
		}
	}
}

// stepDown demotes the node to follower. An empty leader id leaves the
// previously known leader untouched.
func (n *Node) stepDown(leaderId NodeId) {
	n.mu.Lock()

	wasLeader := n.role == RoleLeader
	n.role = RoleFollower

	if leaderId != "" {
		n.knownLeader = leaderId
	}

	term := n.currentTerm

	if wasLeader {
		n.stopHeartbeat()
	}

	n.mu.Unlock()

	if wasLeader && n.Cfg.OnDemote != nil {
		n.Cfg.OnDemote(n.id, term)
	}
}
