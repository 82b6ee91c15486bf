package election

import (
	"fmt"
	"sync"
)

// PeerRegistry is the set of peers a node can observe during an election. It
// holds non-owning handles: a node never manages its peers' lifecycles, it
// only reads their id, priority and health through synchronized accessors.
//
// Peers may be added at any time but never removed, matching the manual
// wiring model of the rest of the package.
type PeerRegistry struct {
	ownerId       NodeId
	ownerPriority int

	mu    sync.RWMutex
	peers map[NodeId]*Node
}

func newPeerRegistry(ownerId NodeId, ownerPriority int) *PeerRegistry {
	return &PeerRegistry{
		ownerId:       ownerId,
		ownerPriority: ownerPriority,

		peers: make(map[NodeId]*Node),
	}
}

// Add registers a peer handle. Registering the owner itself, a peer whose id
// is already known, or a peer whose priority collides with the owner or with
// another peer is a configuration error: elections tie-break on priority
// alone, so priorities must be distinct.
func (r *PeerRegistry) Add(peer *Node) error {
	if peer == nil {
		return fmt.Errorf("missing peer")
	}

	if peer.Id() == r.ownerId {
		return fmt.Errorf("cannot register node %q as its own peer",
			r.ownerId)
	}

	if peer.Priority() == r.ownerPriority {
		return fmt.Errorf("peer %q has the same priority as node %q (%d)",
			peer.Id(), r.ownerId, r.ownerPriority)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.peers[peer.Id()]; found {
		return fmt.Errorf("peer %q already registered", peer.Id())
	}

	for _, other := range r.peers {
		if other.Priority() == peer.Priority() {
			return fmt.Errorf("peer %q has the same priority as peer %q (%d)",
				peer.Id(), other.Id(), peer.Priority())
		}
	}

	r.peers[peer.Id()] = peer

	return nil
}

// Peers returns a snapshot of the registered peer handles.
func (r *PeerRegistry) Peers() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]*Node, 0, len(r.peers))
	for _, peer := range r.peers {
		peers = append(peers, peer)
	}

	return peers
}

// HealthierPeer returns a healthy peer whose priority is strictly greater
// than the one provided, or nil if there is none.
func (r *PeerRegistry) HealthierPeer(priority int) *Node {
	for _, peer := range r.Peers() {
		if peer.Healthy() && peer.Priority() > priority {
			return peer
		}
	}

	return nil
}
