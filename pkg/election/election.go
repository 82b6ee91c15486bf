package election

import "fmt"

type NodeId string

type Term int64

type NodeRole string

const (
	RoleFollower  NodeRole = "follower"
	RoleCandidate NodeRole = "candidate"
	RoleLeader    NodeRole = "leader"
)

func (r NodeRole) String() string {
	return string(r)
}

type Strategy string

const (
	StrategyPriorityBully Strategy = "priority-bully"
	StrategyLeaseBased    Strategy = "lease-based"
)

// Announcement is the message a node broadcasts to its peers when it takes
// leadership. Announcements may arrive out of order; recipients discard any
// announcement whose term is lower than their current one.
type Announcement struct {
	LeaderId NodeId
	Term     Term
}

func (a Announcement) String() string {
	return fmt.Sprintf("Announcement{leaderId: %q, term: %d}",
		a.LeaderId, a.Term)
}

type NodeStatus struct {
	Id          NodeId   `json:"id"`
	Priority    int      `json:"priority"`
	Role        NodeRole `json:"role"`
	CurrentTerm Term     `json:"currentTerm"`
	KnownLeader NodeId   `json:"knownLeader,omitempty"`
	Healthy     bool     `json:"healthy"`
}

func (s NodeStatus) String() string {
	return fmt.Sprintf("NodeStatus{id: %q, priority: %d, role: %v, "+
		"term: %d, leader: %q, healthy: %v}",
		s.Id, s.Priority, s.Role, s.CurrentTerm, s.KnownLeader, s.Healthy)
}
