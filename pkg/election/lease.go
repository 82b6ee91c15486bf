package election

import (
	"sync"
	"time"
)

// Lease stands in for a distributed coordination service: a single lease
// object is shared by all nodes of a cluster, and whoever holds it is the
// leader. The holder extends its lease by re-acquiring it; any node can take
// an expired lease.
type Lease struct {
	duration time.Duration

	mu     sync.Mutex
	holder NodeId
	expiry time.Time
}

func NewLease(duration time.Duration) *Lease {
	if duration <= 0 {
		Panicf("invalid lease duration %v", duration)
	}

	return &Lease{
		duration: duration,
	}
}

func (l *Lease) Duration() time.Duration {
	return l.duration
}

// TryAcquire takes the lease if it is expired or already held by the caller,
// extending it by the lease duration. It returns false if another node holds
// a live lease.
func (l *Lease) TryAcquire(id NodeId) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if l.holder != "" && l.holder != id && now.Before(l.expiry) {
		return false
	}

	l.holder = id
	l.expiry = now.Add(l.duration)

	return true
}

// Release drops the lease if the caller holds it. Releasing a lease held by
// another node is a no-op.
func (l *Lease) Release(id NodeId) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holder != id {
		return
	}

	l.holder = ""
	l.expiry = time.Time{}
}

// Holder returns the id of the current holder, or an empty id if the lease
// is free or expired.
func (l *Lease) Holder() NodeId {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holder == "" || time.Now().After(l.expiry) {
		return ""
	}

	return l.holder
}
