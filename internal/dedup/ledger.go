// Package dedup provides the shared seen-trade ledger both feeds consult
// before a trade is mirrored.
package dedup

import "sync"

// DefaultCapacity bounds the ledger when the caller does not choose one.
const DefaultCapacity = 10000

// Ledger is a bounded, insertion-ordered set of trade ids. When it grows
// past capacity the oldest half is evicted in one batch, so a very old
// trade id can in principle be admitted twice; that trade-off keeps memory
// flat over long runs.
type Ledger struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	capacity int
}

func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		seen:     make(map[string]struct{}, capacity),
		capacity: capacity,
	}
}

// Admit records id and reports whether it was seen for the first time.
// Safe for concurrent use by both feeds.
func (l *Ledger) Admit(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[id]; ok {
		return false
	}
	l.insert(id)
	return true
}

// AdmitFill is the event-path admission: it records fillID and, in the same
// locked step, claims coarseID for the event path so the poller skips the
// transaction. A coarseID already present without an event claim means the
// poll path mirrored this transaction first, and the fill is refused.
func (l *Ledger) AdmitFill(fillID, coarseID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[fillID]; ok {
		return false
	}
	claimID := coarseID + ":evt"
	_, coarse := l.seen[coarseID]
	_, claimed := l.seen[claimID]
	if coarse && !claimed {
		return false
	}
	l.insert(fillID)
	if !claimed {
		l.insert(claimID)
	}
	if _, ok := l.seen[coarseID]; !ok {
		l.insert(coarseID)
	}
	return true
}

// Mark records id without reporting novelty. Used for stale poll entries
// and to seed the watermark backlog.
func (l *Ledger) Mark(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[id]; ok {
		return
	}
	l.insert(id)
}

// Seen reports whether id is currently in the ledger.
func (l *Ledger) Seen(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// insert assumes l.mu is held and id is not present.
func (l *Ledger) insert(id string) {
	l.seen[id] = struct{}{}
	l.order = append(l.order, id)
	if len(l.seen) > l.capacity {
		l.compact()
	}
}

// compact drops the oldest half in one batch rather than evicting one
// entry per insert.
func (l *Ledger) compact() {
	drop := len(l.order) / 2
	for _, id := range l.order[:drop] {
		delete(l.seen, id)
	}
	kept := make([]string, len(l.order)-drop)
	copy(kept, l.order[drop:])
	l.order = kept
}
