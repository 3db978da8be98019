package objectsync

import "sync/atomic"

// Progress counts discovered and completed files across one synchronization run.
// Both counters only grow.
type Progress struct {
	total atomic.Int64
	done  atomic.Int64
}

// Snapshot is a copy of the progress counters at one point in time.
type Snapshot struct {
	Total int64
	Done  int64
}

func (p *Progress) discovered() {
	p.total.Add(1)
}

func (p *Progress) completed() {
	p.done.Add(1)
}

// Snapshot returns the current counters.
func (p *Progress) Snapshot() Snapshot {
	// done is read first so a snapshot never reports done > total.
	done := p.done.Load()
	return Snapshot{Total: p.total.Load(), Done: done}
}
