package engine

import "sync"

// recentLimit bounds Snapshot.Recent.
const recentLimit = 5

// Snapshot is a point-in-time view of a job's progress.
type Snapshot struct {
	UnitsCompleted int
	UnitsFailed    int
	TotalUnits     int
	BytesCompleted int64
	TotalBytes     int64
	// Recent lists the most recently finished unit IDs, newest last.
	Recent []string
}

// Done reports whether every unit has finished, successfully or not.
func (s Snapshot) Done() bool {
	return s.UnitsCompleted+s.UnitsFailed >= s.TotalUnits
}

// Fraction returns the completed share of bytes in [0, 1]. Jobs of empty
// files fall back to the unit ratio.
func (s Snapshot) Fraction() float64 {
	if s.TotalBytes > 0 {
		return float64(s.BytesCompleted) / float64(s.TotalBytes)
	}
	if s.TotalUnits > 0 {
		return float64(s.UnitsCompleted+s.UnitsFailed) / float64(s.TotalUnits)
	}
	return 1
}

// Progress aggregates unit completions for one job. It is safe for
// concurrent use. Completed bytes never decrease and never exceed the
// total.
type Progress struct {
	mu         sync.Mutex
	totalUnits int
	totalBytes int64
	completed  int
	failed     int
	bytes      int64
	seen       map[string]struct{}
	recent     []string
}

// NewProgress creates an aggregator for a job of totalUnits units and
// totalBytes bytes.
func NewProgress(totalUnits int, totalBytes int64) *Progress {
	return &Progress{
		totalUnits: totalUnits,
		totalBytes: totalBytes,
		seen:       make(map[string]struct{}, totalUnits),
	}
}

// OnComplete records the outcome of unit. Successful units credit their
// size; failed units are counted but credit nothing. A unit reported twice
// is ignored.
func (p *Progress) OnComplete(unit TransferUnit, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, dup := p.seen[unit.ID]; dup {
		return
	}
	p.seen[unit.ID] = struct{}{}

	if err != nil {
		p.failed++
	} else {
		p.completed++
		p.bytes = min(p.bytes+unit.Size, p.totalBytes)
	}

	p.recent = append(p.recent, unit.ID)
	if len(p.recent) > recentLimit {
		p.recent = p.recent[len(p.recent)-recentLimit:]
	}
}

// Snapshot returns the current counters.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Snapshot{
		UnitsCompleted: p.completed,
		UnitsFailed:    p.failed,
		TotalUnits:     p.totalUnits,
		BytesCompleted: p.bytes,
		TotalBytes:     p.totalBytes,
		Recent:         append([]string(nil), p.recent...),
	}
}
