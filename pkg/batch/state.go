package batch

import (
	"sync/atomic"
	"time"
)

// State is the progress shared by all workers of one run
type State struct {
	total     int
	processed atomic.Int64
	start     time.Time
	now       func() time.Time

	// slots[w] holds the unit worker w is working on
	slots []atomic.Value
}

// NewState creates the state for total units and the given worker count
func NewState(total, workers int) *State {
	return newStateAt(total, workers, time.Now)
}

func newStateAt(total, workers int, now func() time.Time) *State {
	return &State{
		total: total,
		start: now(),
		now:   now,
		slots: make([]atomic.Value, max(workers, 0)),
	}
}

// Total returns the number of units in the run
func (s *State) Total() int {
	return s.total
}

// Increment marks one unit finished and returns the new processed count
func (s *State) Increment() int {
	return int(s.processed.Add(1))
}

// Processed returns the number of finished units
func (s *State) Processed() int {
	return int(s.processed.Load())
}

// Progress returns the finished fraction in [0, 1]. An empty run is complete.
func (s *State) Progress() float64 {
	if s.total == 0 {
		return 1
	}
	return min(float64(s.Processed())/float64(s.total), 1)
}

// Elapsed returns the time since the run started
func (s *State) Elapsed() time.Duration {
	return s.now().Sub(s.start)
}

// ItemsPerSecond returns the average throughput so far
func (s *State) ItemsPerSecond() float64 {
	secs := s.Elapsed().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Processed()) / secs
}

// ETA estimates the remaining time from the average throughput. It is zero
// when nothing has finished yet or the run is complete.
func (s *State) ETA() time.Duration {
	done := s.Processed()
	if done == 0 || done >= s.total {
		return 0
	}
	perItem := s.Elapsed() / time.Duration(done)
	return perItem * time.Duration(s.total-done)
}

// SetSlot records what worker is processing. Out of range workers are ignored.
func (s *State) SetSlot(worker int, label string) {
	if worker >= 0 && worker < len(s.slots) {
		s.slots[worker].Store(label)
	}
}

// Slot returns what worker is processing, or "" when idle
func (s *State) Slot(worker int) string {
	if worker < 0 || worker >= len(s.slots) {
		return ""
	}
	label, _ := s.slots[worker].Load().(string)
	return label
}
