// Package progress defines the event contract between the run engine and
// whatever renders its progress. The engine never talks to a terminal; it
// reports stages and task progress to an Observer.
package progress

// Stage identifies a top-level step of an operation, e.g. "[2/5] Waiting".
type Stage struct {
	Index int // 1-based
	Total int
	Name  string
}

// Observer receives progress events. Implementations must be safe for
// concurrent use: uploads and downloads report from worker goroutines.
type Observer interface {
	// OnStage marks the start of a new stage.
	OnStage(s Stage)
	// OnStart announces a task and its total units (bytes or items).
	OnStart(task string, total int64)
	// OnProgress reports units completed since the previous event.
	OnProgress(task string, delta int64)
	// OnDone marks task as finished.
	OnDone(task string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) OnStage(Stage)            {}
func (Nop) OnStart(string, int64)    {}
func (Nop) OnProgress(string, int64) {}
func (Nop) OnDone(string)            {}

// OrNop returns o, or Nop when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}

// Stages hands out consecutive stage ordinals for an operation with a
// known number of stages.
type Stages struct {
	obs   Observer
	total int
	next  int
}

// NewStages returns a counter that reports total stages to obs.
func NewStages(obs Observer, total int) *Stages {
	return &Stages{obs: OrNop(obs), total: total}
}

// Begin emits the next stage with name.
func (s *Stages) Begin(name string) {
	s.next++
	s.obs.OnStage(Stage{Index: s.next, Total: s.total, Name: name})
}
