package batch

import (
	"sync"

	"cardpress/internal/render"
)

// State is the lifecycle of a Runner.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Terminal reports whether no further records will be processed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Result is the outcome of one record. Exactly one of Data and Error is set,
// selected by Success.
type Result struct {
	Index    int              `json:"index"`
	Filename string           `json:"filename"`
	Success  bool             `json:"success"`
	Data     []byte           `json:"-"`
	Error    string           `json:"error,omitempty"`
	Warnings []render.Warning `json:"warnings,omitempty"`
}

// Outcome collects one Result per processed record, in input order.
type Outcome struct {
	Results    []Result `json:"results"`
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	State      State    `json:"state"`
	ArchiveRef string   `json:"archive_ref,omitempty"`
}

// Processed is the number of records with a result.
func (o *Outcome) Processed() int { return len(o.Results) }

// Succeeded returns the successful results in order.
func (o *Outcome) Succeeded() []Result {
	out := make([]Result, 0, o.Successful)
	for _, r := range o.Results {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

// Progress is a point-in-time view of a run.
type Progress struct {
	State      State `json:"state"`
	Processed  int   `json:"processed"`
	Total      int   `json:"total"`
	Successful int   `json:"successful"`
	Failed     int   `json:"failed"`
}

// Percent returns completion in the range 0 to 100.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Processed) / float64(p.Total) * 100
}

// tracker guards the counters read by Runner.Progress while a run is live.
type tracker struct {
	mu sync.RWMutex
	p  Progress
}

func (t *tracker) set(fn func(p *Progress)) Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.p)
	return t.p
}

func (t *tracker) snapshot() Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.p
}
