package handler

import (
	"sync"
	"time"

	"github.com/dailysend/internal/dispatch"
)

// finishedRetention is how long an ended pass stays visible.
const finishedRetention = 24 * time.Hour

// Run is a pass started from the web form.
type Run struct {
	ID      string
	Started time.Time
	Pass    *dispatch.Pass
}

// Registry holds the passes started by this process, for display only.
// Nothing survives a restart.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*Run
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		runs: make(map[string]*Run),
		now:  time.Now,
	}
}

// Add records p under id and drops passes that ended long ago.
func (reg *Registry) Add(id string, p *dispatch.Pass) *Run {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	now := reg.now()
	for k, run := range reg.runs {
		if _, done := run.Pass.Result(); done && now.Sub(run.Started) > finishedRetention {
			delete(reg.runs, k)
		}
	}

	run := &Run{ID: id, Started: now, Pass: p}
	reg.runs[id] = run
	return run
}

func (reg *Registry) Get(id string) (*Run, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	run, ok := reg.runs[id]
	return run, ok
}

// Active returns the number of passes still running.
func (reg *Registry) Active() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	n := 0
	for _, run := range reg.runs {
		if _, done := run.Pass.Result(); !done {
			n++
		}
	}
	return n
}
