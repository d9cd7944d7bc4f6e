package assessor

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type attemptGradings struct {
	mu      sync.Mutex
	next    int
	cancels map[int]context.CancelCauseFunc
	// cause is set once the entry has been cancelled and removed from the
	// registry; later adds are cancelled with it.
	cause error
}

// add registers cancel. It reports false, after calling cancel, when the
// entry was already cancelled.
func (g *attemptGradings) add(cancel context.CancelCauseFunc) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cause != nil {
		cancel(g.cause)
		return 0, false
	}
	id := g.next
	g.next++
	g.cancels[id] = cancel
	return id, true
}

func (g *attemptGradings) remove(id int) {
	g.mu.Lock()
	delete(g.cancels, id)
	g.mu.Unlock()
}

// inflight tracks the gradings running for each attempt so they can be
// stopped when the attempt expires or is abandoned.
type inflight struct {
	byAttempt *xsync.MapOf[string, *attemptGradings]
}

func newInflight() *inflight {
	return &inflight{byAttempt: xsync.NewMapOf[string, *attemptGradings]()}
}

// track derives a cancellable context for one grading of attemptID. The
// returned func must be called when the grading ends. A grading tracked
// while its attempt is being cancelled starts out cancelled.
func (f *inflight) track(ctx context.Context, attemptID string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	g, _ := f.byAttempt.LoadOrCompute(attemptID, func() *attemptGradings {
		return &attemptGradings{cancels: map[int]context.CancelCauseFunc{}}
	})
	id, ok := g.add(cancel)
	if !ok {
		return ctx, func() {}
	}
	return ctx, func() {
		g.remove(id)
		cancel(nil)
	}
}

// cancel stops every grading of attemptID with cause and returns how many
// were running.
func (f *inflight) cancel(attemptID string, cause error) int {
	g, ok := f.byAttempt.LoadAndDelete(attemptID)
	if !ok {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cause = cause
	for _, c := range g.cancels {
		c(cause)
	}
	n := len(g.cancels)
	clear(g.cancels)
	return n
}

func (f *inflight) running(attemptID string) int {
	g, ok := f.byAttempt.Load(attemptID)
	if !ok {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cancels)
}
