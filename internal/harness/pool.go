package harness

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"
)

// Pool caps the number of sandboxed processes running at once across all
// submissions.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
	busy *xsync.Counter
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
		busy: xsync.NewCounter(),
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.busy.Inc()
	return nil
}

func (p *Pool) Release() {
	p.busy.Dec()
	p.sem.Release(1)
}

func (p *Pool) Size() int64 { return p.size }

// Busy is the number of slots currently held.
func (p *Pool) Busy() int64 { return p.busy.Value() }
