package content

import (
	"context"
	"time"

	"github.com/programme-lv/assessor/internal/domain"
	"github.com/puzpuzpuz/xsync/v3"
)

type entry[T any] struct {
	val     *T
	fetched time.Time
}

// Cached keeps content fetched from an underlying store for ttl. A zero
// ttl keeps entries until Invalidate.
type Cached struct {
	next     Store
	ttl      time.Duration
	now      func() time.Time
	problems *xsync.MapOf[string, entry[domain.Problem]]
	tests    *xsync.MapOf[string, entry[domain.Test]]
}

func NewCached(next Store, ttl time.Duration) *Cached {
	return &Cached{
		next:     next,
		ttl:      ttl,
		now:      time.Now,
		problems: xsync.NewMapOf[string, entry[domain.Problem]](),
		tests:    xsync.NewMapOf[string, entry[domain.Test]](),
	}
}

func (c *Cached) fresh(fetched time.Time) bool {
	return c.ttl <= 0 || c.now().Sub(fetched) < c.ttl
}

func (c *Cached) Problem(ctx context.Context, id string) (*domain.Problem, error) {
	if e, ok := c.problems.Load(id); ok && c.fresh(e.fetched) {
		return e.val, nil
	}
	p, err := c.next.Problem(ctx, id)
	if err != nil {
		return nil, err
	}
	c.problems.Store(id, entry[domain.Problem]{val: p, fetched: c.now()})
	return p, nil
}

func (c *Cached) Test(ctx context.Context, id string) (*domain.Test, error) {
	if e, ok := c.tests.Load(id); ok && c.fresh(e.fetched) {
		return e.val, nil
	}
	t, err := c.next.Test(ctx, id)
	if err != nil {
		return nil, err
	}
	c.tests.Store(id, entry[domain.Test]{val: t, fetched: c.now()})
	return t, nil
}

// Invalidate drops any cached problem or test with this id.
func (c *Cached) Invalidate(id string) {
	c.problems.Delete(id)
	c.tests.Delete(id)
}
