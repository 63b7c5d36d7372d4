package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
)

// reservation holds the declared bytes of an upload that are not on disk yet.
type reservation struct {
	id          string
	outstanding atomic.Int64
	coord       *Coordinator
	once        sync.Once
}

var _ port.Reservation = (*reservation)(nil)

func (r *reservation) Written(n int64) {
	for {
		cur := r.outstanding.Load()
		next := max(cur-n, 0)
		if r.outstanding.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (r *reservation) Release() {
	r.once.Do(func() {
		r.outstanding.Store(0)
		r.coord.resMu.Lock()
		defer r.coord.resMu.Unlock()
		if r.coord.reservations[r.id] == r {
			delete(r.coord.reservations, r.id)
		}
	})
}

// Reserve admits bytes for id when usage plus every outstanding reservation plus
// bytes fits the budget. Checks and inserts are serialized, so concurrent admissions
// cannot promise the same free space twice. With no budget configured the returned
// reservation only tracks.
func (c *Coordinator) Reserve(ctx context.Context, id string, bytes int64) (port.Reservation, error) {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	c.resMu.Lock()
	_, dup := c.reservations[id]
	c.resMu.Unlock()
	if dup {
		return nil, model.Errorf(model.CodeDuplicateID, "upload %s already holds a reservation", id)
	}

	if _, err := c.enforce(ctx, bytes); err != nil {
		return nil, err
	}

	r := &reservation{id: id, coord: c}
	r.outstanding.Store(bytes)
	c.resMu.Lock()
	c.reservations[id] = r
	c.resMu.Unlock()
	return r, nil
}

// reserved is the sum of bytes promised to uploads but not written yet.
func (c *Coordinator) reserved() int64 {
	c.resMu.Lock()
	defer c.resMu.Unlock()
	var total int64
	for _, r := range c.reservations {
		total += r.outstanding.Load()
	}
	return total
}
