package auction

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// keyedLocker hands out one exclusive lock per auction id. Different ids
// never contend. A lock is a one-slot channel so that waiting honours ctx.
type keyedLocker struct {
	slots *xsync.MapOf[string, chan struct{}]
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{slots: xsync.NewMapOf[string, chan struct{}]()}
}

func (l *keyedLocker) lock(ctx context.Context, id string) (func(), error) {
	slot, _ := l.slots.LoadOrCompute(id, func() chan struct{} { return make(chan struct{}, 1) })
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// forget drops the slot of a purged auction.
func (l *keyedLocker) forget(id string) {
	l.slots.Delete(id)
}
