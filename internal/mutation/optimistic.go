package mutation

import (
	"context"

	"github.com/aromabay/storefront/internal/cache"
)

// Optimistic applies a mutation's predicted end-state to the cache before
// the round-trip completes, and undoes it if the call fails.
//
// Begin/Commit/Rollback slot into an Executor's OnMutate/OnSuccess/OnError.
type Optimistic struct {
	Cache *cache.Layer

	// Keys are every cache entry the prediction touches.
	Keys []cache.QueryKey

	// Apply writes the predicted end-state. Collection rewrites go through
	// Layer.Swap so readers never observe a partial transition.
	Apply func(l *cache.Layer)
}

// Begin cancels in-flight refetches for the affected keys, snapshots their
// current state, and applies the prediction. The returned snapshot is the
// OnMutate result handed to Rollback via OnError.
func (o Optimistic) Begin(ctx context.Context) []cache.SnapshotEntry {
	o.Cache.CancelInFlight(o.Keys...)
	snap := o.Cache.Snapshot(o.Keys...)
	o.Apply(o.Cache)
	return snap
}

// Commit marks the affected keys stale so the optimistic guess is
// reconciled with server truth; the prediction never stays authoritative.
func (o Optimistic) Commit(ctx context.Context) {
	o.Cache.Invalidate(ctx, o.Keys...)
}

// Rollback restores the Begin snapshot verbatim. The cache is not
// invalidated here: the pre-mutation state is still presumed good.
func (o Optimistic) Rollback(onMutateResult any) {
	snap, ok := onMutateResult.([]cache.SnapshotEntry)
	if !ok || snap == nil {
		return
	}
	o.Cache.Restore(snap)
}
