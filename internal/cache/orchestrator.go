package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces the value for a key on a cache miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Orchestrator serves analysis results through the store, coalescing
// concurrent misses so at most one computation per key is in flight at any
// instant. Store failures degrade to direct computation: caching is an
// optimization, never a correctness dependency.
type Orchestrator struct {
	store         Store
	ttl           time.Duration
	maxEntryBytes int

	// group deduplicates in-flight computations per key. Entries are
	// forgotten when the flight lands, so a failure never poisons the key.
	group singleflight.Group
}

// NewOrchestrator creates an orchestrator over store. Results larger than
// maxEntryBytes are served but not cached.
func NewOrchestrator(store Store, ttl time.Duration, maxEntryBytes int) *Orchestrator {
	return &Orchestrator{store: store, ttl: ttl, maxEntryBytes: maxEntryBytes}
}

// Resolve returns the cached value for key, or runs compute exactly once
// across all concurrent callers and caches the result. A caller whose
// context ends while waiting abandons the wait; the computation itself
// continues for the remaining waiters.
func (o *Orchestrator) Resolve(ctx context.Context, key Key, compute ComputeFunc) ([]byte, error) {
	storeKey := key.String()

	if value, ok := o.lookup(ctx, storeKey); ok {
		return value, nil
	}

	ch := o.group.DoChan(storeKey, func() (interface{}, error) {
		// Double-check under the flight: another caller may have stored
		// the value between our miss and winning the flight.
		if value, ok := o.lookup(ctx, storeKey); ok {
			return value, nil
		}

		// Detach from the initiating caller so cancellation of one waiter
		// does not starve the others.
		value, err := compute(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		o.put(storeKey, value)
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lookup reads the store, treating store failure as a miss.
func (o *Orchestrator) lookup(ctx context.Context, storeKey string) ([]byte, bool) {
	value, ok, err := o.store.Get(ctx, storeKey)
	if err != nil {
		log.Warn().Err(err).Str("key", storeKey).Msg("cache read failed, degrading to direct computation")
		return nil, false
	}
	return value, ok
}

// put writes a computed value, skipping oversized results and tolerating
// store failure.
func (o *Orchestrator) put(storeKey string, value []byte) {
	if o.maxEntryBytes > 0 && len(value) > o.maxEntryBytes {
		log.Debug().Str("key", storeKey).Int("bytes", len(value)).
			Msg("result exceeds cache entry ceiling, serving uncached")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.Set(ctx, storeKey, value, o.ttl); err != nil {
		log.Warn().Err(err).Str("key", storeKey).Msg("cache write failed")
	}
}

// Invalidate removes a key, forcing the next Resolve to recompute.
func (o *Orchestrator) Invalidate(ctx context.Context, key Key) error {
	return o.store.Delete(ctx, key.String())
}
