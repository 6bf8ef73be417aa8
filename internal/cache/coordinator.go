package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mkohlmann/cadence/internal/logger"
	"golang.org/x/sync/singleflight"
)

// Common errors
var (
	ErrFetchTimeout = errors.New("fetch timed out")
)

// FetchOptions tunes a single coordinated fetch
type FetchOptions struct {
	TTL          time.Duration // cache duration for a successful result
	ForceRefresh bool          // skip the cache read, still populates it on success
	Timeout      time.Duration // zero means no timeout
}

// Coordinator wraps fetch operations with read-through caching, in-flight
// de-duplication, and timeout handling. Concurrent fetches for the same key
// share one producer call; the pending slot is released on settlement whether
// the producer succeeded or failed, so a transient failure never poisons the
// key.
type Coordinator struct {
	store *Store
	group singleflight.Group
}

// NewCoordinator creates a coordinator backed by the given store
func NewCoordinator(store *Store) *Coordinator {
	return &Coordinator{store: store}
}

// Fetch resolves key through the cache, then through a de-duplicated producer
// call. The producer's error propagates to every caller sharing the flight.
//
// A timeout abandons the shared call but does not cancel it: the in-flight
// producer keeps running and its late result is dropped by the abandoning
// caller. This mirrors transports that lack cancellation; producers that can
// honor ctx should do so themselves.
func (c *Coordinator) Fetch(ctx context.Context, key string, opts FetchOptions, producer func(ctx context.Context) (any, error)) (any, error) {
	if !opts.ForceRefresh {
		if value, ok := c.store.Get(key); ok {
			return value, nil
		}
	}

	resultChan := c.group.DoChan(key, func() (any, error) {
		value, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		if opts.TTL > 0 {
			c.store.Set(key, value, opts.TTL)
		}
		return value, nil
	})

	var timeoutChan <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeoutChan = timer.C
	}

	select {
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	case <-timeoutChan:
		logger.Log.Warn().
			Str("key", key).
			Dur("timeout", opts.Timeout).
			Msg("Coordinated fetch timed out")
		return nil, fmt.Errorf("fetch %q: %w", key, ErrFetchTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops any cached value for key. In-flight fetches are unaffected.
func (c *Coordinator) Invalidate(key string) {
	c.store.Remove(key)
}
