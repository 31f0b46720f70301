// Package cache provides the TTL-bounded key/value store the decision engine
// memoizes definitive results in. The interface is uniform across a
// process-local map and a networked Valkey/Redis backend; expiry is the
// backend's responsibility, honored through the TTL passed to Set.
package cache

import (
	"context"
	"time"
)

// Store is the engine-facing cache abstraction. A legitimate miss is
// (found=false, err=nil); a non-nil error signals a backend fault the caller
// must treat as a miss for reads and a no-op for writes, never as a cached
// negative.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close(ctx context.Context) error
}
