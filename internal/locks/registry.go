// Package locks provides named, TTL-bounded advisory locks keyed by entity
// identity. Acquire is atomic compare-and-set; locks never nest.
package locks

import (
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultTTL bounds a lock's lifetime when the caller has no better
// estimate; the download pipeline passes its own upper bound.
const DefaultTTL = 30 * time.Minute

// ErrLocked is returned when the key is held and unexpired
var ErrLocked = errors.New("lock already held")

// Registry is the advisory lock registry. All worker goroutines in the
// process share one Registry; the go-cache store expires entries at their
// TTL so a dead worker's lock clears itself.
type Registry struct {
	store *cache.Cache
}

// NewRegistry creates a lock registry
func NewRegistry() *Registry {
	return &Registry{
		store: cache.New(DefaultTTL, time.Minute),
	}
}

// Acquire atomically takes the key for ttl. Returns ErrLocked when the key
// is present and unexpired.
func (r *Registry) Acquire(key string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := r.store.Add(key, struct{}{}, ttl); err != nil {
		return ErrLocked
	}
	return nil
}

// Release frees the key. Releasing an expired or absent key is a no-op.
func (r *Registry) Release(key string) {
	r.store.Delete(key)
}

// IsLocked reports whether the key is held and unexpired
func (r *Registry) IsLocked(key string) bool {
	_, held := r.store.Get(key)
	return held
}

// ObjectKey builds the lock key for an entity identity
func ObjectKey(entityType string, id uint64) string {
	return fmt.Sprintf("%s:%d", entityType, id)
}

// LockObject takes the entity lock
func (r *Registry) LockObject(entityType string, id uint64, ttl time.Duration) error {
	return r.Acquire(ObjectKey(entityType, id), ttl)
}

// UnlockObject frees the entity lock
func (r *Registry) UnlockObject(entityType string, id uint64) {
	r.Release(ObjectKey(entityType, id))
}

// IsObjectLocked reports whether the entity lock is held
func (r *Registry) IsObjectLocked(entityType string, id uint64) bool {
	return r.IsLocked(ObjectKey(entityType, id))
}
