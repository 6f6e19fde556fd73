package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-leaderboard-service/internal/domain"
)

// SlotLister is the read side of a slot store.
type SlotLister interface {
	ListSlots(ctx context.Context, bookID string) ([]domain.Slot, error)
}

// LeaderboardCache caches display reads with a TTL to avoid hitting the store
// on every page view. Concurrent misses for one book share a single load.
type LeaderboardCache struct {
	source SlotLister
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedSlots
}

type cachedSlots struct {
	slots     []domain.Slot
	expiresAt time.Time
}

func NewLeaderboardCache(source SlotLister, ttl time.Duration) *LeaderboardCache {
	return newLeaderboardCacheWithClock(source, ttl, time.Now)
}

func newLeaderboardCacheWithClock(source SlotLister, ttl time.Duration, clock func() time.Time) *LeaderboardCache {
	return &LeaderboardCache{
		source: source,
		ttl:    ttl,
		clock:  clock,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSlots),
	}
}

func (c *LeaderboardCache) ListSlots(ctx context.Context, bookID string) ([]domain.Slot, error) {
	if slots, ok := c.lookup(bookID); ok {
		return slots, nil
	}

	result, err, _ := c.sf.Do(bookID, func() (interface{}, error) {
		if slots, ok := c.lookup(bookID); ok {
			return slots, nil
		}
		now := c.clock()
		slots, err := c.source.ListSlots(ctx, bookID)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			c.mu.Lock()
			c.cache[bookID] = cachedSlots{slots: slots, expiresAt: now.Add(c.ttlWithJitter())}
			c.mu.Unlock()
		}
		return slots, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneSlots(result.([]domain.Slot)), nil
}

// Invalidate drops the cached slots of bookID.
func (c *LeaderboardCache) Invalidate(bookID string) {
	c.mu.Lock()
	delete(c.cache, bookID)
	c.mu.Unlock()
	c.sf.Forget(bookID)
}

func (c *LeaderboardCache) lookup(bookID string) ([]domain.Slot, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[bookID]
	if !ok || !entry.expiresAt.After(now) {
		return nil, false
	}
	return cloneSlots(entry.slots), true
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations; caller holds c.mu
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
