package history

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"sanskara/internal/domain"
	"sanskara/internal/observe"
)

const defaultCacheCapacity = 100

// Fetcher loads a history page from its origin.
type Fetcher interface {
	Fetch(ctx context.Context, sessionID string, q domain.HistoryQuery) (domain.HistoryPage, error)
}

// Cache fronts a Fetcher with a bounded page cache. Entries are evicted in
// insertion order once capacity is reached; concurrent lookups for the same
// page share a single origin fetch. Failed fetches are never cached.
type Cache struct {
	fetcher  Fetcher
	capacity int

	mu      sync.Mutex
	entries map[string]domain.HistoryPage
	order   []string

	group singleflight.Group
}

func NewCache(fetcher Fetcher, capacity int) *Cache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &Cache{
		fetcher:  fetcher,
		capacity: capacity,
		entries:  make(map[string]domain.HistoryPage),
	}
}

// Get returns a cached page or fetches it from the origin.
func (c *Cache) Get(ctx context.Context, sessionID string, q domain.HistoryQuery) (domain.HistoryPage, error) {
	key := cacheKey(sessionID, q)

	c.mu.Lock()
	if page, ok := c.entries[key]; ok {
		c.mu.Unlock()
		observe.IncCacheLookup("hit")
		return page, nil
	}
	c.mu.Unlock()
	observe.IncCacheLookup("miss")

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		page, err := c.fetcher.Fetch(ctx, sessionID, q)
		if err != nil {
			return nil, err
		}
		c.put(key, page)
		return page, nil
	})
	if err != nil {
		return domain.HistoryPage{}, err
	}
	return v.(domain.HistoryPage), nil
}

// Invalidate drops every cached page for a session. Called when the realtime
// channel reconnects, since the backend may have recorded events in between.
func (c *Cache) Invalidate(sessionID string) {
	prefix := sessionID + "|"

	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.order[:0]
	for _, key := range c.order {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
}

func (c *Cache) put(key string, page domain.HistoryPage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = page
		return
	}
	for len(c.entries) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = page
	c.order = append(c.order, key)
}

// cacheKey is stable across equivalent queries: filter types are sorted so
// ordering differences do not split cache entries.
func cacheKey(sessionID string, q domain.HistoryQuery) string {
	types := append([]string(nil), q.EventTypes...)
	sort.Strings(types)

	var b strings.Builder
	b.WriteString(sessionID)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(q.Offset))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(q.Limit))
	b.WriteByte('|')
	b.WriteString(q.StartDate)
	b.WriteByte('|')
	b.WriteString(q.EndDate)
	b.WriteByte('|')
	b.WriteString(strings.Join(types, ","))
	return b.String()
}
