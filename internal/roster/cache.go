package roster

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cache keeps the last successfully fetched roster per section so the
// scanner can keep working when the backend is unreachable.
type Cache struct {
	c   *ristretto.Cache
	ttl time.Duration
}

func NewCache(ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, ttl: ttl}, nil
}

// Put stores entries for sectionID. Cost is the number of students.
func (c *Cache) Put(sectionID string, entries []Entry) {
	if c == nil {
		return
	}
	cp := append([]Entry(nil), entries...)
	cost := int64(len(cp))
	if cost == 0 {
		cost = 1
	}
	if c.ttl > 0 {
		c.c.SetWithTTL(sectionID, cp, cost, c.ttl)
	} else {
		c.c.Set(sectionID, cp, cost)
	}
	c.c.Wait()
}

func (c *Cache) Get(sectionID string) ([]Entry, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.c.Get(sectionID)
	if !ok {
		return nil, false
	}
	entries, ok := v.([]Entry)
	return entries, ok
}

func (c *Cache) Close() {
	if c != nil {
		c.c.Close()
	}
}
