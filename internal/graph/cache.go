package graph

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CachedRepository keeps immutable sector rows in memory in front of a slower
// Repository. A singleflight.Group prevents duplicate in-flight fetches for
// the same set of missing ids. Port codes are never cached.
type CachedRepository struct {
	next  Repository
	limit int

	mu    sync.RWMutex
	rows  map[int]*Sector
	order []int // insertion order for FIFO eviction
	group singleflight.Group
}

// NewCachedRepository wraps next with a cache holding at most limit rows.
func NewCachedRepository(next Repository, limit int) *CachedRepository {
	return &CachedRepository{
		next:  next,
		limit: limit,
		rows:  make(map[int]*Sector),
	}
}

// Unwrap returns the wrapped repository.
func (c *CachedRepository) Unwrap() Repository { return c.next }

// Len returns the number of cached rows.
func (c *CachedRepository) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rows)
}

// FetchSectors implements Repository.
func (c *CachedRepository) FetchSectors(ctx context.Context, ids []int) (map[int]*Sector, error) {
	out := make(map[int]*Sector, len(ids))
	var missing []int
	c.mu.RLock()
	for _, id := range ids {
		if s, ok := c.rows[id]; ok {
			out[id] = s
		} else {
			missing = append(missing, id)
		}
	}
	c.mu.RUnlock()
	if len(missing) == 0 {
		return out, nil
	}

	missing = uniqueInts(missing...)
	sort.Ints(missing)
	// The shared fetch outlives any single caller's cancellation; each caller
	// stops waiting on its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(sectorKey(missing), func() (interface{}, error) {
		rows, err := c.next.FetchSectors(shared, missing)
		if err != nil {
			return nil, err
		}
		c.store(rows)
		return rows, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	for id, s := range res.Val.(map[int]*Sector) {
		out[id] = s
	}
	return out, nil
}

// FetchSectorsInBounds implements Repository. Results populate the row cache.
func (c *CachedRepository) FetchSectorsInBounds(ctx context.Context, center World, radius float64) (map[int]*Sector, error) {
	rows, err := c.next.FetchSectorsInBounds(ctx, center, radius)
	if err != nil {
		return nil, err
	}
	c.store(rows)
	return rows, nil
}

// FetchPortCodes implements Repository.
func (c *CachedRepository) FetchPortCodes(ctx context.Context, ids []int) (map[int]string, error) {
	return c.next.FetchPortCodes(ctx, ids)
}

func (c *CachedRepository) store(rows map[int]*Sector) {
	if c.limit <= 0 || len(rows) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range rows {
		if _, ok := c.rows[id]; ok {
			continue
		}
		c.rows[id] = s
		c.order = append(c.order, id)
	}
	for len(c.order) > c.limit {
		delete(c.rows, c.order[0])
		c.order = c.order[1:]
	}
}

func sectorKey(ids []int) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}
