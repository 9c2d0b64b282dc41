package bot

import (
	"context"
	"sync"
)

// Deduper reports whether an update id is seen for the first time.
type Deduper interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
}

// MemoryDeduper remembers the last capacity keys.
type MemoryDeduper struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	next     int
	capacity int
}

func NewMemoryDeduper(capacity int) *MemoryDeduper {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryDeduper{
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	if len(d.order) < d.capacity {
		d.order = append(d.order, key)
	} else {
		// ring buffer: evict the oldest key
		delete(d.seen, d.order[d.next])
		d.order[d.next] = key
		d.next = (d.next + 1) % d.capacity
	}
	d.seen[key] = struct{}{}
	return true, nil
}
