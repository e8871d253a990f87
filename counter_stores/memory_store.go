package counter_stores

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/kpumuk/throttling"
)

var (
	_ throttling.Store = &MemoryStore{}
)

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process counter store.
//
// It is safe for concurrent use, but counts are local to the process. Use
// the Redis store when several instances must share one budget.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore using now as its clock.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     now,
	}
}

// Fetch returns the value at key, storing def with the given expiry if the
// key is absent or expired.
func (m *MemoryStore) Fetch(ctx context.Context, key string, expiresIn time.Duration, def string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.live(key); e != nil {
		return e.value, nil
	}

	e := &entry{value: def}
	if expiresIn > 0 {
		e.expiresAt = m.now().Add(expiresIn)
	}
	m.entries[key] = e

	return def, nil
}

// Increment adds one to the value at key, creating it at 1 without expiry
// when absent. A non-numeric value restarts at 1.
func (m *MemoryStore) Increment(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		m.entries[key] = &entry{value: "1"}
		return nil
	}

	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		n = 0
	}
	e.value = strconv.FormatInt(n+1, 10)

	return nil
}

// Len returns the number of live keys.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key := range m.entries {
		if m.live(key) != nil {
			n++
		}
	}
	return n
}

// live returns the unexpired entry at key, evicting it if expired.
// Callers must hold m.mu.
func (m *MemoryStore) live(key string) *entry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}
