package evidence

import (
	"context"
	"sync"
	"time"

	"github.com/lcalzada-xor/presenced/internal/core/ports"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

type setEntry struct {
	members   map[string]struct{}
	expiresAt time.Time
}

// MemoryStore implements ports.EvidenceStore with an in-process TTL map.
// It backs tests and mock mode; production deployments use the redis
// adapter. Expired entries are dropped lazily on read and swept by the
// janitor when started.
type MemoryStore struct {
	mu    sync.RWMutex
	clock ports.Clock
	items map[string]entry
	sets  map[string]setEntry
}

// NewMemoryStore creates an empty store using the given clock.
func NewMemoryStore(clock ports.Clock) *MemoryStore {
	return &MemoryStore{
		clock: clock,
		items: make(map[string]entry),
		sets:  make(map[string]setEntry),
	}
}

// StartJanitor sweeps expired entries until the context is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *MemoryStore) sweep() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.items {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.items, k)
		}
	}
	for k, e := range s.sets {
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(s.sets, k)
		}
	}
}

func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = entry{value: append([]byte(nil), value...), expiresAt: s.deadline(ttl)}
	return nil
}

func (s *MemoryStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[key]; ok && s.live(e.expiresAt) {
		return false, nil
	}
	s.items[key] = entry{value: append([]byte(nil), value...), expiresAt: s.deadline(ttl)}
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || !s.live(e.expiresAt) {
		return nil, ports.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (s *MemoryStore) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) AppendSetMember(ctx context.Context, key, member string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sets[key]
	if !ok || !s.live(e.expiresAt) {
		e = setEntry{members: make(map[string]struct{})}
	}
	e.members[member] = struct{}{}
	e.expiresAt = s.deadline(ttl)
	s.sets[key] = e
	return nil
}

func (s *MemoryStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sets[key]
	if !ok || !s.live(e.expiresAt) {
		return nil, nil
	}
	members := make([]string, 0, len(e.members))
	for m := range e.members {
		members = append(members, m)
	}
	return members, nil
}

func (s *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(ttl)
}

func (s *MemoryStore) live(expiresAt time.Time) bool {
	return expiresAt.IsZero() || s.clock.Now().Before(expiresAt)
}
