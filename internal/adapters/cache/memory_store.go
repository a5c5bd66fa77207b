package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// MemoryStore keeps entries in process. Used when no redis is deployed.
type MemoryStore struct {
	cache *ristretto.Cache
	// serializes SetIfAbsent so the presence check and the write are not interleaved
	mu sync.Mutex
}

func NewMemoryStore(maxItems int64) (*MemoryStore, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10 * maxItems,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create quote cache failed: %w", err)
	}
	return &MemoryStore{cache: c}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	data, ok := v.([]byte)
	return data, ok, nil
}

func (s *MemoryStore) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache.Get(key); ok {
		return false, nil
	}
	stored := s.cache.SetWithTTL(key, value, 1, ttl)
	// make the entry visible to the next Get
	s.cache.Wait()
	return stored, nil
}

func (s *MemoryStore) Close() { s.cache.Close() }
