// Package summary caches per-section daily attendance counts for the
// dashboard. The worker refreshes entries as records change; the API
// reads through to the database on a miss.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"qrattend/internal/attendance"
)

// Store holds computed summaries.
type Store interface {
	Get(ctx context.Context, sectionID, day string) (attendance.Summary, bool, error)
	Put(ctx context.Context, s attendance.Summary) error
}

// Source computes a summary from the system of record.
type Source interface {
	Summary(ctx context.Context, sectionID, date string) (attendance.Summary, error)
}

func key(sectionID, day string) string {
	return "attendance:summary:" + sectionID + ":" + day
}

// RedisStore keeps summaries as JSON strings with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, sectionID, day string) (attendance.Summary, bool, error) {
	data, err := s.client.Get(ctx, key(sectionID, day)).Bytes()
	if errors.Is(err, redis.Nil) {
		return attendance.Summary{}, false, nil
	}
	if err != nil {
		return attendance.Summary{}, false, err
	}
	var sum attendance.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return attendance.Summary{}, false, fmt.Errorf("decode summary: %w", err)
	}
	return sum, true, nil
}

func (s *RedisStore) Put(ctx context.Context, sum attendance.Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key(sum.SectionID, sum.Date), data, s.ttl).Err()
}

// MemoryStore is a map-backed Store for dev and tests.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]attendance.Summary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]attendance.Summary)}
}

func (s *MemoryStore) Get(_ context.Context, sectionID, day string) (attendance.Summary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.m[key(sectionID, day)]
	return sum, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, sum attendance.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key(sum.SectionID, sum.Date)] = sum
	return nil
}

// Cached reads from store and falls back to src, writing the result back.
// A failing store is treated as a miss.
func Cached(ctx context.Context, store Store, src Source, sectionID, day string) (attendance.Summary, error) {
	if sum, ok, err := store.Get(ctx, sectionID, day); err == nil && ok {
		return sum, nil
	}
	sum, err := src.Summary(ctx, sectionID, day)
	if err != nil {
		return attendance.Summary{}, err
	}
	_ = store.Put(ctx, sum)
	return sum, nil
}

// Refresh recomputes the summary for sectionID/day and stores it.
func Refresh(ctx context.Context, store Store, src Source, sectionID, day string) (attendance.Summary, error) {
	sum, err := src.Summary(ctx, sectionID, day)
	if err != nil {
		return attendance.Summary{}, err
	}
	if err := store.Put(ctx, sum); err != nil {
		return attendance.Summary{}, fmt.Errorf("store summary: %w", err)
	}
	return sum, nil
}
