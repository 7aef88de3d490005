package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"wedding-sync-server/internal/domain"
)

// DedupStore is a short-lived idempotency window keyed by operation id.
// A hit means the operation was already applied and the cached result must
// be returned without touching the repositories again.
type DedupStore interface {
	Get(ctx context.Context, operationID string) (*domain.OperationResult, bool, error)
	Set(ctx context.Context, operationID string, result *domain.OperationResult) error
}

const dedupKeyPrefix = "sync:op:"

type redisDedupStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDedupStore(client *redis.Client, ttl time.Duration) DedupStore {
	return &redisDedupStore{client: client, ttl: ttl}
}

func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func (s *redisDedupStore) Get(ctx context.Context, operationID string) (*domain.OperationResult, bool, error) {
	raw, err := s.client.Get(ctx, dedupKeyPrefix+operationID).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("dedup lookup for %s: %w", operationID, err)
	}

	var result domain.OperationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("decoding cached result for %s: %w", operationID, err)
	}
	return &result, true, nil
}

func (s *redisDedupStore) Set(ctx context.Context, operationID string, result *domain.OperationResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result for %s: %w", operationID, err)
	}
	if err := s.client.Set(ctx, dedupKeyPrefix+operationID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("caching result for %s: %w", operationID, err)
	}
	return nil
}

type memoryDedupEntry struct {
	result    *domain.OperationResult
	expiresAt time.Time
}

// MemoryDedupStore keeps the idempotency window in process memory. Used
// when Redis is disabled and in tests.
type MemoryDedupStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryDedupEntry
}

func NewMemoryDedupStore(ttl time.Duration) *MemoryDedupStore {
	return &MemoryDedupStore{
		ttl:     ttl,
		entries: make(map[string]memoryDedupEntry),
	}
}

func (s *MemoryDedupStore) Get(ctx context.Context, operationID string) (*domain.OperationResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[operationID]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, operationID)
		return nil, false, nil
	}
	return entry.result, true, nil
}

func (s *MemoryDedupStore) Set(ctx context.Context, operationID string, result *domain.OperationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Opportunistic sweep keeps the map from growing unbounded.
	now := time.Now()
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
		}
	}

	s.entries[operationID] = memoryDedupEntry{
		result:    result,
		expiresAt: now.Add(s.ttl),
	}
	return nil
}
