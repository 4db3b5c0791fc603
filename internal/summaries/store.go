package summaries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/feedlog/backend/internal/feeding"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a cached summary list is served without a reload.
	DefaultTTL = 5 * time.Minute

	redisKey         = "feedlog:food_summaries"
	redisPingTimeout = 5 * time.Second
)

// Store holds one cached list of food summaries.
type Store interface {
	Get(ctx context.Context) ([]feeding.FoodSummary, bool, error)
	Set(ctx context.Context, summaries []feeding.FoodSummary) error
	Invalidate(ctx context.Context) error
}

// MemoryStore keeps the summaries in process.
type MemoryStore struct {
	mu        sync.RWMutex
	ttl       time.Duration
	clock     func() time.Time
	entries   []feeding.FoodSummary
	expiresAt time.Time
	present   bool
}

// NewMemoryStore constructs an in-process store. A non-positive ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration, clock func() time.Time) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{ttl: ttl, clock: clock}
}

func (s *MemoryStore) Get(context.Context) ([]feeding.FoodSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present || !s.clock().Before(s.expiresAt) {
		return nil, false, nil
	}
	return append([]feeding.FoodSummary(nil), s.entries...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, summaries []feeding.FoodSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]feeding.FoodSummary(nil), summaries...)
	s.expiresAt = s.clock().Add(s.ttl)
	s.present = true
	return nil
}

func (s *MemoryStore) Invalidate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.present = false
	return nil
}

// RedisStore keeps the summaries as one JSON value shared by every API instance.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", options.Addr, err)
	}
	return client, nil
}

// NewRedisStore wraps an existing client. A non-positive ttl uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Get(ctx context.Context) ([]feeding.FoodSummary, bool, error) {
	payload, err := s.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var summaries []feeding.FoodSummary
	if err := json.Unmarshal(payload, &summaries); err != nil {
		return nil, false, fmt.Errorf("decode cached summaries: %w", err)
	}
	return summaries, true, nil
}

func (s *RedisStore) Set(ctx context.Context, summaries []feeding.FoodSummary) error {
	if summaries == nil {
		summaries = []feeding.FoodSummary{}
	}
	payload, err := json.Marshal(summaries)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey, payload, s.ttl).Err()
}

func (s *RedisStore) Invalidate(ctx context.Context) error {
	return s.client.Del(ctx, redisKey).Err()
}
