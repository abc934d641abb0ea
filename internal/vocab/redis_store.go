package vocab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps suggestions in a hash keyed by lower-cased word, with a
// sorted set ordering them by first sighting.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redisURL and checks it answers.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "vocab:",
	}
}

func (s *RedisStore) wordsKey() string  { return s.prefix + "words" }
func (s *RedisStore) recentKey() string { return s.prefix + "recent" }

// AddSuggestion stores s unless its word is already known.
func (s *RedisStore) AddSuggestion(ctx context.Context, sg Suggestion) error {
	key := sg.Key()
	if key == "" {
		return nil
	}
	if sg.CreatedAt.IsZero() {
		sg.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(sg)
	if err != nil {
		return fmt.Errorf("marshal suggestion: %w", err)
	}

	added, err := s.client.HSetNX(ctx, s.wordsKey(), key, payload).Result()
	if err != nil {
		return fmt.Errorf("save suggestion: %w", err)
	}
	if !added {
		return nil
	}
	err = s.client.ZAddNX(ctx, s.recentKey(), redis.Z{
		Score:  float64(sg.CreatedAt.UnixMilli()),
		Member: key,
	}).Err()
	if err != nil {
		return fmt.Errorf("index suggestion: %w", err)
	}
	return nil
}

// List returns up to limit suggestions, newest first.
func (s *RedisStore) List(ctx context.Context, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = 50
	}
	keys, err := s.client.ZRevRange(ctx, s.recentKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	if len(keys) == 0 {
		return []Suggestion{}, nil
	}
	values, err := s.client.HMGet(ctx, s.wordsKey(), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load suggestions: %w", err)
	}

	out := make([]Suggestion, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var sg Suggestion
		if err := json.Unmarshal([]byte(raw), &sg); err != nil {
			return nil, fmt.Errorf("unmarshal suggestion: %w", err)
		}
		out = append(out, sg)
	}
	return out, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
