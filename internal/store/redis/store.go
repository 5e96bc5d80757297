package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a record does not exist or is no longer visible.
var ErrNotFound = errors.New("not found")

// Store is the document store of the portfolio backend.
// Every collection lives under the folio: key space of one Redis database.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Ping checks that Redis answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Stats describes the size of the store for health metrics.
type Stats struct {
	Collections int // logical collections holding at least one record
}

// Stats counts non-empty collections.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(collectionKeys))
	for i, key := range collectionKeys {
		cmds[i] = pipe.Exists(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("failed to count collections: %w", err)
	}

	var st Stats
	for _, cmd := range cmds {
		if cmd.Val() > 0 {
			st.Collections++
		}
	}
	return st, nil
}

func hgetAll(ctx context.Context, c *redis.Client, key string) (map[string]string, error) {
	m, err := c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return m, nil
}
