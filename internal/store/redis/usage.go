package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// usageEntry is the log member of one completion. The ID keeps identical
// entries from collapsing in the sorted set.
type usageEntry struct {
	ID string `json:"id"`
	domain.LLMUsage
}

// RecordLLMUsage adds a completion to the per-model totals and the usage log.
func (s *Store) RecordLLMUsage(ctx context.Context, u domain.LLMUsage) error {
	data, err := json.Marshal(usageEntry{ID: uuid.NewString(), LLMUsage: u})
	if err != nil {
		return fmt.Errorf("failed to marshal usage: %w", err)
	}

	key := LLMModelKey(u.Model)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, KeyLLMModels, u.Model)
		pipe.HSet(ctx, key, "model", u.Model)
		pipe.HIncrBy(ctx, key, "prompt_tokens", u.PromptTokens)
		pipe.HIncrBy(ctx, key, "completion_tokens", u.CompletionTokens)
		pipe.HIncrBy(ctx, key, "total_tokens", u.TotalTokens)
		pipe.HIncrBy(ctx, key, "requests", 1)
		pipe.ZAdd(ctx, KeyLLMLog, redis.Z{Score: score(u.Timestamp), Member: string(data)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// ModelUsage returns the running totals of every model seen.
func (s *Store) ModelUsage(ctx context.Context) ([]domain.ModelUsage, error) {
	models, err := s.client.SMembers(ctx, KeyLLMModels).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	hashes, err := s.hashes(ctx, models, LLMModelKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load model usage: %w", err)
	}

	out := make([]domain.ModelUsage, 0, len(models))
	for _, m := range hashes {
		out = append(out, domain.ModelUsage{
			Model:            m["model"],
			PromptTokens:     parseInt(m["prompt_tokens"]),
			CompletionTokens: parseInt(m["completion_tokens"]),
			TotalTokens:      parseInt(m["total_tokens"]),
			Requests:         parseInt(m["requests"]),
		})
	}
	return out, nil
}

// LLMUsageSince returns the usage log entries at or after since, oldest first.
func (s *Store) LLMUsageSince(ctx context.Context, since time.Time) ([]domain.LLMUsage, error) {
	raw, err := s.client.ZRangeByScore(ctx, KeyLLMLog, &redis.ZRangeBy{Min: scoreMin(since), Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read usage log: %w", err)
	}

	out := make([]domain.LLMUsage, 0, len(raw))
	for _, r := range raw {
		var e usageEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		out = append(out, e.LLMUsage)
	}
	return out, nil
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
