package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// trimmedLogs are the time-scored logs only read over trailing windows.
// Running totals live in separate counters and survive trimming.
var trimmedLogs = []string{
	KeyLLMLog,
	KeyAPICalls,
}

// TrimLogs drops usage and API call entries scored before cutoff and
// returns how many were removed.
func (s *Store) TrimLogs(ctx context.Context, cutoff time.Time) (int64, error) {
	upper := "(" + scoreMin(cutoff)

	removed := make([]*redis.IntCmd, 0, len(trimmedLogs))
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range trimmedLogs {
			removed = append(removed, pipe.ZRemRangeByScore(ctx, key, "-inf", upper))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to trim logs: %w", err)
	}

	var n int64
	for _, cmd := range removed {
		n += cmd.Val()
	}
	return n, nil
}
