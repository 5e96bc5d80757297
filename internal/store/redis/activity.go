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

type apiCallEntry struct {
	ID string `json:"id"`
	domain.APICall
}

// RecordAPICall logs one routed request and bumps the endpoint and status counters.
func (s *Store) RecordAPICall(ctx context.Context, c domain.APICall) error {
	data, err := json.Marshal(apiCallEntry{ID: uuid.NewString(), APICall: c})
	if err != nil {
		return fmt.Errorf("failed to marshal api call: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, KeyAPICalls, redis.Z{Score: score(c.Timestamp), Member: string(data)})
		pipe.HIncrBy(ctx, KeyAPIByEndpoint, c.Endpoint, 1)
		pipe.HIncrBy(ctx, KeyAPIByStatus, strconv.Itoa(c.StatusCode), 1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record api call: %w", err)
	}
	return nil
}

// APICallsSince returns the calls logged at or after since, oldest first.
func (s *Store) APICallsSince(ctx context.Context, since time.Time) ([]domain.APICall, error) {
	raw, err := s.client.ZRangeByScore(ctx, KeyAPICalls, &redis.ZRangeBy{Min: scoreMin(since), Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read api calls: %w", err)
	}

	out := make([]domain.APICall, 0, len(raw))
	for _, r := range raw {
		var e apiCallEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		out = append(out, e.APICall)
	}
	return out, nil
}

// APICallCounters holds the all-time call counters.
type APICallCounters struct {
	Total      int64
	ByEndpoint map[string]int64
	ByStatus   map[string]int64
}

// APICallTotals returns the all-time counters per endpoint and per status code.
func (s *Store) APICallTotals(ctx context.Context) (APICallCounters, error) {
	pipe := s.client.Pipeline()
	byEndpoint := pipe.HGetAll(ctx, KeyAPIByEndpoint)
	byStatus := pipe.HGetAll(ctx, KeyAPIByStatus)
	if _, err := pipe.Exec(ctx); err != nil {
		return APICallCounters{}, fmt.Errorf("failed to read api counters: %w", err)
	}

	// the call log is trimmed, the status counters are not
	c := APICallCounters{
		ByEndpoint: toCounts(byEndpoint.Val()),
		ByStatus:   toCounts(byStatus.Val()),
	}
	for _, n := range c.ByStatus {
		c.Total += n
	}
	return c, nil
}

// RecordExport logs a transcript that was emailed.
func (s *Store) RecordExport(ctx context.Context, rec *domain.ExportRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return s.logRecord(ctx, KeyExports, rec, rec.Timestamp)
}

// RecordContact logs a contact form that was relayed.
func (s *Store) RecordContact(ctx context.Context, rec *domain.ContactSubmission) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return s.logRecord(ctx, KeyContacts, rec, rec.Timestamp)
}

// CountExports returns the total number of exports and those at or after since.
func (s *Store) CountExports(ctx context.Context, since time.Time) (int64, int64, error) {
	return s.countLog(ctx, KeyExports, since)
}

// CountContacts returns the total number of contact submissions and those at or after since.
func (s *Store) CountContacts(ctx context.Context, since time.Time) (int64, int64, error) {
	return s.countLog(ctx, KeyContacts, since)
}

func (s *Store) logRecord(ctx context.Context, key string, rec any, at time.Time) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", key, err)
	}
	if err := s.client.ZAdd(ctx, key, redis.Z{Score: score(at), Member: string(data)}).Err(); err != nil {
		return fmt.Errorf("failed to save %s record: %w", key, err)
	}
	return nil
}

func (s *Store) countLog(ctx context.Context, key string, since time.Time) (int64, int64, error) {
	pipe := s.client.Pipeline()
	total := pipe.ZCard(ctx, key)
	recent := pipe.ZCount(ctx, key, scoreMin(since), "+inf")
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to count %s: %w", key, err)
	}
	return total.Val(), recent.Val(), nil
}

func toCounts(m map[string]string) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = parseInt(v)
	}
	return out
}
