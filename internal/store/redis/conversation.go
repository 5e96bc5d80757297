package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// appendTurnScript appends one exchange to a conversation, creating it from
// the seed messages when it does not exist yet. Returns 1 on creation.
//
// KEYS: conversation, messages, index
// ARGV: id, now_ms, topics_json, seed_count, seed..., turn...
var appendTurnScript = redis.NewScript(`
local created = 0
local nseed = tonumber(ARGV[4])
if redis.call('EXISTS', KEYS[1]) == 0 then
  created = 1
  redis.call('HSET', KEYS[1], 'id', ARGV[1], 'created_at', ARGV[2])
  for i = 5, 4 + nseed do
    redis.call('RPUSH', KEYS[2], ARGV[i])
  end
end
for i = 5 + nseed, #ARGV do
  redis.call('RPUSH', KEYS[2], ARGV[i])
end
redis.call('HSET', KEYS[1], 'topics', ARGV[3], 'updated_at', ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
return created
`)

// AppendTurn pushes turn onto the conversation and replaces its topics.
// seed is only used when the conversation is created by this call.
func (s *Store) AppendTurn(ctx context.Context, id string, seed, turn []domain.Message, topics []string, now time.Time) (bool, error) {
	if topics == nil {
		topics = []string{}
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return false, fmt.Errorf("failed to marshal topics: %w", err)
	}

	args := make([]any, 0, 4+len(seed)+len(turn))
	args = append(args, id, millis(now), string(topicsJSON), len(seed))
	for _, batch := range [][]domain.Message{seed, turn} {
		for _, m := range batch {
			data, err := json.Marshal(m)
			if err != nil {
				return false, fmt.Errorf("failed to marshal message: %w", err)
			}
			args = append(args, string(data))
		}
	}

	n, err := appendTurnScript.Run(ctx, s.client,
		[]string{ConversationKey(id), ConversationMessagesKey(id), KeyConversationIndex}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to append turn: %w", err)
	}
	return n == 1, nil
}

// ConversationExists reports whether id names a stored conversation.
func (s *Store) ConversationExists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, ConversationKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check conversation: %w", err)
	}
	return n > 0, nil
}

// GetConversation loads a conversation with its messages.
func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	m, err := hgetAll(ctx, s.client, ConversationKey(id))
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}

	raw, err := s.client.LRange(ctx, ConversationMessagesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	msgs := make([]domain.Message, 0, len(raw))
	for _, r := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		msgs = append(msgs, msg)
	}

	return &domain.Conversation{
		ID:        id,
		Messages:  msgs,
		Topics:    decodeTopics(m["topics"]),
		CreatedAt: fromMillis(m["created_at"]),
		UpdatedAt: fromMillis(m["updated_at"]),
	}, nil
}

// ConversationSummaries returns one summary per stored conversation.
func (s *Store) ConversationSummaries(ctx context.Context) ([]domain.ConversationSummary, error) {
	ids, err := s.client.ZRange(ctx, KeyConversationIndex, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	hashes := make([]*redis.MapStringStringCmd, len(ids))
	lens := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		hashes[i] = pipe.HGetAll(ctx, ConversationKey(id))
		lens[i] = pipe.LLen(ctx, ConversationMessagesKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	out := make([]domain.ConversationSummary, 0, len(ids))
	for i, id := range ids {
		m := hashes[i].Val()
		if len(m) == 0 {
			continue
		}
		out = append(out, domain.ConversationSummary{
			ID:           id,
			MessageCount: int(lens[i].Val()),
			Topics:       decodeTopics(m["topics"]),
			UpdatedAt:    fromMillis(m["updated_at"]),
		})
	}
	return out, nil
}

func decodeTopics(s string) []string {
	if s == "" {
		return nil
	}
	var topics []string
	if err := json.Unmarshal([]byte(s), &topics); err != nil {
		return nil
	}
	return topics
}
