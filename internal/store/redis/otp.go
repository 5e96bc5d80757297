package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/redis/go-redis/v9"
)

// issueScript supersedes the open record of a slot and installs a new one.
//
// KEYS: slot, record, index, pending
// ARGV: id, record prefix, created_ms, field/value pairs...
var issueScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
if prev then
  local pkey = ARGV[2] .. prev
  if redis.call('HGET', pkey, 'status') == 'issued' then
    redis.call('HSET', pkey, 'status', 'superseded', 'closed_at', ARGV[3])
  end
  redis.call('SREM', KEYS[4], prev)
end
redis.call('HSET', KEYS[2], unpack(ARGV, 4))
redis.call('SET', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
redis.call('SADD', KEYS[4], ARGV[1])
if prev then return 1 end
return 0
`)

// consumeScript checks a code against the open record of a slot.
// Returns 1 when the record was consumed, 0 otherwise.
//
// KEYS: slot, pending
// ARGV: record prefix, code, now_ms, max_attempts
var consumeScript = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
if not id then return 0 end
local key = ARGV[1] .. id
local rec = redis.call('HMGET', key, 'status', 'code', 'expires_at')
if rec[1] ~= 'issued' then return 0 end
if tonumber(rec[3]) <= tonumber(ARGV[3]) then return 0 end
if rec[2] ~= ARGV[2] then
  local n = redis.call('HINCRBY', key, 'attempts', 1)
  local max = tonumber(ARGV[4])
  if max > 0 and n >= max then
    redis.call('HSET', key, 'status', 'exhausted', 'closed_at', ARGV[3])
    redis.call('DEL', KEYS[1])
    redis.call('SREM', KEYS[2], id)
  end
  return 0
end
redis.call('HSET', key, 'status', 'consumed', 'closed_at', ARGV[3])
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], id)
return 1
`)

// reapScript closes every pending record whose expiry is strictly before now.
//
// KEYS: pending
// ARGV: record prefix, now_ms
var reapScript = redis.NewScript(`
local ids = redis.call('SMEMBERS', KEYS[1])
local n = 0
for _, id in ipairs(ids) do
  local key = ARGV[1] .. id
  local rec = redis.call('HMGET', key, 'status', 'expires_at', 'slot')
  if rec[1] ~= 'issued' then
    redis.call('SREM', KEYS[1], id)
  elseif tonumber(rec[2]) < tonumber(ARGV[2]) then
    redis.call('HSET', key, 'status', 'expired', 'closed_at', ARGV[2])
    redis.call('SREM', KEYS[1], id)
    if rec[3] and redis.call('GET', rec[3]) == id then
      redis.call('DEL', rec[3])
    end
    n = n + 1
  end
end
return n
`)

// IssueOTP stores rec as the open code of its slot, superseding the previous one.
// It reports whether a previous record was superseded.
func (s *Store) IssueOTP(ctx context.Context, rec *domain.OTPRecord) (bool, error) {
	slot := OTPSlotKey(rec.Email, string(rec.Action), rec.TargetID)

	args := []any{
		rec.ID, KeyPrefixOTP, millis(rec.CreatedAt),
		"id", rec.ID,
		"email", rec.Email,
		"action", string(rec.Action),
		"code", rec.Code,
		"target_id", rec.TargetID,
		"created_at", millis(rec.CreatedAt),
		"expires_at", millis(rec.ExpiresAt),
		"status", string(domain.OTPIssued),
		"attempts", 0,
		"slot", slot,
	}

	n, err := issueScript.Run(ctx, s.client,
		[]string{slot, OTPKey(rec.ID), KeyOTPIndex, KeyOTPPending}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to issue otp: %w", err)
	}
	return n == 1, nil
}

// ConsumeOTP closes the open code of a slot if code matches and it has not expired.
// Wrong codes count towards maxAttempts; maxAttempts <= 0 disables the limit.
func (s *Store) ConsumeOTP(ctx context.Context, email string, action domain.OTPAction, targetID, code string, now time.Time, maxAttempts int) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client,
		[]string{OTPSlotKey(email, string(action), targetID), KeyOTPPending},
		KeyPrefixOTP, code, millis(now), maxAttempts).Int()
	if err != nil {
		return false, fmt.Errorf("failed to consume otp: %w", err)
	}
	return n == 1, nil
}

// ReapExpiredOTPs marks issued records with an expiry before now as expired.
func (s *Store) ReapExpiredOTPs(ctx context.Context, now time.Time) (int, error) {
	n, err := reapScript.Run(ctx, s.client, []string{KeyOTPPending}, KeyPrefixOTP, millis(now)).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to reap otps: %w", err)
	}
	return n, nil
}

// GetOTP retrieves an OTP record by ID
func (s *Store) GetOTP(ctx context.Context, id string) (*domain.OTPRecord, error) {
	m, err := hgetAll(ctx, s.client, OTPKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get otp %s: %w", id, err)
	}
	return otpFromHash(m), nil
}

// AllOTPs returns every OTP record ever issued, oldest first.
func (s *Store) AllOTPs(ctx context.Context) ([]*domain.OTPRecord, error) {
	ids, err := s.client.ZRange(ctx, KeyOTPIndex, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list otps: %w", err)
	}

	hashes, err := s.hashes(ctx, ids, OTPKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load otps: %w", err)
	}

	out := make([]*domain.OTPRecord, 0, len(hashes))
	for _, m := range hashes {
		out = append(out, otpFromHash(m))
	}
	return out, nil
}

// hashes loads the hashes of ids in one round trip, skipping missing ones.
func (s *Store) hashes(ctx context.Context, ids []string, key func(string) string) ([]map[string]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make([]map[string]string, 0, len(ids))
	for _, cmd := range cmds {
		if m := cmd.Val(); len(m) > 0 {
			out = append(out, m)
		}
	}
	return out, nil
}

func otpFromHash(m map[string]string) *domain.OTPRecord {
	attempts, _ := strconv.Atoi(m["attempts"])
	return &domain.OTPRecord{
		ID:        m["id"],
		Email:     m["email"],
		Action:    domain.OTPAction(m["action"]),
		Code:      m["code"],
		TargetID:  m["target_id"],
		CreatedAt: fromMillis(m["created_at"]),
		ExpiresAt: fromMillis(m["expires_at"]),
		ClosedAt:  fromMillis(m["closed_at"]),
		Status:    domain.OTPStatus(m["status"]),
		Attempts:  attempts,
	}
}
