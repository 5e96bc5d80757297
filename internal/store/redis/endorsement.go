package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// softDeleteScript flips an active endorsement to deleted.
// Returns 1 on the transition, 0 when missing or already deleted.
//
// KEYS: endorsement
// ARGV: deleted_ms
var softDeleteScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'active' then return 0 end
redis.call('HSET', KEYS[1], 'status', 'deleted', 'deleted_at', ARGV[1])
return 1
`)

// CreateEndorsement stores e and assigns its ID when empty.
// Insertion order is kept through a sequence number.
func (s *Store) CreateEndorsement(ctx context.Context, e *domain.Endorsement) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	seq, err := s.client.Incr(ctx, KeyEndorsementSeq).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate endorsement sequence: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, EndorsementKey(e.ID),
			"id", e.ID,
			"skill_id", e.SkillID,
			"name", e.Name,
			"email", e.Email,
			"message", e.Message,
			"created_at", millis(e.CreatedAt),
			"status", string(e.Status),
		)
		member := redis.Z{Score: float64(seq), Member: e.ID}
		pipe.ZAdd(ctx, KeyEndorsementIndex, member)
		pipe.ZAdd(ctx, SkillIndexKey(e.SkillID), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save endorsement: %w", err)
	}
	return nil
}

// GetEndorsement returns an active endorsement by ID.
// Deleted endorsements are reported as ErrNotFound.
func (s *Store) GetEndorsement(ctx context.Context, id string) (*domain.Endorsement, error) {
	m, err := hgetAll(ctx, s.client, EndorsementKey(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("endorsement %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get endorsement: %w", err)
	}

	e := endorsementFromHash(m)
	if !e.IsActive() {
		return nil, fmt.Errorf("endorsement %s: %w", id, ErrNotFound)
	}
	return e, nil
}

// ListActiveEndorsements returns active endorsements in insertion order.
func (s *Store) ListActiveEndorsements(ctx context.Context) ([]*domain.Endorsement, error) {
	return s.listEndorsements(ctx, KeyEndorsementIndex, true)
}

// ListEndorsementsBySkill returns the active endorsements of one skill in insertion order.
func (s *Store) ListEndorsementsBySkill(ctx context.Context, skillID string) ([]*domain.Endorsement, error) {
	return s.listEndorsements(ctx, SkillIndexKey(skillID), true)
}

// AllEndorsements returns every endorsement including deleted ones.
func (s *Store) AllEndorsements(ctx context.Context) ([]*domain.Endorsement, error) {
	return s.listEndorsements(ctx, KeyEndorsementIndex, false)
}

// SoftDeleteEndorsement marks an endorsement deleted. The record is kept.
func (s *Store) SoftDeleteEndorsement(ctx context.Context, id string, now time.Time) (bool, error) {
	n, err := softDeleteScript.Run(ctx, s.client, []string{EndorsementKey(id)}, millis(now)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to delete endorsement: %w", err)
	}
	return n == 1, nil
}

func (s *Store) listEndorsements(ctx context.Context, index string, activeOnly bool) ([]*domain.Endorsement, error) {
	ids, err := s.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list endorsements: %w", err)
	}

	hashes, err := s.hashes(ctx, ids, EndorsementKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load endorsements: %w", err)
	}

	out := make([]*domain.Endorsement, 0, len(hashes))
	for _, m := range hashes {
		e := endorsementFromHash(m)
		if activeOnly && !e.IsActive() {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func endorsementFromHash(m map[string]string) *domain.Endorsement {
	return &domain.Endorsement{
		ID:        m["id"],
		SkillID:   m["skill_id"],
		Name:      m["name"],
		Email:     m["email"],
		Message:   m["message"],
		CreatedAt: fromMillis(m["created_at"]),
		Status:    domain.EndorsementStatus(m["status"]),
		DeletedAt: fromMillis(m["deleted_at"]),
	}
}
