// Package otp issues and verifies the one-time codes that gate endorsement changes.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/google/uuid"
)

// CodeDigits is the length of an issued code.
const CodeDigits = 6

// Store persists OTP records. Every method must be atomic per slot.
type Store interface {
	IssueOTP(ctx context.Context, rec *domain.OTPRecord) (bool, error)
	ConsumeOTP(ctx context.Context, email string, action domain.OTPAction, targetID, code string, now time.Time, maxAttempts int) (bool, error)
	ReapExpiredOTPs(ctx context.Context, now time.Time) (int, error)
}

// Service issues codes and checks them.
type Service struct {
	store       Store
	log         logger.Logger
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an OTP service. A zero ttl falls back to domain.DefaultOTPTTL.
func NewService(store Store, log logger.Logger, ttl time.Duration, maxAttempts int, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = domain.DefaultOTPTTL
	}
	s := &Service{
		store:       store,
		log:         log,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TTL returns how long issued codes stay valid.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue creates a fresh code for (email, action, targetID) and supersedes
// the one previously issued for the same slot.
func (s *Service) Issue(ctx context.Context, email string, action domain.OTPAction, targetID string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	rec := &domain.OTPRecord{
		ID:        uuid.NewString(),
		Email:     domain.NormalizeEmail(email),
		Action:    action,
		Code:      code,
		TargetID:  targetID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		Status:    domain.OTPIssued,
	}

	superseded, err := s.store.IssueOTP(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("issue otp: %w", err)
	}

	s.log.Debug("otp issued",
		logger.String("action", string(action)),
		logger.String("target_id", targetID),
		logger.Bool("superseded", superseded))

	return code, nil
}

// Verify consumes the open code of the slot when code matches and is unexpired.
// It fails closed: store errors are logged and reported as a mismatch.
func (s *Service) Verify(ctx context.Context, email string, action domain.OTPAction, code, targetID string) bool {
	ok, err := s.store.ConsumeOTP(ctx, domain.NormalizeEmail(email), action, targetID, code, s.now().UTC(), s.maxAttempts)
	if err != nil {
		s.log.Error("otp verification failed",
			logger.String("action", string(action)),
			logger.Error(err))
		return false
	}
	return ok
}

// ReapExpired closes every issued code whose expiry has passed.
func (s *Service) ReapExpired(ctx context.Context) (int, error) {
	n, err := s.store.ReapExpiredOTPs(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reap otps: %w", err)
	}
	return n, nil
}

func generateCode() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < CodeDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}
