package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/folio/internal/domain"
	"github.com/MrSnakeDoc/folio/internal/logger"
	store "github.com/MrSnakeDoc/folio/internal/store/redis"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	svc := NewService(store.NewStore(client), logger.New("error", false), 10*time.Minute, 5, WithClock(clock.Now))
	return svc, clock
}

func TestService_IssueVerifyOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	code, err := svc.Issue(ctx, "A@B.com", domain.ActionEndorse, "go")
	require.NoError(t, err)
	require.Len(t, code, CodeDigits)

	require.True(t, svc.Verify(ctx, "a@b.com", domain.ActionEndorse, code, "go"))
	require.False(t, svc.Verify(ctx, "a@b.com", domain.ActionEndorse, code, "go"))
}

func TestService_ReissueInvalidatesOldCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "a@b.com", domain.ActionDelete, "e1")
	require.NoError(t, err)
	second, err := svc.Issue(ctx, "a@b.com", domain.ActionDelete, "e1")
	require.NoError(t, err)

	if first != second {
		require.False(t, svc.Verify(ctx, "a@b.com", domain.ActionDelete, first, "e1"))
	}
	require.True(t, svc.Verify(ctx, "a@b.com", domain.ActionDelete, second, "e1"))
}

func TestService_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		want    bool
	}{
		{"just before expiry", 10*time.Minute - time.Millisecond, true},
		{"at expiry", 10 * time.Minute, false},
		{"after expiry", 11 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, clock := newTestService(t)
			ctx := context.Background()

			code, err := svc.Issue(ctx, "a@b.com", domain.ActionEndorse, "go")
			require.NoError(t, err)

			clock.Advance(tt.advance)
			require.Equal(t, tt.want, svc.Verify(ctx, "a@b.com", domain.ActionEndorse, code, "go"))
		})
	}
}

func TestService_ReapExpired(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "a@b.com", domain.ActionEndorse, "go")
	require.NoError(t, err)

	n, err := svc.ReapExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	clock.Advance(11 * time.Minute)
	n, err = svc.ReapExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

type failingStore struct{}

func (failingStore) IssueOTP(context.Context, *domain.OTPRecord) (bool, error) {
	return false, errors.New("down")
}

func (failingStore) ConsumeOTP(context.Context, string, domain.OTPAction, string, string, time.Time, int) (bool, error) {
	return true, errors.New("down")
}

func (failingStore) ReapExpiredOTPs(context.Context, time.Time) (int, error) {
	return 0, errors.New("down")
}

func TestService_FailsClosed(t *testing.T) {
	svc := NewService(failingStore{}, logger.New("error", false), 0, 5)
	ctx := context.Background()

	_, err := svc.Issue(ctx, "a@b.com", domain.ActionEndorse, "go")
	require.Error(t, err)
	require.False(t, svc.Verify(ctx, "a@b.com", domain.ActionEndorse, "123456", "go"))
	require.Equal(t, domain.DefaultOTPTTL, svc.TTL())
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Regexp(t, `^[0-9]{6}$`, code)
	}
}
