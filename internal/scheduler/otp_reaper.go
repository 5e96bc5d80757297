package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/folio/internal/logger"
)

const (
	// DefaultReapInterval is how often expired OTP codes are closed
	DefaultReapInterval = time.Minute
)

// Reaper closes expired codes. *otp.Service implements it.
type Reaper interface {
	ReapExpired(ctx context.Context) (int, error)
}

// OTPReaper periodically moves expired OTP codes out of the issued state
type OTPReaper struct {
	codes    Reaper
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewOTPReaper creates a new OTP reaper
func NewOTPReaper(codes Reaper, log logger.Logger, interval time.Duration) *OTPReaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}

	return &OTPReaper{
		codes:    codes,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs a first pass then reaps on every tick
func (r *OTPReaper) Start(ctx context.Context) error {
	if err := r.Reap(ctx); err != nil {
		r.logger.Warn("initial otp reap failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.Reap(ctx); err != nil {
					r.logger.Error("otp reap failed",
						logger.Error(err))
				}
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reaper
func (r *OTPReaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Reap runs one pass
func (r *OTPReaper) Reap(ctx context.Context) error {
	n, err := r.codes.ReapExpired(ctx)
	if err != nil {
		return err
	}

	if n > 0 {
		r.logger.Info("expired otp codes closed",
			logger.Int("count", n))
	} else {
		r.logger.Debug("no otp codes to reap")
	}
	return nil
}
