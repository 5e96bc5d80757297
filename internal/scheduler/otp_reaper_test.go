package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/folio/internal/logger"
)

type countingReaper struct {
	calls atomic.Int32
	n     int
	err   error
}

func (c *countingReaper) ReapExpired(context.Context) (int, error) {
	c.calls.Add(1)
	return c.n, c.err
}

func TestOTPReaper_StartRunsImmediately(t *testing.T) {
	codes := &countingReaper{n: 2}
	r := NewOTPReaper(codes, logger.New("error", false), time.Hour)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	if got := codes.calls.Load(); got != 1 {
		t.Errorf("Expected 1 reap on start, got %d", got)
	}
}

func TestOTPReaper_Ticks(t *testing.T) {
	codes := &countingReaper{}
	r := NewOTPReaper(codes, logger.New("error", false), 10*time.Millisecond)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for codes.calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()
	r.Stop() // idempotent

	if got := codes.calls.Load(); got < 3 {
		t.Errorf("Expected at least 3 reaps, got %d", got)
	}
}

func TestOTPReaper_ErrorsDoNotStop(t *testing.T) {
	codes := &countingReaper{err: errors.New("redis down")}
	r := NewOTPReaper(codes, logger.New("error", false), 0)

	if r.interval != DefaultReapInterval {
		t.Errorf("Expected default interval, got %v", r.interval)
	}
	if err := r.Reap(context.Background()); err == nil {
		t.Error("Expected Reap to return the store error")
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start must not fail on a reap error: %v", err)
	}
	r.Stop()
}
