package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/folio/internal/logger"
)

type recordingTrimmer struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (r *recordingTrimmer) TrimLogs(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoffs = append(r.cutoffs, cutoff)
	return 1, r.err
}

func (r *recordingTrimmer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cutoffs)
}

func TestLogRetention_Cutoff(t *testing.T) {
	logs := &recordingTrimmer{}
	lr := NewLogRetention(logs, logger.New("error", false), 45*24*time.Hour, time.Hour)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	lr.now = func() time.Time { return now }

	if err := lr.Trim(context.Background()); err != nil {
		t.Fatalf("Trim failed: %v", err)
	}
	if want := now.Add(-45 * 24 * time.Hour); !logs.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", logs.cutoffs[0], want)
	}
}

func TestLogRetention_Defaults(t *testing.T) {
	lr := NewLogRetention(&recordingTrimmer{}, logger.New("error", false), time.Hour, 0)

	if lr.retention != MinLogRetention {
		t.Errorf("retention = %v, want %v", lr.retention, MinLogRetention)
	}
	if lr.interval != DefaultTrimInterval {
		t.Errorf("interval = %v, want %v", lr.interval, DefaultTrimInterval)
	}
}

func TestLogRetention_Ticks(t *testing.T) {
	logs := &recordingTrimmer{err: errors.New("redis down")}
	lr := NewLogRetention(logs, logger.New("error", false), 0, 10*time.Millisecond)

	if err := lr.Start(context.Background()); err != nil {
		t.Fatalf("Start must not fail on a trim error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for logs.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	lr.Stop()
	lr.Stop()

	if got := logs.count(); got < 3 {
		t.Errorf("Expected at least 3 trims, got %d", got)
	}
}
