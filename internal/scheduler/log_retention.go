package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/folio/internal/logger"
)

const (
	// MinLogRetention is the longest window the metrics read from the logs
	MinLogRetention = 30 * 24 * time.Hour
	// DefaultTrimInterval is how often old log entries are dropped
	DefaultTrimInterval = time.Hour
)

// Trimmer drops log entries older than a cutoff. *redis.Store implements it.
type Trimmer interface {
	TrimLogs(ctx context.Context, cutoff time.Time) (int64, error)
}

// LogRetention keeps the usage and API call logs within a retention window
type LogRetention struct {
	logs      Trimmer
	logger    logger.Logger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewLogRetention creates a log trimmer. Retention below MinLogRetention is raised to it.
func NewLogRetention(logs Trimmer, log logger.Logger, retention, interval time.Duration) *LogRetention {
	if retention < MinLogRetention {
		retention = MinLogRetention
	}
	if interval <= 0 {
		interval = DefaultTrimInterval
	}

	return &LogRetention{
		logs:      logs,
		logger:    log,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start trims once then on every tick
func (lr *LogRetention) Start(ctx context.Context) error {
	if err := lr.Trim(ctx); err != nil {
		lr.logger.Warn("initial log trim failed", logger.Error(err))
	}

	ticker := time.NewTicker(lr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := lr.Trim(ctx); err != nil {
					lr.logger.Error("log trim failed", logger.Error(err))
				}
			case <-lr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the trimmer
func (lr *LogRetention) Stop() {
	lr.stopOnce.Do(func() { close(lr.stopCh) })
}

// Trim runs one pass
func (lr *LogRetention) Trim(ctx context.Context) error {
	cutoff := lr.now().Add(-lr.retention)
	n, err := lr.logs.TrimLogs(ctx, cutoff)
	if err != nil {
		return err
	}

	if n > 0 {
		lr.logger.Info("old log entries dropped",
			logger.Int("count", int(n)),
			logger.Time("cutoff", cutoff))
	}
	return nil
}
