package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/folio/internal/content"
	"github.com/MrSnakeDoc/folio/internal/logger"
	"github.com/MrSnakeDoc/folio/internal/utils"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 400 * time.Millisecond

// watchedExtensions are the content files that trigger a reload when changed
var watchedExtensions = map[string]bool{
	".json": true,
	".md":   true,
	".yaml": true,
	".yml":  true,
	".tmpl": true,
}

// ContentReloader keeps the content catalog in sync with the content directory
type ContentReloader struct {
	loader        *content.Loader
	catalog       *content.Catalog
	logger        logger.Logger
	interval      time.Duration
	watch         bool
	debounce      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}
	changed       chan struct{}

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
}

// NewContentReloader creates a content reloader. A zero interval disables
// periodic reloads; watch enables fsnotify on the content directory.
func NewContentReloader(
	loader *content.Loader,
	catalog *content.Catalog,
	log logger.Logger,
	interval time.Duration,
	watch bool,
	manualTrigger chan struct{},
) *ContentReloader {
	return &ContentReloader{
		loader:        loader,
		catalog:       catalog,
		logger:        log,
		interval:      interval,
		watch:         watch,
		debounce:      defaultDebounce,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
		changed:       make(chan struct{}, 1),
	}
}

// Start loads the catalog once, then reloads on tick, on manual trigger and
// on file changes
func (cr *ContentReloader) Start(ctx context.Context) error {
	if err := cr.Reload(ctx); err != nil {
		return fmt.Errorf("initial content load failed: %w", err)
	}

	if cr.watch {
		if err := cr.startWatcher(); err != nil {
			return fmt.Errorf("failed to watch content directory: %w", err)
		}
	}

	go func() {
		var tick <-chan time.Time
		if cr.interval > 0 {
			ticker := time.NewTicker(cr.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-tick:
				cr.reloadLogged(ctx, "interval")
			case <-cr.manualTrigger:
				cr.logger.Info("manual content reload triggered")
				cr.reloadLogged(ctx, "manual")
			case <-cr.changed:
				cr.reloadLogged(ctx, "watch")
			case <-cr.stopCh:
				return
			case <-ctx.Done():
				cr.Stop()
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader and the watcher
func (cr *ContentReloader) Stop() {
	cr.stopOnce.Do(func() {
		close(cr.stopCh)

		cr.mu.Lock()
		defer cr.mu.Unlock()
		if cr.timer != nil {
			cr.timer.Stop()
		}
		if cr.watcher != nil {
			utils.CloseLogged(cr.watcher, cr.logger, "content watcher")
			cr.watcher = nil
		}
	})
}

// Reload reads the content directory and swaps the catalog
func (cr *ContentReloader) Reload(_ context.Context) error {
	snap, err := cr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load content: %w", err)
	}

	for kind, doc := range snap.Documents {
		if doc.Err != nil {
			cr.logger.Warn("content document unavailable",
				logger.String("document", string(kind)),
				logger.Error(doc.Err))
		}
	}
	if snap.ContextErr != nil {
		cr.logger.Warn("chat context unavailable",
			logger.Error(snap.ContextErr))
	}

	cr.catalog.Replace(snap)

	cr.logger.Info("content loaded",
		logger.String("dir", cr.loader.Dir()),
		logger.Int("skills", len(snap.Skills)))
	return nil
}

func (cr *ContentReloader) reloadLogged(ctx context.Context, reason string) {
	if err := cr.Reload(ctx); err != nil {
		cr.logger.Error("failed to reload content",
			logger.String("reason", reason),
			logger.Error(err))
	}
}

func (cr *ContentReloader) startWatcher() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(cr.loader.Dir()); err != nil {
		_ = w.Close()
		return err
	}

	cr.mu.Lock()
	cr.watcher = w
	cr.mu.Unlock()

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				cr.handleEvent(ev)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cr.logger.Warn("content watcher error", logger.Error(err))
			}
		}
	}()

	cr.logger.Info("watching content directory",
		logger.String("dir", cr.loader.Dir()))
	return nil
}

func (cr *ContentReloader) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if !watchedExtensions[strings.ToLower(filepath.Ext(ev.Name))] {
		return
	}

	cr.logger.Debug("content file changed",
		logger.String("path", ev.Name),
		logger.String("op", ev.Op.String()))

	// editors emit bursts of events for one save
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if cr.timer != nil {
		cr.timer.Stop()
	}
	cr.timer = time.AfterFunc(cr.debounce, func() {
		select {
		case cr.changed <- struct{}{}:
		default:
		}
	})
}
