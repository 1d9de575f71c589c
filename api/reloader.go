/*
reloader.go - Schedule file reloader

PURPOSE:
  Keeps the table oracle in step with its schedule file. Operators edit the
  file (JSON or YAML) and the running server picks the change up without a
  restart.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Reloads only when the file's modification time changes
  - A document that fails to parse or validate is logged and skipped; the
    previous schedules stay in place
  - Suspension windows in the file are saved through the service (upsert
    by id). Give file windows stable ids, otherwise every reload adds a
    copy with a fresh id.

CONFIGURATION:
  - Path:     ORACLE_SCHEDULE_FILE
  - Interval: ORACLE_RELOAD_INTERVAL (zero disables the loop)

USAGE:
  reloader := NewScheduleReloader(path, table, svc, logger)
  if _, err := reloader.ReloadIfChanged(ctx); err != nil { ... }
  reloader.Start()
  // ... later
  reloader.Stop()

SEE ALSO:
  - factory/schedule.go: Document parsing
  - oracle/table.go: Table.Replace
*/
package api

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/warp/landed-cost/factory"
	"github.com/warp/landed-cost/landedcost"
	"github.com/warp/landed-cost/oracle"
	"go.uber.org/zap"
)

// ScheduleReloader reloads the table oracle from a file.
type ScheduleReloader struct {
	Path          string
	Table         *oracle.Table
	Service       *landedcost.Service
	Factory       *factory.ScheduleFactory
	CheckInterval time.Duration
	Logger        *zap.Logger

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastMod time.Time
}

// NewScheduleReloader creates a reloader with a one minute interval.
func NewScheduleReloader(path string, table *oracle.Table, svc *landedcost.Service, logger *zap.Logger) *ScheduleReloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleReloader{
		Path:          path,
		Table:         table,
		Service:       svc,
		Factory:       factory.NewScheduleFactory(),
		CheckInterval: time.Minute,
		Logger:        logger,
	}
}

// Start begins polling. It is a no-op when the interval is not positive.
func (sr *ScheduleReloader) Start() {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sr.CheckInterval <= 0 || sr.ticker != nil {
		sr.Logger.Debug("schedule reloader not started", zap.Duration("interval", sr.CheckInterval))
		return
	}

	sr.ticker = time.NewTicker(sr.CheckInterval)
	sr.stop = make(chan struct{})
	sr.wg.Add(1)
	go sr.run(sr.ticker.C, sr.stop)

	sr.Logger.Info("schedule reloader started",
		zap.String("path", sr.Path),
		zap.Duration("interval", sr.CheckInterval))
}

// Stop stops polling and waits for an in-flight reload.
func (sr *ScheduleReloader) Stop() {
	sr.mu.Lock()
	if sr.ticker == nil {
		sr.mu.Unlock()
		return
	}
	sr.ticker.Stop()
	close(sr.stop)
	sr.ticker = nil
	sr.mu.Unlock()

	sr.wg.Wait()
	sr.Logger.Info("schedule reloader stopped")
}

func (sr *ScheduleReloader) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer sr.wg.Done()

	for {
		select {
		case <-tick:
			if _, err := sr.ReloadIfChanged(context.Background()); err != nil {
				sr.Logger.Warn("schedule reload failed", zap.String("path", sr.Path), zap.Error(err))
			}
		case <-stop:
			return
		}
	}
}

// ReloadIfChanged reloads when the file changed since the last successful
// load. It reports whether a reload happened.
func (sr *ScheduleReloader) ReloadIfChanged(ctx context.Context) (bool, error) {
	info, err := os.Stat(sr.Path)
	if err != nil {
		return false, fmt.Errorf("failed to stat schedule file: %w", err)
	}

	sr.mu.Lock()
	unchanged := info.ModTime().Equal(sr.lastMod)
	sr.mu.Unlock()
	if unchanged {
		return false, nil
	}

	data, err := os.ReadFile(sr.Path)
	if err != nil {
		return false, fmt.Errorf("failed to read schedule file: %w", err)
	}
	doc, err := sr.Factory.Parse(sr.Path, data)
	if err != nil {
		return false, err
	}

	sr.Table.Replace(doc.Schedules)
	for _, susp := range doc.Suspensions {
		if _, err := sr.Service.SaveSuspension(ctx, susp); err != nil {
			return false, fmt.Errorf("failed to save suspension %s: %w", susp.ID, err)
		}
	}

	sr.mu.Lock()
	sr.lastMod = info.ModTime()
	sr.mu.Unlock()

	sr.Logger.Info("schedules reloaded",
		zap.String("path", sr.Path),
		zap.Int("schedules", len(doc.Schedules)),
		zap.Int("suspensions", len(doc.Suspensions)))
	return true, nil
}
