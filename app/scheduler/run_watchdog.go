// Package scheduler runs the background loops of the campaign run service
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/amirphl/Amaterasu/config"
	"github.com/amirphl/Amaterasu/utils"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RunTransitions is the part of the run flow the watchdog drives
type RunTransitions interface {
	AdvanceDueRuns(ctx context.Context, now time.Time) (int, error)
	ExpireWaitingRuns(ctx context.Context, now time.Time) (int, error)
	FailStaleRuns(ctx context.Context, now time.Time) (int, error)
}

// RunWatchdog periodically moves due scheduled runs to waiting_token and
// cancels runs that waited too long for a credential. It never executes a run.
type RunWatchdog struct {
	flow     RunTransitions
	logger   *log.Logger
	interval time.Duration
	now      func() time.Time

	logFile io.Closer
}

// NewRunWatchdog creates a watchdog. The poll interval is clamped to 15s..60s.
func NewRunWatchdog(flow RunTransitions, cfg config.SchedulerConfig, logCfg config.LoggingConfig) *RunWatchdog {
	w := &RunWatchdog{
		flow:     flow,
		interval: ClampInterval(cfg.PollInterval),
		now:      utils.UTCNow,
	}
	w.initLogger(cfg.LogFile, logCfg)
	return w
}

// ClampInterval bounds a poll interval to the supported range
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return utils.DefaultWatchdogInterval
	case d < utils.MinWatchdogInterval:
		return utils.MinWatchdogInterval
	case d > utils.MaxWatchdogInterval:
		return utils.MaxWatchdogInterval
	}
	return d
}

// initLogger writes to stdout and a rotated scheduler log file
func (w *RunWatchdog) initLogger(path string, logCfg config.LoggingConfig) {
	if path == "" {
		w.logger = log.New(os.Stdout, "watchdog ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		w.logger = log.New(os.Stdout, "watchdog ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		w.logger.Printf("watchdog: failed to create log directory: %v", err)
		return
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logCfg.MaxSize,
		MaxBackups: logCfg.MaxBackups,
		MaxAge:     logCfg.MaxAge,
		Compress:   logCfg.Compress,
	}
	w.logFile = lj
	// log.Logger is goroutine-safe; timestamps with microseconds in UTC
	w.logger = log.New(io.MultiWriter(os.Stdout, lj), "watchdog ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start recovers abandoned runs, then launches the poll loop in a background
// goroutine. The returned stop function cancels the loop and waits for it.
func (w *RunWatchdog) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	if n, err := w.flow.FailStaleRuns(ctx, w.now()); err != nil {
		w.logger.Printf("watchdog: stale run recovery failed: %v", err)
	} else if n > 0 {
		w.logger.Printf("watchdog: marked %d abandoned runs failed", n)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.RunOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			if w.logFile != nil {
				_ = w.logFile.Close()
			}
		})
	}
}

// RunOnce performs a single watchdog tick
func (w *RunWatchdog) RunOnce(ctx context.Context) {
	now := w.now()

	advanced, err := w.flow.AdvanceDueRuns(ctx, now)
	if err != nil {
		w.logger.Printf("watchdog: advance due runs failed: %v", err)
	}
	if advanced > 0 {
		w.logger.Printf("watchdog: %d runs waiting for a credential", advanced)
	}

	expired, err := w.flow.ExpireWaitingRuns(ctx, now)
	if err != nil {
		w.logger.Printf("watchdog: expire waiting runs failed: %v", err)
	}
	if expired > 0 {
		w.logger.Printf("watchdog: %d runs canceled after waiting too long for a credential", expired)
	}
}
