package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ticker periodically evaluates cron triggers by invoking the manager's
// cron evaluation with the tick time as the reference clock.
type Ticker struct {
	manager  *Manager
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
}

// TickerConfig contains configuration for the scheduler ticker.
type TickerConfig struct {
	// Interval is how often cron triggers are evaluated. It must stay
	// below the manager's cron tolerance window or due slots are missed.
	Interval time.Duration
}

// DefaultTickerConfig returns sensible defaults.
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval: 60 * time.Second,
	}
}

// NewTicker creates a ticker bound to a manager.
func NewTicker(manager *Manager, cfg TickerConfig, logger *zap.SugaredLogger) *Ticker {
	return NewTickerWithContext(context.Background(), manager, cfg, logger)
}

// NewTickerWithContext creates a ticker with a parent context.
func NewTickerWithContext(ctx context.Context, manager *Manager, cfg TickerConfig, logger *zap.SugaredLogger) *Ticker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickerConfig().Interval
	}
	tickerCtx, cancel := context.WithCancel(ctx)
	return &Ticker{
		manager:  manager,
		interval: cfg.Interval,
		ctx:      tickerCtx,
		cancel:   cancel,
		logger:   logger,
	}
}

// Start begins the ticker loop.
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.logger.Infow("Scheduler ticker started", "interval", t.interval)
}

// Stop gracefully stops the ticker.
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.logger.Infow("Scheduler ticker stopped")
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = tickTime
			t.ticksSinceStart++
			tick := t.ticksSinceStart
			t.mu.Unlock()

			st := t.manager.TriggerAllEnabledCronTasks(t.ctx, tickTime)
			if !st.Success {
				// Don't spam logs; per-task detail was already logged.
				t.logger.Warnw("Cron tick reported failures",
					"tick", tick,
					"status", st.Message,
				)
			} else if triggered, ok := st.Data["triggered"].(int); ok && triggered > 0 {
				t.logger.Infow("Cron tick executed tasks",
					"tick", tick,
					"triggered", triggered,
				)
			}
		}
	}
}

// Stats returns ticker statistics.
func (t *Ticker) Stats() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return map[string]any{
		"last_tick_at":      t.lastTickAt,
		"ticks_since_start": t.ticksSinceStart,
		"interval":          t.interval,
	}
}
