package poller

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rickgao/safelift-feed/internal/dedup"
	"github.com/rickgao/safelift-feed/internal/metrics"
	"github.com/rickgao/safelift-feed/internal/model"
)

// EventSource lists events. *api.Client satisfies it.
type EventSource interface {
	List(ctx context.Context, f model.EventFilter) ([]model.Event, error)
}

// BatchHandler receives the unseen events of one refresh cycle.
type BatchHandler interface {
	HandleBatch(events []model.Event) error
}

// BatchHandlerFunc is a function adapter for BatchHandler.
type BatchHandlerFunc func([]model.Event) error

func (f BatchHandlerFunc) HandleBatch(events []model.Event) error {
	return f(events)
}

// Config holds refresher configuration.
type Config struct {
	Interval time.Duration     // Refresh interval (default: 30s)
	PageSize int               // Events requested per cycle (default: 100)
	Timeout  time.Duration     // Per-request timeout (default: 10s)
	Filter   model.EventFilter // Severity/Type/Source narrowing; Limit and Skip are ignored
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		PageSize: 100,
		Timeout:  10 * time.Second,
	}
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(r *Refresher) {
		r.metrics = metrics.OrNop(c)
	}
}

// Refresher periodically lists recent events and forwards the unseen ones.
type Refresher struct {
	cfg     Config
	source  EventSource
	seen    *dedup.Set
	handler BatchHandler
	logger  *slog.Logger
	metrics metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Refresher. A nil seen set gets a private one.
func New(cfg Config, source EventSource, seen *dedup.Set, handler BatchHandler, logger *slog.Logger, opts ...Option) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.PageSize <= 0 || cfg.PageSize > model.MaxListLimit {
		cfg.PageSize = def.PageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if seen == nil {
		seen = dedup.New(0)
	}

	r := &Refresher{
		cfg:     cfg,
		source:  source,
		seen:    seen,
		handler: handler,
		logger:  logger,
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins the refresh loop.
func (r *Refresher) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("refresher started",
		"interval", r.cfg.Interval,
		"page_size", r.cfg.PageSize,
	)

	return nil
}

// Stop gracefully shuts down the refresher.
func (r *Refresher) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main refresh loop.
func (r *Refresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	// Refresh immediately on start.
	r.refreshLogged()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.refreshLogged()
		}
	}
}

func (r *Refresher) refreshLogged() {
	start := time.Now()
	n, err := r.Refresh(r.ctx)
	if err != nil {
		if r.ctx.Err() != nil {
			return
		}
		r.logger.Warn("refresh failed", "error", err)
		return
	}
	r.logger.Debug("refresh cycle complete",
		"new_events", n,
		"duration", time.Since(start),
	)
}

// Refresh runs one cycle and returns the number of events handed off.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	f := r.cfg.Filter
	f.Skip = 0
	f.Limit = r.cfg.PageSize

	events, err := r.source.List(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("refresh: %w", err)
	}

	fresh := make([]model.Event, 0, len(events))
	for _, e := range events {
		if r.seen.MarkSeen(e.ID) {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	slices.SortStableFunc(fresh, func(a, b model.Event) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	r.metrics.AddEventsPolled(len(fresh))

	if r.handler != nil {
		if err := r.handler.HandleBatch(fresh); err != nil {
			return len(fresh), fmt.Errorf("handle batch: %w", err)
		}
	}
	return len(fresh), nil
}
