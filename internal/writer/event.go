package writer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/safelift-feed/internal/metrics"
	"github.com/rickgao/safelift-feed/internal/model"
)

// ErrWriterClosed is returned by HandleEvent after Stop.
var ErrWriterClosed = errors.New("event writer closed")

// BatchSender sends a pgx batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds EventWriter configuration.
type Config struct {
	BatchSize     int           // Rows per INSERT batch (default: 500)
	FlushInterval time.Duration // Max time a row waits in a partial batch (default: 1s)
	BufferSize    int           // Initial queue capacity (default: 1024)
	MaxBuffer     int           // Queue bound; oldest rows are dropped beyond it (default: 100000)
	WriteTimeout  time.Duration // Per-batch database timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    1024,
		MaxBuffer:     100000,
		WriteTimeout:  10 * time.Second,
	}
}

// Stats are cumulative writer counters.
type Stats struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Buffer    BufferStats
}

// Option configures an EventWriter.
type Option func(*EventWriter)

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(w *EventWriter) {
		w.metrics = metrics.OrNop(c)
	}
}

type eventRow struct {
	ID         int64
	Timestamp  *time.Time
	Type       string
	Severity   int16
	Source     string
	Metadata   map[string]any
	ForkliftID *int64
	ReceivedAt time.Time
}

const insertEvent = `
	INSERT INTO safety_events (id, ts, type, severity, source, metadata, forklift_id, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING`

// EventWriter buffers events and batch-inserts them into safety_events.
type EventWriter struct {
	cfg     Config
	logger  *slog.Logger
	metrics metrics.Collector
	now     func() time.Time

	input *GrowableBuffer[eventRow]
	db    BatchSender

	batch   []eventRow
	batchMu sync.Mutex
	stats   Stats

	ctx      context.Context
	cancel   context.CancelFunc
	consumed chan struct{}
	wg       sync.WaitGroup
}

// NewEventWriter creates a new EventWriter.
func NewEventWriter(cfg Config, db BatchSender, logger *slog.Logger, opts ...Option) *EventWriter {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.MaxBuffer <= 0 {
		cfg.MaxBuffer = def.MaxBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	w := &EventWriter{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewNop(),
		now:     time.Now,
		input:   NewGrowableBuffer[eventRow](cfg.BufferSize, cfg.MaxBuffer),
		db:      db,
		batch:   make([]eventRow, 0, cfg.BatchSize),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleEvent enqueues e for archiving. It never blocks on the database.
func (w *EventWriter) HandleEvent(e model.Event) error {
	if !w.input.Send(w.transform(e)) {
		return ErrWriterClosed
	}
	return nil
}

// HandleBatch enqueues a refresh batch.
func (w *EventWriter) HandleBatch(events []model.Event) error {
	for _, e := range events {
		if err := w.HandleEvent(e); err != nil {
			return err
		}
	}
	return nil
}

// Start begins consuming the queue and writing to the database.
func (w *EventWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.consumed = make(chan struct{})

	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("event writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop closes the queue, writes what is left and waits for the loops.
func (w *EventWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping event writer")

	w.input.Close()

	if w.consumed != nil {
		select {
		case <-w.consumed:
		case <-ctx.Done():
			w.logger.Warn("event writer drain timed out", "pending", w.input.Len())
		}
	}

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("event writer stop timed out")
	}

	// Final flush with the caller's deadline; w.ctx is already cancelled.
	w.flush(ctx)

	w.logger.Info("event writer stopped")
	return nil
}

// Stats returns current counters.
func (w *EventWriter) Stats() Stats {
	w.batchMu.Lock()
	s := w.stats
	w.batchMu.Unlock()
	s.Buffer = w.input.Stats()
	return s
}

// consumeLoop moves rows from the queue into the pending batch until the
// queue is closed and empty.
func (w *EventWriter) consumeLoop() {
	defer close(w.consumed)

	for {
		rows := w.input.ReceiveBatch(w.cfg.BatchSize)
		if rows == nil {
			return
		}

		w.batchMu.Lock()
		w.batch = append(w.batch, rows...)
		shouldFlush := len(w.batch) >= w.cfg.BatchSize
		w.batchMu.Unlock()

		if shouldFlush {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes a partial batch.
func (w *EventWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// transform converts an Event to an eventRow.
func (w *EventWriter) transform(e model.Event) eventRow {
	row := eventRow{
		ID:         e.ID,
		Type:       e.Type,
		Severity:   int16(e.Severity),
		Source:     e.Source,
		Metadata:   e.Metadata,
		ForkliftID: e.ForkliftID,
		ReceivedAt: w.now().UTC(),
	}
	if !e.Timestamp.IsZero() {
		ts := e.Timestamp.UTC()
		row.Timestamp = &ts
	}
	if row.Metadata == nil {
		row.Metadata = map[string]any{}
	}
	return row
}

// flush writes the current batch to the database.
func (w *EventWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]eventRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, w.cfg.WriteTimeout)
	defer cancel()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.metrics.IncArchiveErrors()
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	inserted := len(batch) - conflicts
	w.metrics.AddEventsArchived(inserted)

	w.batchMu.Lock()
	w.stats.Inserts += int64(inserted)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *EventWriter) batchInsert(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	if w.db == nil {
		return 0, errors.New("no database configured")
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertEvent,
			r.ID, r.Timestamp, r.Type, r.Severity, r.Source, r.Metadata, r.ForkliftID, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
