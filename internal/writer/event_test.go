package writer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/safelift-feed/internal/metrics"
	"github.com/rickgao/safelift-feed/internal/model"
)

// fakeDB records queued rows and reports ids it has stored before as conflicts.
type fakeDB struct {
	mu      sync.Mutex
	stored  map[int64]bool
	batches int
	failErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{stored: make(map[int64]bool)}
}

func (db *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.batches++

	res := &fakeResults{err: db.failErr}
	for _, q := range b.QueuedQueries {
		id := q.Arguments[0].(int64)
		if db.stored[id] {
			res.tags = append(res.tags, pgconn.NewCommandTag("INSERT 0 0"))
			continue
		}
		db.stored[id] = true
		res.tags = append(res.tags, pgconn.NewCommandTag("INSERT 0 1"))
	}
	return res
}

func (db *fakeDB) count() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.stored)
}

type fakeResults struct {
	tags []pgconn.CommandTag
	i    int
	err  error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	tag := r.tags[r.i]
	r.i++
	return tag, nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

type archiveCounter struct {
	metrics.Nop
	archived atomic.Int64
	errors   atomic.Int64
}

func (c *archiveCounter) AddEventsArchived(n int) { c.archived.Add(int64(n)) }
func (c *archiveCounter) IncArchiveErrors()       { c.errors.Add(1) }

func testEvent(id int64) model.Event {
	forklift := int64(7)
	return model.Event{
		ID:         id,
		Timestamp:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.FixedZone("CET", 3600)),
		Type:       "speed_violation",
		Severity:   model.SeverityHigh,
		Source:     "camera_01",
		Metadata:   map[string]any{"speed": 12.5},
		ForkliftID: &forklift,
	}
}

func TestEventWriter_Transform(t *testing.T) {
	w := NewEventWriter(DefaultConfig(), nil, nil)
	receivedAt := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return receivedAt }

	row := w.transform(testEvent(42))

	assert.Equal(t, int64(42), row.ID)
	require.NotNil(t, row.Timestamp)
	assert.Equal(t, time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC), *row.Timestamp)
	assert.Equal(t, time.UTC, row.Timestamp.Location())
	assert.Equal(t, int16(4), row.Severity)
	assert.Equal(t, "camera_01", row.Source)
	assert.Equal(t, 12.5, row.Metadata["speed"])
	require.NotNil(t, row.ForkliftID)
	assert.Equal(t, int64(7), *row.ForkliftID)
	assert.Equal(t, receivedAt, row.ReceivedAt)
}

func TestEventWriter_Transform_Sparse(t *testing.T) {
	w := NewEventWriter(DefaultConfig(), nil, nil)

	row := w.transform(model.Event{ID: 1, Type: "impact", Severity: model.SeverityCritical, Source: "s"})

	assert.Nil(t, row.Timestamp, "zero timestamp stored as NULL")
	assert.NotNil(t, row.Metadata)
	assert.Empty(t, row.Metadata)
	assert.Nil(t, row.ForkliftID)
}

func TestEventWriter_FlushCountsConflicts(t *testing.T) {
	db := newFakeDB()
	counter := &archiveCounter{}
	w := NewEventWriter(Config{BatchSize: 100, FlushInterval: time.Hour}, db, nil, WithMetrics(counter))

	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, w.HandleEvent(testEvent(id)))
	}
	w.batch = append(w.batch, w.input.DrainTo(0)...)
	w.flush(context.Background())

	// 2 and 3 again, e.g. from a refresh after the push stream delivered them.
	require.NoError(t, w.HandleBatch([]model.Event{testEvent(2), testEvent(3), testEvent(4)}))
	w.batch = append(w.batch, w.input.DrainTo(0)...)
	w.flush(context.Background())

	stats := w.Stats()
	assert.Equal(t, int64(4), stats.Inserts)
	assert.Equal(t, int64(2), stats.Conflicts)
	assert.Equal(t, int64(2), stats.Flushes)
	assert.Equal(t, int64(4), counter.archived.Load())
	assert.Equal(t, 4, db.count())
}

func TestEventWriter_FlushError(t *testing.T) {
	db := newFakeDB()
	db.failErr = errors.New("connection reset")
	counter := &archiveCounter{}
	w := NewEventWriter(Config{BatchSize: 100, FlushInterval: time.Hour}, db, nil, WithMetrics(counter))

	require.NoError(t, w.HandleEvent(testEvent(1)))
	w.batch = append(w.batch, w.input.DrainTo(0)...)
	w.flush(context.Background())

	assert.Equal(t, int64(1), w.Stats().Errors)
	assert.Equal(t, int64(1), counter.errors.Load())
	assert.Zero(t, counter.archived.Load())
}

func TestEventWriter_NoDatabase(t *testing.T) {
	w := NewEventWriter(DefaultConfig(), nil, nil)

	require.NoError(t, w.HandleEvent(testEvent(1)))
	w.batch = append(w.batch, w.input.DrainTo(0)...)
	w.flush(context.Background())

	assert.Equal(t, int64(1), w.Stats().Errors)
}

func TestEventWriter_BatchSizeTriggersFlush(t *testing.T) {
	db := newFakeDB()
	w := NewEventWriter(Config{BatchSize: 5, FlushInterval: time.Hour}, db, nil)

	require.NoError(t, w.Start(context.Background()))
	for id := int64(1); id <= 5; id++ {
		require.NoError(t, w.HandleEvent(testEvent(id)))
	}

	require.Eventually(t, func() bool { return db.count() == 5 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))
}

func TestEventWriter_IntervalFlush(t *testing.T) {
	db := newFakeDB()
	w := NewEventWriter(Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, db, nil)

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.HandleEvent(testEvent(1)))

	require.Eventually(t, func() bool { return db.count() == 1 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))
}

func TestEventWriter_StopFlushesPending(t *testing.T) {
	db := newFakeDB()
	w := NewEventWriter(Config{BatchSize: 100, FlushInterval: time.Hour}, db, nil)

	require.NoError(t, w.Start(context.Background()))
	for id := int64(1); id <= 3; id++ {
		require.NoError(t, w.HandleEvent(testEvent(id)))
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))

	assert.Equal(t, 3, db.count())
	assert.ErrorIs(t, w.HandleEvent(testEvent(4)), ErrWriterClosed)
}

func TestEventWriter_Lifecycle(t *testing.T) {
	w := NewEventWriter(Config{BatchSize: 10, FlushInterval: 100 * time.Millisecond}, nil, nil)

	require.NoError(t, w.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, w.Stop(stopCtx))

	stats := w.Stats()
	assert.Zero(t, stats.Inserts)
	assert.Zero(t, stats.Errors)
}
