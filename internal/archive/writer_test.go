package archive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/repairtracker/repairsync/internal/model"
	"github.com/repairtracker/repairsync/internal/wire"
)

// fakeDB records SendBatch calls and succeeds every statement.
type fakeDB struct {
	mu      sync.Mutex
	calls   int
	lastLen int
	ctxErr  error
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastLen = b.Len()
	f.ctxErr = ctx.Err()
	return fakeResults{}
}

type fakeResults struct{}

func (fakeResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, nil }
func (fakeResults) Query() (pgx.Rows, error)         { return nil, nil }
func (fakeResults) QueryRow() pgx.Row                { return nil }
func (fakeResults) Close() error                     { return nil }

func TestTransformOrder(t *testing.T) {
	order := model.RepairOrder{
		ID:               7,
		Key:              "RO-7",
		Name:             "Hashboard batch",
		StatusID:         2,
		Summary:          "32 boards",
		Color:            "#FF8800",
		Created:          "2026-08-01T10:00:00Z",
		Received:         "2026-08-02T09:00:00Z",
		ReceivedQuantity: 32,
	}

	row := transformOrder(order, 1700000000000000)

	if row.ID != 7 {
		t.Errorf("ID = %d, want 7", row.ID)
	}
	if row.Key != "RO-7" {
		t.Errorf("Key = %s, want RO-7", row.Key)
	}
	if row.Name != "Hashboard batch" {
		t.Errorf("Name = %s, want Hashboard batch", row.Name)
	}
	if row.StatusID != 2 {
		t.Errorf("StatusID = %d, want 2", row.StatusID)
	}
	if row.ReceivedQuantity != 32 {
		t.Errorf("ReceivedQuantity = %d, want 32", row.ReceivedQuantity)
	}
	if row.SyncedAt != 1700000000000000 {
		t.Errorf("SyncedAt = %d, want 1700000000000000", row.SyncedAt)
	}
}

func TestTransformUnitEventsJSON(t *testing.T) {
	unit := model.RepairUnit{
		ID:              12,
		Key:             "RU-12",
		Serial:          "SN-991",
		Type:            "machine",
		ModelID:         3,
		CurrentStatusID: 1,
		RepairOrderID:   7,
		Events: []model.StatusEvent{
			{ID: "e1", Type: "status", StatusKey: "ST-1", Timestamp: "2026-08-02T09:00:00Z"},
		},
	}

	row := transformUnit(unit, 1)

	if row.ID != 12 || row.RepairOrderID != 7 {
		t.Errorf("row = %+v", row)
	}
	want := `[{"id":"e1","type":"status","assignee":"","timestamp":"2026-08-02T09:00:00Z","status_key":"ST-1"}]`
	if string(row.Events) != want {
		t.Errorf("Events = %s, want %s", row.Events, want)
	}
}

func TestHandleEnvelopeQueuesOrders(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     100, // large batch so no auto-flush
		FlushInterval: time.Hour,
	}
	w := NewWriter(cfg, nil, nil)

	env, err := wire.NewUpdate(wire.MainOrdersChannel, []model.RepairOrder{
		{ID: 1, Key: "RO-1"},
		{ID: 2, Key: "RO-2"},
	})
	if err != nil {
		t.Fatalf("NewUpdate: %v", err)
	}

	w.HandleEnvelope(env)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	if len(w.orders) != 2 {
		t.Errorf("orders batch length = %d, want 2", len(w.orders))
	}
}

func TestHandleEnvelopeQueuesUnits(t *testing.T) {
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Hour}
	w := NewWriter(cfg, nil, nil)

	env, err := wire.NewUpdate(wire.OrderChannel(7), []model.RepairUnit{
		{ID: 12, Key: "RU-12", RepairOrderID: 7},
	})
	if err != nil {
		t.Fatalf("NewUpdate: %v", err)
	}

	w.HandleEnvelope(env)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	if len(w.units) != 1 {
		t.Errorf("units batch length = %d, want 1", len(w.units))
	}
}

func TestHandleEnvelopeDeleteKeys(t *testing.T) {
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Hour}
	w := NewWriter(cfg, nil, nil)

	w.HandleEnvelope(wire.NewDelete(wire.MainOrdersChannel, []string{"RO-3", "RU-9", "ZZ-1", "garbage"}))

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	if len(w.orderDels) != 1 || w.orderDels[0] != 3 {
		t.Errorf("orderDels = %v, want [3]", w.orderDels)
	}
	if len(w.unitDels) != 1 || w.unitDels[0] != 9 {
		t.Errorf("unitDels = %v, want [9]", w.unitDels)
	}
	if w.metrics.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2 for the malformed keys", w.metrics.Dropped)
	}
}

func TestHandleEnvelopeIgnoresOtherChannels(t *testing.T) {
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Hour}
	w := NewWriter(cfg, nil, nil)

	env, err := wire.NewUpdate(wire.MainListsChannel, []model.Assignee{{ID: 1, Key: "AS-1"}})
	if err != nil {
		t.Fatalf("NewUpdate: %v", err)
	}
	w.HandleEnvelope(env)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	if w.pendingLocked() != 0 {
		t.Errorf("pending = %d, want 0: reference lists are not archived", w.pendingLocked())
	}
}

func TestHandleEnvelopeUndecodableData(t *testing.T) {
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Hour}
	w := NewWriter(cfg, nil, nil)

	w.HandleEnvelope(wire.Envelope{
		Type:    wire.TypeUpdate,
		Channel: wire.MainOrdersChannel,
		Data:    []byte(`"nonsense"`),
	})

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	if len(w.orders) != 0 {
		t.Errorf("orders batch length = %d, want 0", len(w.orders))
	}
	if w.metrics.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", w.metrics.Dropped)
	}
}

func TestWriterLifecycle(t *testing.T) {
	cfg := WriterConfig{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}

	// No database: this tests the goroutine lifecycle only.
	w := NewWriter(cfg, nil, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestStopFlushesRemainingBatch(t *testing.T) {
	db := &fakeDB{}
	cfg := WriterConfig{
		BatchSize:     100, // large batch so only Stop flushes
		FlushInterval: time.Hour,
	}
	w := NewWriter(cfg, db, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	env, err := wire.NewUpdate(wire.MainOrdersChannel, []model.RepairOrder{
		{ID: 1, Key: "RO-1"},
		{ID: 2, Key: "RO-2"},
	})
	if err != nil {
		t.Fatalf("NewUpdate: %v", err)
	}
	w.HandleEnvelope(env)
	w.HandleEnvelope(wire.NewDelete(wire.MainOrdersChannel, []string{"RO-3"}))

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	db.mu.Lock()
	calls, lastLen, ctxErr := db.calls, db.lastLen, db.ctxErr
	db.mu.Unlock()

	if calls != 1 {
		t.Fatalf("SendBatch calls = %d, want 1", calls)
	}
	if lastLen != 3 {
		t.Errorf("final batch length = %d, want 3 (2 upserts + 1 delete)", lastLen)
	}
	// The final flush must run under a live context, not the cancelled
	// flush-loop context, or the last batch is lost on shutdown.
	if ctxErr != nil {
		t.Errorf("SendBatch context already done: %v", ctxErr)
	}

	stats := w.Stats()
	if stats.Upserts != 2 || stats.Deletes != 1 || stats.Flushes != 1 {
		t.Errorf("stats = %+v, want 2 upserts, 1 delete, 1 flush", stats)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", stats.Errors)
	}
}

func TestWriterStats(t *testing.T) {
	w := NewWriter(DefaultWriterConfig(), nil, nil)

	stats := w.Stats()

	if stats.Upserts != 0 {
		t.Errorf("initial Upserts = %d, want 0", stats.Upserts)
	}
	if stats.Errors != 0 {
		t.Errorf("initial Errors = %d, want 0", stats.Errors)
	}
}
