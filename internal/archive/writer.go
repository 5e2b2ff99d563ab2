package archive

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/repairtracker/repairsync/internal/model"
	"github.com/repairtracker/repairsync/internal/wire"
)

// DB is the surface of pgxpool.Pool the writer uses.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Writer batches repair order and repair unit changes into the mirror
// database. Feed it envelopes with HandleEnvelope, typically registered as
// a subscription listener.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger

	db DB

	batchMu     sync.Mutex
	orders      []orderRow
	units       []unitRow
	orderDels   []int64
	unitDels    []int64
	metrics     Metrics
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a batch writer over the given pool.
func NewWriter(cfg WriterConfig, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		orders: make([]orderRow, 0, cfg.BatchSize),
		units:  make([]unitRow, 0, cfg.BatchSize),
	}
}

// Start begins the periodic flush loop.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer and flushes the remaining batch
// under the caller's context, which stays live after the flush loop's own
// context is cancelled.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("archive writer stopped")
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
	}

	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// HandleEnvelope queues the changes carried by one envelope. Order updates
// arrive on the main orders channel, unit updates on per-order channels.
// Anything else is ignored.
func (w *Writer) HandleEnvelope(env wire.Envelope) {
	switch env.Type {
	case wire.TypeUpdate:
		w.handleUpdate(env)
	case wire.TypeDelete:
		w.handleDelete(env)
	}
}

func (w *Writer) handleUpdate(env wire.Envelope) {
	now := time.Now().UnixMicro()

	switch {
	case env.Channel == wire.MainOrdersChannel:
		var orders []model.RepairOrder
		if err := json.Unmarshal(env.Data, &orders); err != nil {
			w.logger.Warn("dropping undecodable order update", "error", err)
			w.batchMu.Lock()
			w.metrics.Dropped++
			w.batchMu.Unlock()
			return
		}
		w.batchMu.Lock()
		for _, o := range orders {
			w.orders = append(w.orders, transformOrder(o, now))
		}
		shouldFlush := w.pendingLocked() >= w.cfg.BatchSize
		w.batchMu.Unlock()
		if shouldFlush {
			w.flush(w.ctx)
		}

	case strings.HasPrefix(env.Channel, "order:"):
		var units []model.RepairUnit
		if err := json.Unmarshal(env.Data, &units); err != nil {
			w.logger.Warn("dropping undecodable unit update", "error", err, "channel", env.Channel)
			w.batchMu.Lock()
			w.metrics.Dropped++
			w.batchMu.Unlock()
			return
		}
		w.batchMu.Lock()
		for _, u := range units {
			w.units = append(w.units, transformUnit(u, now))
		}
		shouldFlush := w.pendingLocked() >= w.cfg.BatchSize
		w.batchMu.Unlock()
		if shouldFlush {
			w.flush(w.ctx)
		}
	}
}

func (w *Writer) handleDelete(env wire.Envelope) {
	keys, err := env.DeleteKeys()
	if err != nil {
		w.logger.Warn("dropping undecodable delete", "error", err, "channel", env.Channel)
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	for _, key := range keys {
		kt, id, err := wire.ParseKey(key)
		if err != nil {
			w.metrics.Dropped++
			continue
		}
		switch kt {
		case wire.KeyRepairOrder:
			w.orderDels = append(w.orderDels, id)
		case wire.KeyRepairUnit:
			w.unitDels = append(w.unitDels, id)
		}
	}
	shouldFlush := w.pendingLocked() >= w.cfg.BatchSize
	w.batchMu.Unlock()
	if shouldFlush {
		w.flush(w.ctx)
	}
}

// pendingLocked returns the total queued work. Caller holds batchMu.
func (w *Writer) pendingLocked() int {
	return len(w.orders) + len(w.units) + len(w.orderDels) + len(w.unitDels)
}

// transformOrder converts a synced order to a mirror row.
func transformOrder(o model.RepairOrder, syncedAt int64) orderRow {
	return orderRow{
		ID:               o.ID,
		Key:              o.Key,
		Name:             o.Name,
		StatusID:         o.StatusID,
		Summary:          o.Summary,
		Color:            o.Color,
		Created:          o.Created,
		Received:         o.Received,
		ReceivedQuantity: o.ReceivedQuantity,
		Started:          o.Started,
		Finished:         o.Finished,
		SyncedAt:         syncedAt,
	}
}

// transformUnit converts a synced unit to a mirror row.
func transformUnit(u model.RepairUnit, syncedAt int64) unitRow {
	events, err := json.Marshal(u.Events)
	if err != nil {
		events = []byte("[]")
	}
	return unitRow{
		ID:                u.ID,
		Key:               u.Key,
		Serial:            u.Serial,
		Type:              u.Type,
		ModelID:           u.ModelID,
		CurrentStatusID:   u.CurrentStatusID,
		CurrentAssigneeID: u.CurrentAssigneeID,
		RepairOrderID:     u.RepairOrderID,
		Created:           u.Created,
		UpdatedAt:         u.UpdatedAt,
		Events:            events,
		SyncedAt:          syncedAt,
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// flush writes all queued work to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if w.pendingLocked() == 0 {
		w.batchMu.Unlock()
		return
	}

	orders := w.orders
	units := w.units
	orderDels := w.orderDels
	unitDels := w.unitDels
	w.orders = make([]orderRow, 0, w.cfg.BatchSize)
	w.units = make([]unitRow, 0, w.cfg.BatchSize)
	w.orderDels = nil
	w.unitDels = nil
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchApply(ctx, orders, units, orderDels, unitDels); err != nil {
		w.logger.Error("batch apply failed",
			"error", err,
			"orders", len(orders),
			"units", len(units),
		)
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Upserts += int64(len(orders) + len(units))
	w.metrics.Deletes += int64(len(orderDels) + len(unitDels))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed archive batch",
		"orders", len(orders),
		"units", len(units),
		"deletes", len(orderDels)+len(unitDels),
		"duration", time.Since(start),
	)
}

// batchApply upserts and deletes rows in a single pgx batch. Upserts key on
// the server-assigned id so replayed snapshots after reconnect are
// idempotent.
func (w *Writer) batchApply(ctx context.Context, orders []orderRow, units []unitRow, orderDels, unitDels []int64) error {
	batch := &pgx.Batch{}

	for _, r := range orders {
		batch.Queue(`
			INSERT INTO repair_orders (id, key, name, status_id, summary, color, created, received, received_quantity, started, finished, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				key = EXCLUDED.key,
				name = EXCLUDED.name,
				status_id = EXCLUDED.status_id,
				summary = EXCLUDED.summary,
				color = EXCLUDED.color,
				created = EXCLUDED.created,
				received = EXCLUDED.received,
				received_quantity = EXCLUDED.received_quantity,
				started = EXCLUDED.started,
				finished = EXCLUDED.finished,
				synced_at = EXCLUDED.synced_at
		`, r.ID, r.Key, r.Name, r.StatusID, r.Summary, r.Color, r.Created, r.Received, r.ReceivedQuantity, r.Started, r.Finished, r.SyncedAt)
	}

	for _, r := range units {
		batch.Queue(`
			INSERT INTO repair_units (id, key, serial, type, model_id, current_status_id, current_assignee_id, repair_order_id, created, updated_at, events_json, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO UPDATE SET
				key = EXCLUDED.key,
				serial = EXCLUDED.serial,
				type = EXCLUDED.type,
				model_id = EXCLUDED.model_id,
				current_status_id = EXCLUDED.current_status_id,
				current_assignee_id = EXCLUDED.current_assignee_id,
				repair_order_id = EXCLUDED.repair_order_id,
				created = EXCLUDED.created,
				updated_at = EXCLUDED.updated_at,
				events_json = EXCLUDED.events_json,
				synced_at = EXCLUDED.synced_at
		`, r.ID, r.Key, r.Serial, r.Type, r.ModelID, r.CurrentStatusID, r.CurrentAssigneeID, r.RepairOrderID, r.Created, r.UpdatedAt, r.Events, r.SyncedAt)
	}

	for _, id := range orderDels {
		batch.Queue(`DELETE FROM repair_orders WHERE id = $1`, id)
	}
	for _, id := range unitDels {
		batch.Queue(`DELETE FROM repair_units WHERE id = $1`, id)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	total := len(orders) + len(units) + len(orderDels) + len(unitDels)
	for i := 0; i < total; i++ {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
