package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/inscripciones-api/internal/models"
	"github.com/noah-isme/inscripciones-api/pkg/config"
	"github.com/noah-isme/inscripciones-api/pkg/jobs"
)

// Background runs push syncs on detached workers after local saves and
// deletes. It never blocks the foreground path; failures are logged and the
// save stands. Concurrent workers are unordered, the spreadsheet API's own
// serialization is the only coordination.
type Background struct {
	queue    *jobs.Queue
	engine   *Engine
	settings *config.Settings
	guard    *Guard
	logger   *zap.Logger
}

// NewBackground wires the sync queue around the engine.
func NewBackground(engine *Engine, settings *config.Settings, guard *Guard, cfg config.SyncWorkerConfig, logger *zap.Logger) *Background {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Background{engine: engine, settings: settings, guard: guard, logger: logger}
	b.queue = jobs.NewQueue("sheet-sync", b.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 1,
		RetryDelay: 5 * time.Second,
		Logger:     logger,
	})
	return b
}

// Start launches the worker pool.
func (b *Background) Start(ctx context.Context) {
	b.queue.Start(ctx)
}

// Stop drains the worker pool.
func (b *Background) Stop() {
	b.queue.Stop()
}

// Dispatch queues a sync for a record operation (insert, update, delete).
// A no-op when remote sync is disabled.
func (b *Background) Dispatch(operation string, rec models.Record) {
	if b == nil || b.engine == nil {
		return
	}
	if !b.settings.GetBool("google_sheets.enabled") || !b.settings.GetBool("google_sheets.auto_sync") {
		return
	}
	job := jobs.Job{
		ID:      fmt.Sprintf("%s-%s", operation, rec.ID()),
		Type:    operation,
		Payload: rec.ID(),
	}
	if err := b.queue.Enqueue(job); err != nil {
		b.logger.Sugar().Warnw("background sync not queued", "operation", operation, "record", rec.ID(), "error", err)
	}
}

func (b *Background) handle(ctx context.Context, job jobs.Job) error {
	spreadsheetID := b.settings.GetString("google_sheets.spreadsheet_id")
	if spreadsheetID == "" {
		b.logger.Sugar().Warnw("background sync skipped, no spreadsheet configured", "job", job.ID)
		return nil
	}

	if job.Type == models.SyncOpDelete {
		if id, ok := job.Payload.(string); ok && id != "" {
			if err := b.engine.DeleteRemoteByID(ctx, spreadsheetID, id); err != nil {
				b.logger.Sugar().Warnw("remote delete failed, falling back to push", "id", id, "error", err)
			}
		}
	}

	if err := b.engine.Push(ctx, spreadsheetID); err != nil {
		return fmt.Errorf("background push: %w", err)
	}
	if b.guard != nil {
		b.guard.MarkSynced()
	}
	return nil
}
