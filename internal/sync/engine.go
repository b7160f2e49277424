package sync

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/inscripciones-api/internal/identity"
	"github.com/noah-isme/inscripciones-api/internal/models"
	"github.com/noah-isme/inscripciones-api/pkg/config"
)

// localStore is the slice of the record store the engine needs.
type localStore interface {
	LoadAll() ([]models.Record, error)
	SaveAll(records []models.Record) error
}

// Observer receives sync operation outcomes for instrumentation.
type Observer interface {
	ObserveSync(operation string, success bool)
}

var fechaLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Engine reconciles the local record store with the remote spreadsheet.
// The mirror protocol is remote-authoritative: local rows absent from the
// remote are dropped, so local deletions not yet pushed are overwritten
// back. Every successful remote read snapshots the downloaded view to the
// backup store, which is the only disaster-recovery mechanism.
type Engine struct {
	sheet    TabularSheet
	store    localStore
	backup   localStore
	settings *config.Settings
	metrics  Observer
	logger   *zap.Logger

	stampPath string
	now       func() time.Time
}

// NewEngine builds a sync engine. backup receives the snapshot of every
// successful remote read; stampPath records when that snapshot was taken.
// metrics may be nil.
func NewEngine(sheet TabularSheet, store, backup localStore, settings *config.Settings, stampPath string, metrics Observer, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		sheet:     sheet,
		store:     store,
		backup:    backup,
		settings:  settings,
		metrics:   metrics,
		logger:    logger,
		stampPath: stampPath,
		now:       time.Now,
	}
}

// Push runs the configured push protocol: incremental by default, full when
// google_sheets.sync_mode is "full".
func (e *Engine) Push(ctx context.Context, spreadsheetID string) error {
	if e.settings.GetString("google_sheets.sync_mode") == "full" {
		return e.PushAll(ctx, spreadsheetID)
	}
	window := time.Duration(e.settings.GetInt("google_sheets.sync_window_hours")) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}
	_, err := e.PushIncremental(ctx, spreadsheetID, window)
	return err
}

// PushAll rewrites the remote sheet from the full local store: clear, then
// header plus one row per record in file order.
func (e *Engine) PushAll(ctx context.Context, spreadsheetID string) error {
	records, err := e.store.LoadAll()
	if err != nil {
		return fmt.Errorf("load local records: %w", err)
	}
	err = e.pushRows(ctx, spreadsheetID, records)
	e.observe(models.SyncOpPush, err)
	return err
}

// PushIncremental downloads the remote view, drops remote rows deleted
// locally, appends local records created within the window, and rewrites
// the sheet. Field edits on already-pushed records do not propagate; the
// remote keeps its own version of retained rows.
func (e *Engine) PushIncremental(ctx context.Context, spreadsheetID string, window time.Duration) (*models.SyncStats, error) {
	local, err := e.store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load local records: %w", err)
	}
	remote, _, err := e.readRemote(ctx, spreadsheetID)
	if err != nil {
		e.observe(models.SyncOpPush, err)
		return nil, err
	}

	localIdx := indexByID(local)
	remoteIdx := indexByID(remote)

	cutoff := e.now().Add(-window)
	recent := make([]models.Record, 0)
	for _, rec := range local {
		if _, exists := remoteIdx[rec.ID()]; exists {
			continue
		}
		if withinWindow(rec.Get("fecha_inscripcion"), cutoff) {
			recent = append(recent, rec)
		}
	}

	result := make([]models.Record, 0, len(remote)+len(recent))
	removed := 0
	for _, rec := range remote {
		if _, keep := localIdx[rec.ID()]; !keep {
			removed++
			continue
		}
		result = append(result, rec)
	}
	result = append(result, recent...)

	if err := e.pushRows(ctx, spreadsheetID, result); err != nil {
		e.observe(models.SyncOpPush, err)
		return nil, err
	}
	e.observe(models.SyncOpPush, nil)

	stats := &models.SyncStats{
		Added:           len(recent),
		Removed:         removed,
		Unchanged:       len(result) - len(recent),
		LocalTotalAfter: len(local),
	}
	e.logger.Sugar().Infow("incremental push finished",
		"added", stats.Added, "removed", stats.Removed, "remote_total", len(result))
	return stats, nil
}

// Mirror replaces the local store with the remote view: the remote is
// authoritative. Rows without an ID are repaired deterministically; rows
// whose non-id fields are all blank are skipped.
func (e *Engine) Mirror(ctx context.Context, spreadsheetID string) (*models.SyncStats, error) {
	remote, skipped, err := e.readRemote(ctx, spreadsheetID)
	if err != nil {
		e.observe(models.SyncOpMirror, err)
		return nil, err
	}

	local, err := e.store.LoadAll()
	if err != nil {
		e.observe(models.SyncOpMirror, err)
		return nil, fmt.Errorf("load local records: %w", err)
	}
	localIdx := indexByID(local)

	stats := &models.SyncStats{Skipped: skipped}
	remoteIDs := make(map[string]struct{}, len(remote))
	for _, rec := range remote {
		remoteIDs[rec.ID()] = struct{}{}
		prev, exists := localIdx[rec.ID()]
		switch {
		case !exists:
			stats.Added++
		case prev.EqualCanonical(rec):
			stats.Unchanged++
		default:
			stats.Updated++
		}
	}
	for id := range localIdx {
		if _, ok := remoteIDs[id]; !ok {
			stats.Removed++
		}
	}

	if err := e.store.SaveAll(remote); err != nil {
		e.observe(models.SyncOpMirror, err)
		return nil, fmt.Errorf("save mirrored records: %w", err)
	}
	stats.LocalTotalAfter = len(remote)
	e.observe(models.SyncOpMirror, nil)
	e.logger.Sugar().Infow("mirror finished",
		"added", stats.Added, "updated", stats.Updated, "removed", stats.Removed,
		"skipped", stats.Skipped, "total", stats.LocalTotalAfter)
	return stats, nil
}

// DeleteRemoteByID removes every remote row whose first column equals id.
// Row deletes are batched in descending order so indices stay valid.
func (e *Engine) DeleteRemoteByID(ctx context.Context, spreadsheetID, id string) error {
	info, err := e.resolveSheet(ctx, spreadsheetID, false)
	if err != nil {
		return err
	}
	quoted := QuoteSheetName(info.Title)
	column, err := e.sheet.ReadRange(ctx, spreadsheetID, quoted+"!A:A")
	if err != nil {
		return fmt.Errorf("scan id column: %w", err)
	}

	var ranges []RowRange
	for i := len(column) - 1; i >= 0; i-- {
		if len(column[i]) > 0 && column[i][0] == id {
			ranges = append(ranges, RowRange{Start: int64(i), End: int64(i + 1)})
		}
	}
	if len(ranges) == 0 {
		return nil
	}
	if err := e.sheet.DeleteRows(ctx, spreadsheetID, info.ID, ranges); err != nil {
		return err
	}
	e.logger.Sugar().Infow("remote rows deleted", "id", id, "rows", len(ranges))
	return nil
}

// LoadLocalBackup returns the last snapshot taken from the remote, plus the
// timestamp recorded when it was written.
func (e *Engine) LoadLocalBackup() ([]models.Record, string, error) {
	records, err := e.backup.LoadAll()
	if err != nil {
		return nil, "", fmt.Errorf("load backup: %w", err)
	}
	stamp := ""
	if e.stampPath != "" {
		if data, err := os.ReadFile(e.stampPath); err == nil {
			stamp = strings.TrimSpace(string(data))
		}
	}
	return records, stamp, nil
}

// RestoreLocalBackup replaces the primary store with the backup snapshot.
// Returns the number of restored records and the snapshot timestamp.
func (e *Engine) RestoreLocalBackup() (int, string, error) {
	records, stamp, err := e.LoadLocalBackup()
	if err != nil {
		return 0, "", err
	}
	if err := e.store.SaveAll(records); err != nil {
		return 0, "", fmt.Errorf("restore backup: %w", err)
	}
	e.logger.Sugar().Warnw("primary store restored from backup", "records", len(records), "snapshot", stamp)
	return len(records), stamp, nil
}

func (e *Engine) pushRows(ctx context.Context, spreadsheetID string, records []models.Record) error {
	info, err := e.resolveSheet(ctx, spreadsheetID, true)
	if err != nil {
		return err
	}
	quoted := QuoteSheetName(info.Title)

	header := headerFor(records)
	matrix := make([][]string, 0, len(records)+1)
	matrix = append(matrix, header)
	for _, rec := range records {
		matrix = append(matrix, rec.Row(header))
	}

	if err := e.sheet.ClearRange(ctx, spreadsheetID, quoted); err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}
	if err := e.sheet.UpdateRange(ctx, spreadsheetID, quoted+"!A1", matrix); err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}

	// Read back a small sample so a silent write failure shows up in logs.
	sample, err := e.sheet.ReadRange(ctx, spreadsheetID, quoted+"!A1:C3")
	if err != nil {
		e.logger.Sugar().Warnw("post-push verification read failed", "error", err)
	} else {
		e.logger.Sugar().Infow("push finished", "sheet", info.Title, "rows", len(records), "sample_rows", len(sample))
	}
	return nil
}

// readRemote downloads the resolved sheet as records and snapshots them to
// the backup store.
func (e *Engine) readRemote(ctx context.Context, spreadsheetID string) ([]models.Record, int, error) {
	info, err := e.resolveSheet(ctx, spreadsheetID, false)
	if err != nil {
		return nil, 0, err
	}
	quoted := QuoteSheetName(info.Title)
	rows, err := e.sheet.ReadRange(ctx, spreadsheetID, quoted)
	if err != nil {
		return nil, 0, fmt.Errorf("read sheet: %w", err)
	}

	header := models.Columns
	data := rows
	if e.settings.GetBool("google_sheets.has_header_row") && len(rows) > 0 {
		header = make([]string, len(rows[0]))
		for i, name := range rows[0] {
			header[i] = strings.TrimSpace(name)
		}
		data = rows[1:]
	}

	records := make([]models.Record, 0, len(data))
	skipped := 0
	for _, row := range data {
		rec := models.FromRow(header, row)
		for _, field := range models.Columns {
			if _, ok := rec[field]; !ok {
				rec[field] = ""
			}
		}
		if rec.Blank() {
			skipped++
			continue
		}
		if rec.ID() == "" {
			rec["id"] = identity.Repair(rec)
			e.logger.Sugar().Infow("repaired missing id",
				"id", rec.ID(), "dni", rec.Get("dni"), "legajo", rec.Get("legajo"))
		}
		records = append(records, rec)
	}

	e.snapshot(records)
	return records, skipped, nil
}

// snapshot persists the downloaded view to the backup store. Failures are
// logged, never fatal: a stale backup beats a failed sync.
func (e *Engine) snapshot(records []models.Record) {
	if e.backup == nil {
		return
	}
	if err := e.backup.SaveAll(records); err != nil {
		e.logger.Sugar().Warnw("backup snapshot failed", "error", err)
		return
	}
	if e.stampPath != "" {
		stamp := e.now().Format(time.RFC3339)
		if err := os.WriteFile(e.stampPath, []byte(stamp+"\n"), 0o644); err != nil {
			e.logger.Sugar().Warnw("backup stamp write failed", "error", err)
		}
	}
}

// resolveSheet picks the configured sheet name, falling back to the first
// sheet. A configured but missing sheet is created when create is set.
func (e *Engine) resolveSheet(ctx context.Context, spreadsheetID string, create bool) (SheetInfo, error) {
	infos, err := e.sheet.ListSheets(ctx, spreadsheetID)
	if err != nil {
		return SheetInfo{}, fmt.Errorf("list sheets: %w", err)
	}

	configured := e.settings.GetString("google_sheets.sheet_name")
	if configured == "" {
		if len(infos) == 0 {
			return SheetInfo{}, fmt.Errorf("spreadsheet %s has no sheets", spreadsheetID)
		}
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Title == configured {
			return info, nil
		}
	}
	if !create {
		return SheetInfo{}, fmt.Errorf("sheet %q not found", configured)
	}
	id, err := e.sheet.AddSheet(ctx, spreadsheetID, configured)
	if err != nil {
		return SheetInfo{}, fmt.Errorf("create sheet %q: %w", configured, err)
	}
	e.logger.Sugar().Infow("sheet created", "title", configured)
	return SheetInfo{ID: id, Title: configured}, nil
}

func (e *Engine) observe(op string, err error) {
	if e.metrics != nil {
		e.metrics.ObserveSync(op, err == nil)
	}
}

// headerFor intersects the canonical column order with the first record's
// fields, falling back to the full canonical order.
func headerFor(records []models.Record) []string {
	if len(records) == 0 {
		return models.Columns
	}
	first := records[0]
	header := make([]string, 0, len(models.Columns))
	for _, field := range models.Columns {
		if _, ok := first[field]; ok {
			header = append(header, field)
		}
	}
	if len(header) == 0 {
		return models.Columns
	}
	return header
}

func indexByID(records []models.Record) map[string]models.Record {
	idx := make(map[string]models.Record, len(records))
	for _, rec := range records {
		idx[rec.ID()] = rec
	}
	return idx
}

// withinWindow reports whether the record timestamp falls after the cutoff.
// Unparsable or missing timestamps are included by default.
func withinWindow(fecha string, cutoff time.Time) bool {
	fecha = strings.TrimSpace(fecha)
	if fecha == "" {
		return true
	}
	for _, layout := range fechaLayouts {
		if t, err := time.ParseInLocation(layout, fecha, time.Local); err == nil {
			return t.After(cutoff)
		}
	}
	return true
}
