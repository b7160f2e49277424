package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/inscripciones-api/internal/models"
	syncengine "github.com/noah-isme/inscripciones-api/internal/sync"
	"github.com/noah-isme/inscripciones-api/pkg/config"
	appErrors "github.com/noah-isme/inscripciones-api/pkg/errors"
)

type syncEngine interface {
	Push(ctx context.Context, spreadsheetID string) error
	PushAll(ctx context.Context, spreadsheetID string) error
	Mirror(ctx context.Context, spreadsheetID string) (*models.SyncStats, error)
	RestoreLocalBackup() (int, string, error)
}

// SyncStatus is the externally visible state of the sync subsystem.
type SyncStatus struct {
	Enabled       bool    `json:"enabled"`
	SpreadsheetID string  `json:"spreadsheet_id,omitempty"`
	SyncMode      string  `json:"sync_mode"`
	CacheAge      float64 `json:"cache_age_seconds"`
	ShouldSync    bool    `json:"should_sync"`
}

// SyncService exposes the sync protocols to the HTTP surface, enforcing the
// guard and the configured mode.
type SyncService struct {
	engine   syncEngine
	guard    *syncengine.Guard
	settings *config.Settings
	logger   *zap.Logger
}

// NewSyncService constructs SyncService. engine may be nil when remote sync
// is not configured; every operation then fails with SYNC_DISABLED.
func NewSyncService(engine syncEngine, guard *syncengine.Guard, settings *config.Settings, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{engine: engine, guard: guard, settings: settings, logger: logger}
}

// Status reports sync configuration and guard state.
func (s *SyncService) Status(ctx context.Context) *SyncStatus {
	st := &SyncStatus{
		Enabled:       s.enabled(),
		SpreadsheetID: s.settings.GetString("google_sheets.spreadsheet_id"),
		SyncMode:      s.settings.GetString("google_sheets.sync_mode"),
	}
	if s.guard != nil {
		st.CacheAge = s.guard.CacheAge().Seconds()
		st.ShouldSync = s.guard.ShouldSync()
	}
	return st
}

// Push runs the configured push protocol immediately.
func (s *SyncService) Push(ctx context.Context, full bool) error {
	spreadsheetID, err := s.ready()
	if err != nil {
		return err
	}
	if full {
		err = s.engine.PushAll(ctx, spreadsheetID)
	} else {
		err = s.engine.Push(ctx, spreadsheetID)
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrRemoteUnavailable.Code, appErrors.ErrRemoteUnavailable.Status, "push failed")
	}
	s.markSynced()
	return nil
}

// Mirror replaces the local store from the remote. force bypasses the guard.
func (s *SyncService) Mirror(ctx context.Context, force bool) (*models.SyncStats, error) {
	spreadsheetID, err := s.ready()
	if err != nil {
		return nil, err
	}
	if !force && s.guard != nil && !s.guard.ShouldSync() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a sync ran recently, retry later or force")
	}
	stats, err := s.engine.Mirror(ctx, spreadsheetID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRemoteUnavailable.Code, appErrors.ErrRemoteUnavailable.Status, "mirror failed")
	}
	s.markSynced()
	return stats, nil
}

// RestoreBackup loads the last remote snapshot into the primary store.
func (s *SyncService) RestoreBackup(ctx context.Context) (int, string, error) {
	if s.engine == nil {
		return 0, "", appErrors.Clone(appErrors.ErrSyncDisabled, "")
	}
	count, stamp, err := s.engine.RestoreLocalBackup()
	if err != nil {
		return 0, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "backup restore failed")
	}
	return count, stamp, nil
}

func (s *SyncService) enabled() bool {
	return s.engine != nil && s.settings.GetBool("google_sheets.enabled")
}

func (s *SyncService) ready() (string, error) {
	if !s.enabled() {
		return "", appErrors.Clone(appErrors.ErrSyncDisabled, "")
	}
	spreadsheetID := s.settings.GetString("google_sheets.spreadsheet_id")
	if spreadsheetID == "" {
		return "", appErrors.Clone(appErrors.ErrSyncDisabled, "no spreadsheet configured")
	}
	return spreadsheetID, nil
}

func (s *SyncService) markSynced() {
	if s.guard != nil {
		s.guard.MarkSynced()
	}
}
