package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/inscripciones-api/internal/models"
	"github.com/noah-isme/inscripciones-api/internal/store"
	"github.com/noah-isme/inscripciones-api/pkg/config"
	appErrors "github.com/noah-isme/inscripciones-api/pkg/errors"
)

const fechaInscripcionLayout = "2006-01-02T15:04:05"

type recordStore interface {
	LoadAll() ([]models.Record, error)
	Upsert(rec models.Record) (models.Record, error)
	Delete(id string) error
	ByID(id string) (models.Record, error)
	ByDNI(dni string) (models.Record, error)
	History(dni string) ([]models.Record, error)
	CountEnrollments(materia, profesor, comision string) (int, error)
}

type catalogReader interface {
	Offering(materia, profesor, comision string) *models.Offering
}

type syncDispatcher interface {
	Dispatch(operation string, rec models.Record)
}

type remoteRefresher interface {
	Mirror(ctx context.Context, spreadsheetID string) (*models.SyncStats, error)
}

type refreshGuard interface {
	ShouldSync() bool
	MarkSynced()
}

// SaveRecordRequest carries a record to persist. ConfirmWaitlist acknowledges
// that a full offering may place the student on the waitlist.
type SaveRecordRequest struct {
	Record          models.Record `json:"record"`
	ConfirmWaitlist bool          `json:"confirm_waitlist"`
}

type recordValidation struct {
	Nombre   string `validate:"required"`
	Apellido string `validate:"required"`
	DNI      string `validate:"required,number,min=7,max=9"`
	Email    string `validate:"omitempty,email"`
}

// CapacityInfo reports the seat situation of one offering.
type CapacityInfo struct {
	Materia  string `json:"materia"`
	Profesor string `json:"profesor"`
	Comision string `json:"comision"`
	Seated   int    `json:"seated"`
	Cupo     *int   `json:"cupo"`
	Full     bool   `json:"full"`
}

// EnrollmentService owns the save state machine: validate, decide seat or
// waitlist, persist, then queue the background sync.
type EnrollmentService struct {
	store        recordStore
	catalog      catalogReader
	settings     *config.Settings
	syncer       syncDispatcher
	notifier     Notifier
	refresher    remoteRefresher
	refreshGuard refreshGuard
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewEnrollmentService constructs EnrollmentService. syncer may be nil when
// remote sync is not wired.
func NewEnrollmentService(st recordStore, catalog catalogReader, settings *config.Settings, syncer syncDispatcher, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		store:     st,
		catalog:   catalog,
		settings:  settings,
		syncer:    syncer,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// SetNotifier plugs in an enrollment notification backend.
func (s *EnrollmentService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetCapacityRefresh wires a remote mirror that runs before seat counts, at
// most once per guard interval, so quotas are checked against fresh data.
func (s *EnrollmentService) SetCapacityRefresh(r remoteRefresher, g refreshGuard) {
	s.refresher = r
	s.refreshGuard = g
}

// refreshCounts pulls the remote table into the local store before a seat
// recount. Rate-limited by the guard; failures fall back to local counts.
func (s *EnrollmentService) refreshCounts(ctx context.Context) {
	if s.refresher == nil || s.refreshGuard == nil || !s.refreshGuard.ShouldSync() {
		return
	}
	if s.settings == nil || !s.settings.GetBool("google_sheets.enabled") {
		return
	}
	spreadsheetID := s.settings.GetString("google_sheets.spreadsheet_id")
	if spreadsheetID == "" {
		return
	}
	if _, err := s.refresher.Mirror(ctx, spreadsheetID); err != nil {
		s.logger.Sugar().Warnw("capacity refresh failed, using local counts", "error", err)
		return
	}
	s.refreshGuard.MarkSynced()
}

// List returns filtered records with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.RecordFilter) ([]models.Record, *models.Pagination, error) {
	records, err := s.store.LoadAll()
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load records")
	}

	matched := make([]models.Record, 0, len(records))
	for _, rec := range records {
		if filter.Matches(rec) {
			matched = append(matched, rec)
		}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	start := (page - 1) * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: len(matched)}
	return matched[start:end], pagination, nil
}

// Get returns one record by ID.
func (s *EnrollmentService) Get(ctx context.Context, id string) (models.Record, error) {
	rec, err := s.store.ByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	return rec, nil
}

// History returns every enrollment for a national ID, newest first.
func (s *EnrollmentService) History(ctx context.Context, dni string) ([]models.Record, error) {
	records, err := s.store.History(dni)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}
	return records, nil
}

// Save validates and persists a record, applying the capacity policy. New
// records get an ID from the store; existing IDs are replaced in place.
func (s *EnrollmentService) Save(ctx context.Context, req SaveRecordRequest) (models.Record, error) {
	if req.Record == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "record payload required")
	}
	rec := req.Record.Clone()

	if err := s.validate(rec); err != nil {
		return nil, err
	}
	if err := s.checkDuplicateDNI(rec); err != nil {
		return nil, err
	}

	waitlisted, err := s.applyCapacityPolicy(ctx, rec, req.ConfirmWaitlist)
	if err != nil {
		return nil, err
	}
	if waitlisted {
		rec["en_lista_espera"] = models.WaitlistYes
	} else {
		rec["en_lista_espera"] = models.WaitlistNo
	}

	if rec.Get("fecha_inscripcion") == "" {
		rec["fecha_inscripcion"] = s.now().Format(fechaInscripcionLayout)
	}

	operation := models.SyncOpUpdate
	if rec.Get("id") == "" {
		operation = models.SyncOpInsert
	}

	saved, err := s.store.Upsert(rec)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save record")
	}

	if s.syncer != nil {
		s.syncer.Dispatch(operation, saved)
	}
	if s.notifier != nil {
		if err := s.notifier.EnrollmentSaved(ctx, saved); err != nil {
			s.logger.Sugar().Warnw("enrollment notification failed", "id", saved.ID(), "error", err)
		}
	}
	return saved, nil
}

// Delete removes a record by ID and queues a remote delete.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete record")
	}
	if s.syncer != nil {
		s.syncer.Dispatch(models.SyncOpDelete, models.Record{"id": id})
	}
	if s.notifier != nil {
		if err := s.notifier.EnrollmentDeleted(ctx, id); err != nil {
			s.logger.Sugar().Warnw("deletion notification failed", "id", id, "error", err)
		}
	}
	return nil
}

// Capacity reports the seat situation of an offering.
func (s *EnrollmentService) Capacity(ctx context.Context, materia, profesor, comision string) (*CapacityInfo, error) {
	s.refreshCounts(ctx)
	seated, err := s.store.CountEnrollments(materia, profesor, comision)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	info := &CapacityInfo{Materia: materia, Profesor: profesor, Comision: comision, Seated: seated}
	if off := s.catalog.Offering(materia, profesor, comision); off != nil && off.Cupo != nil {
		cupo := *off.Cupo
		info.Cupo = &cupo
		info.Full = seated >= cupo
	}
	return info, nil
}

func (s *EnrollmentService) validate(rec models.Record) error {
	payload := recordValidation{
		Nombre:   rec.Get("nombre"),
		Apellido: rec.Get("apellido"),
		DNI:      rec.Get("dni"),
		Email:    rec.Get("email"),
	}
	if err := s.validator.Struct(payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid record payload")
	}
	if s.settings != nil && s.settings.GetBool("app.require_seguro_escolar") {
		if rec.Get("seguro_escolar") != "Sí" {
			return appErrors.Clone(appErrors.ErrValidation, "seguro escolar is required")
		}
	}
	if v := rec.Get("en_lista_espera"); v != "" && v != models.WaitlistYes && v != models.WaitlistNo {
		return appErrors.Clone(appErrors.ErrValidation, "en_lista_espera must be Sí or No")
	}
	return nil
}

func (s *EnrollmentService) checkDuplicateDNI(rec models.Record) error {
	existing, err := s.store.ByDNI(rec.Get("dni"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check DNI")
	}
	if rec.Get("id") != "" && existing.ID() == rec.Get("id") {
		return nil
	}
	// Same student may enroll in a second subject: only an exact offering
	// repeat is a duplicate.
	if existing.Get("materia") == rec.Get("materia") &&
		existing.Get("profesor") == rec.Get("profesor") &&
		existing.Get("comision") == rec.Get("comision") {
		return appErrors.Clone(appErrors.ErrDuplicateDNI,
			fmt.Sprintf("DNI %s already enrolled in %s", rec.Get("dni"), rec.Get("materia")))
	}
	return nil
}

// applyCapacityPolicy decides whether the record is seated or needs the
// waitlist. Unknown quota always seats; waitlisting requires confirmation.
func (s *EnrollmentService) applyCapacityPolicy(ctx context.Context, rec models.Record, confirm bool) (bool, error) {
	if s.settings != nil && !s.settings.GetBool("app.check_cupos") {
		return false, nil
	}
	materia := rec.Get("materia")
	if materia == "" {
		return false, nil
	}
	off := s.catalog.Offering(materia, rec.Get("profesor"), rec.Get("comision"))
	if off == nil {
		s.logger.Sugar().Warnw("offering not in catalog, quota unknown",
			"materia", materia, "profesor", rec.Get("profesor"), "comision", rec.Get("comision"))
		return false, nil
	}
	if off.Cupo == nil {
		return false, nil
	}

	s.refreshCounts(ctx)
	seated, err := s.store.CountEnrollments(materia, rec.Get("profesor"), rec.Get("comision"))
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	// A seated record being edited keeps its own seat.
	if id := rec.Get("id"); id != "" {
		if prev, err := s.store.ByID(id); err == nil &&
			!prev.Waitlisted() &&
			prev.Get("materia") == materia &&
			prev.Get("profesor") == rec.Get("profesor") &&
			prev.Get("comision") == rec.Get("comision") {
			seated--
		}
	}

	if seated < *off.Cupo {
		return false, nil
	}
	if !confirm {
		return false, appErrors.Clone(appErrors.ErrWaitlistConfirm,
			fmt.Sprintf("offering %s/%s/%s is full (%d/%d), confirm waitlist to proceed",
				materia, rec.Get("profesor"), rec.Get("comision"), seated, *off.Cupo))
	}
	return true, nil
}
