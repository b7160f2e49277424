package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/inscripciones-api/internal/models"
	"github.com/noah-isme/inscripciones-api/internal/store"
	"github.com/noah-isme/inscripciones-api/pkg/config"
	appErrors "github.com/noah-isme/inscripciones-api/pkg/errors"
	"github.com/noah-isme/inscripciones-api/pkg/export"
)

// Listing export columns, a readable subset of the record fields.
var listingHeaders = []string{
	"legajo", "apellido", "nombre", "dni",
	"materia", "profesor", "comision", "turno", "anio", "en_lista_espera",
}

type exportStore interface {
	LoadAll() ([]models.Record, error)
	ByID(id string) (models.Record, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Path(filename string) string
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type certificateRenderer interface {
	Render(data export.CertificateData) ([]byte, error)
}

// ExportResult points at a generated file.
type ExportResult struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Records  int    `json:"records"`
}

// ExportService renders filtered listings and per-student certificates.
type ExportService struct {
	store    exportStore
	storage  fileStorage
	settings *config.Settings
	csv      csvRenderer
	pdf      pdfRenderer
	cert     certificateRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(st exportStore, storage fileStorage, settings *config.Settings, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		store:    st,
		storage:  storage,
		settings: settings,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		cert:     export.NewCertificateExporter(),
		logger:   logger,
		now:      time.Now,
	}
}

// Listing renders the filtered records as "csv" or "pdf" and stores the file.
func (s *ExportService) Listing(ctx context.Context, filter models.RecordFilter, format string) (*ExportResult, error) {
	records, err := s.store.LoadAll()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load records")
	}

	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		if !filter.Matches(rec) {
			continue
		}
		row := make(map[string]string, len(listingHeaders))
		for _, h := range listingHeaders {
			row[h] = rec.Get(h)
		}
		rows = append(rows, row)
	}

	dataset := export.Dataset{Headers: listingHeaders, Rows: rows}
	title := listingTitle(filter)

	var payload []byte
	switch format {
	case "csv":
		payload, err = s.csv.Render(dataset)
	case "pdf", "":
		payload, err = s.pdf.Render(dataset, title)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render listing")
	}

	if format == "" {
		format = "pdf"
	}
	filename := fmt.Sprintf("listado_%s.%s", s.now().Format("20060102_150405"), format)
	if _, err := s.storage.Save(filename, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store listing")
	}
	return &ExportResult{Filename: filename, Path: s.storage.Path(filename), Records: len(rows)}, nil
}

// Certificate renders the enrollment certificate PDF for one record.
func (s *ExportService) Certificate(ctx context.Context, id string) (*ExportResult, error) {
	rec, err := s.store.ByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}

	institution := ""
	if s.settings != nil {
		institution = s.settings.GetString("pdf.institution_name")
	}
	payload, err := s.cert.Render(export.CertificateData{
		Institution: institution,
		Nombre:      rec.Get("nombre"),
		Apellido:    rec.Get("apellido"),
		DNI:         rec.Get("dni"),
		Legajo:      rec.Get("legajo"),
		Materia:     rec.Get("materia"),
		Profesor:    rec.Get("profesor"),
		Comision:    rec.Get("comision"),
		Turno:       rec.Get("turno"),
		Anio:        rec.Get("anio"),
		Waitlisted:  rec.Waitlisted(),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}

	filename := fmt.Sprintf("constancia_%s_%s.pdf", sanitizeFilename(rec.Get("dni")), s.now().Format("20060102_150405"))
	if _, err := s.storage.Save(filename, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}
	return &ExportResult{Filename: filename, Path: s.storage.Path(filename), Records: 1}, nil
}

func listingTitle(filter models.RecordFilter) string {
	parts := []string{"Listado de inscripciones"}
	if filter.Materia != "" {
		parts = append(parts, filter.Materia)
	}
	if filter.Profesor != "" {
		parts = append(parts, filter.Profesor)
	}
	if filter.Turno != "" {
		parts = append(parts, "turno "+filter.Turno)
	}
	return strings.Join(parts, " - ")
}

func sanitizeFilename(s string) string {
	if s == "" {
		return "sin_dni"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}
