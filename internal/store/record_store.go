// Package store persists enrollment records as a delimited text table:
// UTF-8 with BOM, canonical header row, one CSV row per record.
package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/inscripciones-api/internal/identity"
	"github.com/noah-isme/inscripciones-api/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrNotFound is returned when a record lookup or delete misses.
var ErrNotFound = errors.New("record not found")

// RecordStore is the local system of record. Writes are full rewrites of the
// backing file through a sibling temp file and rename, so a crash never
// leaves a truncated table behind.
type RecordStore struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewRecordStore returns a store over the given file path.
func NewRecordStore(path string, logger *zap.Logger) *RecordStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *RecordStore) Path() string {
	return s.path
}

// LoadAll reads every record in file order. A missing file yields an empty
// slice; rows with extra or missing columns are tolerated, absent values
// default to the empty string.
func (s *RecordStore) LoadAll() ([]models.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Record{}, nil
		}
		return nil, fmt.Errorf("read record file: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse record file: %w", err)
	}
	if len(rows) == 0 {
		return []models.Record{}, nil
	}

	header := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		header[i] = strings.TrimSpace(name)
	}

	records := make([]models.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := models.FromRow(header, row)
		for _, field := range models.Columns {
			if _, ok := rec[field]; !ok {
				rec[field] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveAll rewrites the whole file: header first, then every record in the
// given order, always in canonical column order.
func (s *RecordStore) SaveAll(records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeTable(s.path, records)
}

// SaveAllTo writes the records to an alternate path, same format.
func (s *RecordStore) SaveAllTo(path string, records []models.Record) error {
	return writeTable(path, records)
}

func writeTable(path string, records []models.Record) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create record directory: %w", err)
		}
	}

	buf := &bytes.Buffer{}
	buf.Write(utf8BOM)
	writer := csv.NewWriter(buf)
	if err := writer.Write(models.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		if err := writer.Write(rec.Row(models.Columns)); err != nil {
			return fmt.Errorf("write record row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush record file: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write record file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace record file: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a record by identity. Records arriving without
// an ID get one assigned. The lock covers the whole load-modify-save cycle
// so interleaved writers cannot drop each other's rows.
func (s *RecordStore) Upsert(rec models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.LoadAll()
	if err != nil {
		return nil, err
	}

	rec = rec.Clone()
	if rec.Get("id") == "" {
		rec["id"] = identity.Generate(rec)
	}

	replaced := false
	for i := range records {
		if records[i].Get("id") == rec.Get("id") {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}

	if err := writeTable(s.path, records); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a record by exact ID, holding the lock across the rewrite.
// Returns ErrNotFound when absent.
func (s *RecordStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.LoadAll()
	if err != nil {
		return err
	}
	kept := records[:0]
	found := false
	for _, rec := range records {
		if rec.Get("id") == id {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	if !found {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}
	return writeTable(s.path, kept)
}

// ByID returns the record with the given ID, ErrNotFound when absent.
func (s *RecordStore) ByID(id string) (models.Record, error) {
	records, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Get("id") == id {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

// ByDNI returns the first record matching the national ID, ErrNotFound when
// absent.
func (s *RecordStore) ByDNI(dni string) (models.Record, error) {
	records, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Get("dni") == dni {
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

// History returns every record for a national ID, newest first by
// fecha_inscripcion (string comparison works for ISO-8601 timestamps).
func (s *RecordStore) History(dni string) ([]models.Record, error) {
	records, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	out := make([]models.Record, 0)
	for _, rec := range records {
		if rec.Get("dni") == dni {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Get("fecha_inscripcion") > out[j].Get("fecha_inscripcion")
	})
	return out, nil
}

// CountEnrollments counts seated records for an offering. Professor and
// commission narrow the count when non-empty; waitlisted rows never count.
func (s *RecordStore) CountEnrollments(materia, profesor, comision string) (int, error) {
	records, err := s.LoadAll()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, rec := range records {
		if rec.Get("materia") != materia {
			continue
		}
		if profesor != "" && rec.Get("profesor") != profesor {
			continue
		}
		if comision != "" && rec.Get("comision") != comision {
			continue
		}
		if rec.Waitlisted() {
			continue
		}
		count++
	}
	return count, nil
}
