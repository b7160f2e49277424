package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/inscripciones-api/internal/identity"
	"github.com/noah-isme/inscripciones-api/internal/models"
	"github.com/noah-isme/inscripciones-api/pkg/config"
)

const testSpreadsheet = "sheet-abc"

// memStore is an in-memory localStore.
type memStore struct {
	records []models.Record
	loadErr error
	saveErr error
	saves   int
}

func (m *memStore) LoadAll() ([]models.Record, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]models.Record, len(m.records))
	for i, rec := range m.records {
		out[i] = rec.Clone()
	}
	return out, nil
}

func (m *memStore) SaveAll(records []models.Record) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records = records
	m.saves++
	return nil
}

// fakeSheet implements TabularSheet over in-memory grids, understanding the
// range shapes the engine emits: a bare sheet title, "!A1", "!A1:C3" and
// "!A:A".
type fakeSheet struct {
	mu      sync.Mutex
	order   []string
	ids     map[string]int64
	grids   map[string][][]string
	nextID  int64
	readErr error
	deletes []RowRange
}

func newFakeSheet(titles ...string) *fakeSheet {
	f := &fakeSheet{ids: make(map[string]int64), grids: make(map[string][][]string)}
	for _, title := range titles {
		f.addSheetLocked(title)
	}
	return f
}

func (f *fakeSheet) addSheetLocked(title string) int64 {
	f.nextID++
	f.order = append(f.order, title)
	f.ids[title] = f.nextID
	f.grids[title] = nil
	return f.nextID
}

func splitRange(rng string) (title, ref string) {
	title = rng
	if i := strings.Index(rng, "!"); i >= 0 {
		title, ref = rng[:i], rng[i+1:]
	}
	title = strings.Trim(title, "'")
	return title, ref
}

func (f *fakeSheet) ListSheets(_ context.Context, _ string) ([]SheetInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	infos := make([]SheetInfo, 0, len(f.order))
	for _, title := range f.order {
		infos = append(infos, SheetInfo{ID: f.ids[title], Title: title})
	}
	return infos, nil
}

func (f *fakeSheet) ReadRange(_ context.Context, _ string, readRange string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	title, ref := splitRange(readRange)
	grid, ok := f.grids[title]
	if !ok {
		return nil, fmt.Errorf("unknown sheet %q", title)
	}
	switch ref {
	case "":
		return grid, nil
	case "A:A":
		column := make([][]string, 0, len(grid))
		for _, row := range grid {
			if len(row) > 0 {
				column = append(column, []string{row[0]})
			} else {
				column = append(column, nil)
			}
		}
		return column, nil
	case "A1:C3":
		sample := make([][]string, 0, 3)
		for i := 0; i < len(grid) && i < 3; i++ {
			row := grid[i]
			if len(row) > 3 {
				row = row[:3]
			}
			sample = append(sample, row)
		}
		return sample, nil
	default:
		return nil, fmt.Errorf("unsupported range %q", readRange)
	}
}

func (f *fakeSheet) ClearRange(_ context.Context, _ string, clearRange string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	title, _ := splitRange(clearRange)
	if _, ok := f.grids[title]; !ok {
		return fmt.Errorf("unknown sheet %q", title)
	}
	f.grids[title] = nil
	return nil
}

func (f *fakeSheet) UpdateRange(_ context.Context, _ string, updateRange string, values [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	title, ref := splitRange(updateRange)
	if _, ok := f.grids[title]; !ok {
		return fmt.Errorf("unknown sheet %q", title)
	}
	if ref != "A1" {
		return fmt.Errorf("unsupported update anchor %q", updateRange)
	}
	grid := make([][]string, len(values))
	for i, row := range values {
		grid[i] = append([]string(nil), row...)
	}
	f.grids[title] = grid
	return nil
}

func (f *fakeSheet) AddSheet(_ context.Context, _ string, title string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ids[title]; ok {
		return 0, fmt.Errorf("sheet %q already exists", title)
	}
	return f.addSheetLocked(title), nil
}

func (f *fakeSheet) DeleteRows(_ context.Context, _ string, sheetID int64, rows []RowRange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, rows...)
	for title, id := range f.ids {
		if id != sheetID {
			continue
		}
		grid := f.grids[title]
		for _, r := range rows {
			grid = append(grid[:r.Start], grid[r.End:]...)
		}
		f.grids[title] = grid
	}
	return nil
}

func newTestSettings(t *testing.T) *config.Settings {
	t.Helper()
	settings, err := config.NewSettings(filepath.Join(t.TempDir(), "config.yaml"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, settings.Set("google_sheets.sheet_name", "Inscripciones"))
	return settings
}

func newTestEngine(t *testing.T, sheet TabularSheet, local, backup *memStore) (*Engine, string) {
	t.Helper()
	stamp := filepath.Join(t.TempDir(), "ultima_sincronizacion.txt")
	return NewEngine(sheet, local, backup, newTestSettings(t), stamp, nil, zap.NewNop()), stamp
}

// enrollment builds a record with every canonical field present.
func enrollment(id string, fields map[string]string) models.Record {
	rec := make(models.Record, len(models.Columns))
	for _, field := range models.Columns {
		rec[field] = ""
	}
	rec["id"] = id
	for k, v := range fields {
		rec[k] = v
	}
	return rec
}

func gridFor(records ...models.Record) [][]string {
	grid := make([][]string, 0, len(records)+1)
	grid = append(grid, append([]string(nil), models.Columns...))
	for _, rec := range records {
		grid = append(grid, rec.Row(models.Columns))
	}
	return grid
}

func TestPushAllWritesHeaderAndRows(t *testing.T) {
	a := enrollment("13220_20250301_100000", map[string]string{"nombre": "Ana", "dni": "40111222", "materia": "Piano"})
	b := enrollment("13221_20250302_110000", map[string]string{"nombre": "Bruno", "dni": "40111223", "materia": "Canto"})

	sheet := newFakeSheet("Inscripciones")
	local := &memStore{records: []models.Record{a, b}}
	engine, _ := newTestEngine(t, sheet, local, &memStore{})

	require.NoError(t, engine.PushAll(context.Background(), testSpreadsheet))

	grid := sheet.grids["Inscripciones"]
	require.Len(t, grid, 3)
	assert.Equal(t, models.Columns, grid[0])
	assert.Equal(t, a.Row(models.Columns), grid[1])
	assert.Equal(t, b.Row(models.Columns), grid[2])
}

func TestPushAllCreatesConfiguredSheet(t *testing.T) {
	sheet := newFakeSheet("Hoja 1")
	local := &memStore{records: []models.Record{enrollment("X_20250301_100000", map[string]string{"nombre": "Ana"})}}
	engine, _ := newTestEngine(t, sheet, local, &memStore{})

	require.NoError(t, engine.PushAll(context.Background(), testSpreadsheet))

	require.Contains(t, sheet.grids, "Inscripciones")
	assert.Len(t, sheet.grids["Inscripciones"], 2)
	assert.Nil(t, sheet.grids["Hoja 1"], "existing sheet untouched")
}

func TestPushUsesFullModeWhenConfigured(t *testing.T) {
	sheet := newFakeSheet("Inscripciones")
	local := &memStore{records: []models.Record{enrollment("A_20240101_000000", map[string]string{
		"nombre":            "Vieja",
		"fecha_inscripcion": "2024-01-01T00:00:00",
	})}}
	engine, _ := newTestEngine(t, sheet, local, &memStore{})
	require.NoError(t, engine.settings.Set("google_sheets.sync_mode", "full"))

	require.NoError(t, engine.Push(context.Background(), testSpreadsheet))

	// Full mode pushes everything regardless of the record's age.
	require.Len(t, sheet.grids["Inscripciones"], 2)
}

func TestPushIncremental(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)
	recentFecha := now.Add(-time.Hour).Format("2006-01-02T15:04:05")
	oldFecha := now.Add(-72 * time.Hour).Format("2006-01-02T15:04:05")

	a := enrollment("A_20250301_100000", map[string]string{"nombre": "Ana", "fecha_inscripcion": oldFecha})
	b := enrollment("B_20250301_110000", map[string]string{"nombre": "Bruno", "fecha_inscripcion": oldFecha})
	c := enrollment("C_20250310_110000", map[string]string{"nombre": "Clara", "fecha_inscripcion": recentFecha})
	d := enrollment("D_20250201_090000", map[string]string{"nombre": "Diego", "fecha_inscripcion": oldFecha})
	e := enrollment("E_20250305_100000", map[string]string{"nombre": "Elena", "fecha_inscripcion": oldFecha})

	sheet := newFakeSheet("Inscripciones")
	require.NoError(t, sheet.UpdateRange(context.Background(), testSpreadsheet, "Inscripciones!A1", gridFor(a, b, e)))

	// Local has a new recent record, a new old record and no longer has E.
	local := &memStore{records: []models.Record{a, b, c, d}}
	engine, _ := newTestEngine(t, sheet, local, &memStore{})
	engine.now = func() time.Time { return now }

	stats, err := engine.PushIncremental(context.Background(), testSpreadsheet, 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Added, "only the recent new record is appended")
	assert.Equal(t, 1, stats.Removed, "locally deleted record dropped from remote")
	assert.Equal(t, 4, stats.LocalTotalAfter)

	grid := sheet.grids["Inscripciones"]
	require.Len(t, grid, 4)
	ids := []string{grid[1][0], grid[2][0], grid[3][0]}
	assert.Equal(t, []string{a.ID(), b.ID(), c.ID()}, ids)
}

func TestPushIncrementalIncludesUnparsableFecha(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)
	rec := enrollment("R_20250310_120000", map[string]string{"nombre": "Rita", "fecha_inscripcion": "hace un rato"})

	sheet := newFakeSheet("Inscripciones")
	local := &memStore{records: []models.Record{rec}}
	engine, _ := newTestEngine(t, sheet, local, &memStore{})
	engine.now = func() time.Time { return now }

	stats, err := engine.PushIncremental(context.Background(), testSpreadsheet, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Added)
}

func TestMirrorReplacesLocalStore(t *testing.T) {
	a := enrollment("A_20250301_100000", map[string]string{"nombre": "Ana", "dni": "40111222"})
	b := enrollment("B_20250301_110000", map[string]string{"nombre": "Bruno", "dni": "40111223"})
	bEdited := b.Clone()
	bEdited["telefono"] = "387-5551234"
	d := enrollment("D_20250201_090000", map[string]string{"nombre": "Diego", "dni": "40111224"})
	f := enrollment("F_20250309_100000", map[string]string{"nombre": "Flor", "dni": "40111225"})

	grid := gridFor(a, bEdited, f)
	grid = append(grid, make([]string, len(models.Columns))) // blank row

	sheet := newFakeSheet("Inscripciones")
	require.NoError(t, sheet.UpdateRange(context.Background(), testSpreadsheet, "Inscripciones!A1", grid))

	local := &memStore{records: []models.Record{a, b, d}}
	engine, _ := newTestEngine(t, sheet, local, &memStore{})

	stats, err := engine.Mirror(context.Background(), testSpreadsheet)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Added)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Unchanged)
	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 3, stats.LocalTotalAfter)

	require.Len(t, local.records, 3)
	assert.Equal(t, "387-5551234", local.records[1].Get("telefono"))
}

func TestMirrorEmptyRemoteClearsLocal(t *testing.T) {
	a := enrollment("A_20250301_100000", map[string]string{"nombre": "Ana"})
	sheet := newFakeSheet("Inscripciones")
	require.NoError(t, sheet.UpdateRange(context.Background(), testSpreadsheet, "Inscripciones!A1", gridFor()))

	local := &memStore{records: []models.Record{a}}
	engine, _ := newTestEngine(t, sheet, local, &memStore{})

	stats, err := engine.Mirror(context.Background(), testSpreadsheet)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, 0, stats.LocalTotalAfter)
	assert.Empty(t, local.records)
}

func TestPushMirrorRoundTrip(t *testing.T) {
	a := enrollment("A_20250301_100000", map[string]string{"nombre": "Ana", "dni": "40111222", "materia": "Piano"})
	b := enrollment("B_20250301_110000", map[string]string{"nombre": "Bruno", "dni": "40111223", "en_lista_espera": models.WaitlistYes})

	sheet := newFakeSheet("Inscripciones")
	local := &memStore{records: []models.Record{a, b}}
	engine, _ := newTestEngine(t, sheet, local, &memStore{})

	require.NoError(t, engine.PushAll(context.Background(), testSpreadsheet))
	stats, err := engine.Mirror(context.Background(), testSpreadsheet)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Unchanged)
	require.Len(t, local.records, 2)
	assert.True(t, a.EqualCanonical(local.records[0]))
	assert.True(t, b.EqualCanonical(local.records[1]))
}

func TestMirrorIsIdempotent(t *testing.T) {
	a := enrollment("A_20250301_100000", map[string]string{"nombre": "Ana", "dni": "40111222"})
	sheet := newFakeSheet("Inscripciones")
	require.NoError(t, sheet.UpdateRange(context.Background(), testSpreadsheet, "Inscripciones!A1", gridFor(a)))

	local := &memStore{}
	engine, _ := newTestEngine(t, sheet, local, &memStore{})

	first, err := engine.Mirror(context.Background(), testSpreadsheet)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Added)

	second, err := engine.Mirror(context.Background(), testSpreadsheet)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 1, second.Unchanged)
	assert.Equal(t, 0, second.Updated)
}

func TestMirrorRepairsMissingIDsDeterministically(t *testing.T) {
	orphan := enrollment("", map[string]string{"nombre": "Ana", "dni": "40111222", "legajo": "13220", "materia": "Piano"})
	want := identity.Repair(orphan.Clone())

	run := func() string {
		sheet := newFakeSheet("Inscripciones")
		require.NoError(t, sheet.UpdateRange(context.Background(), testSpreadsheet, "Inscripciones!A1", gridFor(orphan)))
		local := &memStore{}
		engine, _ := newTestEngine(t, sheet, local, &memStore{})
		_, err := engine.Mirror(context.Background(), testSpreadsheet)
		require.NoError(t, err)
		require.Len(t, local.records, 1)
		return local.records[0].ID()
	}

	first := run()
	second := run()
	assert.Equal(t, want, first)
	assert.Equal(t, first, second, "repeated mirrors converge on the same id")
}

func TestMirrorWithoutHeaderRow(t *testing.T) {
	a := enrollment("A_20250301_100000", map[string]string{"nombre": "Ana"})
	sheet := newFakeSheet("Inscripciones")
	require.NoError(t, sheet.UpdateRange(context.Background(), testSpreadsheet, "Inscripciones!A1", [][]string{a.Row(models.Columns)}))

	local := &memStore{}
	engine, _ := newTestEngine(t, sheet, local, &memStore{})
	require.NoError(t, engine.settings.Set("google_sheets.has_header_row", false))

	stats, err := engine.Mirror(context.Background(), testSpreadsheet)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Added)
	require.Len(t, local.records, 1)
	assert.Equal(t, "Ana", local.records[0].Get("nombre"))
}

func TestMirrorSnapshotsBackup(t *testing.T) {
	a := enrollment("A_20250301_100000", map[string]string{"nombre": "Ana"})
	sheet := newFakeSheet("Inscripciones")
	require.NoError(t, sheet.UpdateRange(context.Background(), testSpreadsheet, "Inscripciones!A1", gridFor(a)))

	backup := &memStore{}
	engine, stampPath := newTestEngine(t, sheet, &memStore{}, backup)
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return at }

	_, err := engine.Mirror(context.Background(), testSpreadsheet)
	require.NoError(t, err)

	require.Len(t, backup.records, 1)
	data, err := os.ReadFile(stampPath)
	require.NoError(t, err)
	assert.Equal(t, at.Format(time.RFC3339), strings.TrimSpace(string(data)))
}

func TestMirrorRemoteFailureLeavesLocalUntouched(t *testing.T) {
	a := enrollment("A_20250301_100000", map[string]string{"nombre": "Ana"})
	sheet := newFakeSheet("Inscripciones")
	sheet.readErr = errors.New("quota exhausted")

	local := &memStore{records: []models.Record{a}}
	engine, _ := newTestEngine(t, sheet, local, &memStore{})

	_, err := engine.Mirror(context.Background(), testSpreadsheet)
	require.Error(t, err)
	assert.Equal(t, 0, local.saves)
	require.Len(t, local.records, 1)
}

func TestRestoreLocalBackup(t *testing.T) {
	a := enrollment("A_20250301_100000", map[string]string{"nombre": "Ana"})
	b := enrollment("B_20250301_110000", map[string]string{"nombre": "Bruno"})

	local := &memStore{}
	backup := &memStore{records: []models.Record{a, b}}
	engine, stampPath := newTestEngine(t, newFakeSheet("Inscripciones"), local, backup)
	require.NoError(t, os.WriteFile(stampPath, []byte("2025-03-10T12:00:00Z\n"), 0o644))

	count, stamp, err := engine.RestoreLocalBackup()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, "2025-03-10T12:00:00Z", stamp)
	assert.Len(t, local.records, 2)
}

func TestDeleteRemoteByID(t *testing.T) {
	a := enrollment("A_20250301_100000", map[string]string{"nombre": "Ana"})
	dup := enrollment("X_20250301_110000", map[string]string{"nombre": "Equis"})

	sheet := newFakeSheet("Inscripciones")
	grid := gridFor(dup, a, dup)
	require.NoError(t, sheet.UpdateRange(context.Background(), testSpreadsheet, "Inscripciones!A1", grid))

	engine, _ := newTestEngine(t, sheet, &memStore{}, &memStore{})
	require.NoError(t, engine.DeleteRemoteByID(context.Background(), testSpreadsheet, dup.ID()))

	// Descending so earlier indices stay valid while deleting.
	require.Equal(t, []RowRange{{Start: 3, End: 4}, {Start: 1, End: 2}}, sheet.deletes)
	remaining := sheet.grids["Inscripciones"]
	require.Len(t, remaining, 2)
	assert.Equal(t, a.ID(), remaining[1][0])
}

func TestDeleteRemoteByIDNoMatches(t *testing.T) {
	sheet := newFakeSheet("Inscripciones")
	engine, _ := newTestEngine(t, sheet, &memStore{}, &memStore{})
	require.NoError(t, engine.DeleteRemoteByID(context.Background(), testSpreadsheet, "no-such-id"))
	assert.Empty(t, sheet.deletes)
}

func TestQuoteSheetName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Inscripciones", "Inscripciones"},
		{"Hoja_2", "Hoja_2"},
		{"Hoja 1", "'Hoja 1'"},
		{"Año 2025", "'Año 2025'"},
		{"L'Estudi", "'L''Estudi'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QuoteSheetName(tt.name), tt.name)
	}
}
