// Package sync reconciles the local record store with a remote spreadsheet:
// full push, time-windowed incremental push, and a remote-authoritative
// mirror with ID repair and a local backup snapshot.
package sync

import (
	"context"
	"regexp"
	"strings"
)

// SheetInfo identifies one sheet inside a spreadsheet.
type SheetInfo struct {
	ID    int64
	Title string
}

// RowRange is a half-open zero-based row index range [Start, End).
type RowRange struct {
	Start int64
	End   int64
}

// TabularSheet is the minimal capability set the engine needs from the
// remote spreadsheet service.
type TabularSheet interface {
	ListSheets(ctx context.Context, spreadsheetID string) ([]SheetInfo, error)
	ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]string, error)
	ClearRange(ctx context.Context, spreadsheetID, clearRange string) error
	UpdateRange(ctx context.Context, spreadsheetID, updateRange string, values [][]string) error
	AddSheet(ctx context.Context, spreadsheetID, title string) (int64, error)
	DeleteRows(ctx context.Context, spreadsheetID string, sheetID int64, rows []RowRange) error
}

var wordOnly = regexp.MustCompile(`^\w+$`)

// QuoteSheetName quotes a sheet name for use in an A1 range. Names made of
// word characters pass through; anything else is single-quoted with embedded
// quotes doubled.
func QuoteSheetName(name string) string {
	if wordOnly.MatchString(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
