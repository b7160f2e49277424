package sync

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// GoogleSheets implements TabularSheet over the Google Sheets v4 API with
// service-account credentials.
type GoogleSheets struct {
	svc *sheets.Service
}

// NewGoogleSheets builds a client from a service-account credentials file.
func NewGoogleSheets(ctx context.Context, credentialsPath string) (*GoogleSheets, error) {
	if _, err := os.Stat(credentialsPath); err != nil {
		return nil, fmt.Errorf("credentials not found at %s: %w", credentialsPath, err)
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &GoogleSheets{svc: svc}, nil
}

// ListSheets returns the titles and IDs of every sheet in the spreadsheet.
func (g *GoogleSheets) ListSheets(ctx context.Context, spreadsheetID string) ([]SheetInfo, error) {
	ss, err := g.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets(properties(sheetId,title))").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	out := make([]SheetInfo, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		out = append(out, SheetInfo{ID: sh.Properties.SheetId, Title: sh.Properties.Title})
	}
	return out, nil
}

// ReadRange reads cell values over an A1 range.
func (g *GoogleSheets) ReadRange(ctx context.Context, spreadsheetID, readRange string) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", readRange, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, fmt.Sprint(cell))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// ClearRange clears all cell values in an A1 range.
func (g *GoogleSheets) ClearRange(ctx context.Context, spreadsheetID, clearRange string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear range %s: %w", clearRange, err)
	}
	return nil
}

// UpdateRange writes cell values with RAW input, no formula interpretation.
func (g *GoogleSheets) UpdateRange(ctx context.Context, spreadsheetID, updateRange string, values [][]string) error {
	body := &sheets.ValueRange{Values: make([][]interface{}, len(values))}
	for i, row := range values {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		body.Values[i] = cells
	}
	_, err := g.svc.Spreadsheets.Values.Update(spreadsheetID, updateRange, body).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update range %s: %w", updateRange, err)
	}
	return nil
}

// AddSheet creates a sheet by title and returns its ID.
func (g *GoogleSheets) AddSheet(ctx context.Context, spreadsheetID, title string) (int64, error) {
	resp, err := g.svc.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("add sheet %s: %w", title, err)
	}
	for _, reply := range resp.Replies {
		if reply.AddSheet != nil && reply.AddSheet.Properties != nil {
			return reply.AddSheet.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("add sheet %s: no reply", title)
}

// DeleteRows issues one batched dimension-delete for the given row ranges.
// Callers must order ranges from the bottom of the sheet up so earlier
// deletes do not shift later indices.
func (g *GoogleSheets) DeleteRows(ctx context.Context, spreadsheetID string, sheetID int64, rows []RowRange) error {
	if len(rows) == 0 {
		return nil
	}
	requests := make([]*sheets.Request, 0, len(rows))
	for _, rng := range rows {
		requests = append(requests, &sheets.Request{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: rng.Start,
					EndIndex:   rng.End,
				},
			},
		})
	}
	_, err := g.svc.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("delete rows: %w", err)
	}
	return nil
}
