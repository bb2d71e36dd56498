// Package sheets implements rowstore.Backend on a Google Spreadsheet, one
// worksheet per scope.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"holdersnap/internal/rowstore"
)

// Backend talks to one spreadsheet through the Sheets API.
type Backend struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewBackend builds a Backend authenticated with service-account credentials
// JSON, as issued by the Google Cloud console.
func NewBackend(ctx context.Context, spreadsheetID string, credentialsJSON []byte) (*Backend, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Backend{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// NewBackendWithService wraps an already-constructed Sheets service.
func NewBackendWithService(svc *sheets.Service, spreadsheetID string) *Backend {
	return &Backend{svc: svc, spreadsheetID: spreadsheetID}
}

// Compile-time interface check.
var _ rowstore.Backend = (*Backend)(nil)

// ReadAllRows returns every row of the scope's worksheet.
func (b *Backend) ReadAllRows(ctx context.Context, scope string) ([][]string, error) {
	resp, err := b.svc.Spreadsheets.Values.Get(b.spreadsheetID, quoteTitle(scope)).Context(ctx).Do()
	if err != nil {
		return nil, classify("read rows", scope, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, v := range raw {
			row[i] = cellString(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// AppendRow appends row after the worksheet's last data row.
func (b *Backend) AppendRow(ctx context.Context, scope string, row []string) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{toCells(row)}}
	_, err := b.svc.Spreadsheets.Values.Append(b.spreadsheetID, quoteTitle(scope), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return classify("append row", scope, err)
	}
	return nil
}

// UpdateCell writes value into the zero-based (rowIdx, colIdx) cell.
func (b *Backend) UpdateCell(ctx context.Context, scope string, rowIdx, colIdx int, value string) error {
	if rowIdx < 0 || colIdx < 0 {
		return fmt.Errorf("%w: negative cell position %d,%d", rowstore.ErrInvalidInput, rowIdx, colIdx)
	}

	cellRange := fmt.Sprintf("%s!%s%d", quoteTitle(scope), colLetter(colIdx), rowIdx+1)
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err := b.svc.Spreadsheets.Values.Update(b.spreadsheetID, cellRange, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return classify("update cell", scope, err)
	}
	return nil
}

// EnsureScope creates the scope's worksheet when it does not exist yet.
func (b *Backend) EnsureScope(ctx context.Context, scope string) error {
	if scope == "" {
		return fmt.Errorf("%w: empty scope", rowstore.ErrInvalidInput)
	}

	titles, err := b.sheetTitles(ctx)
	if err != nil {
		return err
	}
	for _, title := range titles {
		if title == scope {
			return nil
		}
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: scope},
			},
		}},
	}
	_, err = b.svc.Spreadsheets.BatchUpdate(b.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		// A concurrent creator winning the race is fine.
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "already exists") {
			return nil
		}
		return classify("create scope", scope, err)
	}
	return nil
}

// ListScopes returns the worksheet titles in sheet order.
func (b *Backend) ListScopes(ctx context.Context) ([]string, error) {
	return b.sheetTitles(ctx)
}

func (b *Backend) sheetTitles(ctx context.Context) ([]string, error) {
	meta, err := b.svc.Spreadsheets.Get(b.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("list scopes", "", err)
	}

	titles := make([]string, 0, len(meta.Sheets))
	for _, sh := range meta.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	return titles, nil
}

// classify maps Sheets API failures onto the store's error taxonomy. Quota
// and server-side failures are retryable; a range that fails to parse means
// the worksheet does not exist.
func classify(op, scope string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return rowstore.Transient(fmt.Errorf("%s %q: %w", op, scope, err))
		case gerr.Code == http.StatusBadRequest && strings.Contains(gerr.Message, "Unable to parse range"):
			return fmt.Errorf("%s %q: %w", op, scope, rowstore.ErrScopeNotFound)
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("%s %q: %w", op, scope, rowstore.ErrScopeNotFound)
		}
		return fmt.Errorf("%s %q: %w", op, scope, err)
	}
	// Transport-level failures are worth a retry.
	return rowstore.Transient(fmt.Errorf("%s %q: %w", op, scope, err))
}

// quoteTitle wraps a worksheet title for use in an A1 range reference.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// colLetter converts a zero-based column index to its A1 letter form.
func colLetter(col int) string {
	s := ""
	for n := col; n >= 0; n = n/26 - 1 {
		s = string(rune('A'+n%26)) + s
	}
	return s
}

func toCells(row []string) []interface{} {
	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	return cells
}

func cellString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
