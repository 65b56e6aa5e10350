package export

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/mtlprog/kosh/internal/domain"
)

// SheetsWriter implements SheetWriter using the Google Sheets API.
type SheetsWriter struct {
	spreadsheetID string
	svc           *sheets.Service
}

// NewSheetsWriter creates a SheetsWriter authenticated with a service account JSON.
func NewSheetsWriter(ctx context.Context, spreadsheetID, credentialsJSON string) (*SheetsWriter, error) {
	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(credentialsJSON),
		sheets.SpreadsheetsScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &SheetsWriter{spreadsheetID: spreadsheetID, svc: svc}, nil
}

// Write rewrites the RUNS sheet and appends one row to SUMMARY.
func (w *SheetsWriter) Write(ctx context.Context, runs []domain.RunResult, at time.Time) error {
	ids, err := w.ensureSheets(ctx, runsSheet, summarySheet)
	if err != nil {
		return err
	}

	_, err = w.svc.Spreadsheets.Values.Clear(
		w.spreadsheetID,
		runsSheet+"!A:K",
		&sheets.ClearValuesRequest{},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clearing %s: %w", runsSheet, err)
	}

	_, err = w.svc.Spreadsheets.Values.Update(
		w.spreadsheetID,
		runsSheet+"!A1",
		&sheets.ValueRange{Values: buildRunRows(runs)},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing %s: %w", runsSheet, err)
	}

	if err := w.appendSummary(ctx, runs, at); err != nil {
		return err
	}

	return w.freezeHeaders(ctx, ids)
}

// appendSummary writes the SUMMARY header when the sheet is empty, then appends a row.
func (w *SheetsWriter) appendSummary(ctx context.Context, runs []domain.RunResult, at time.Time) error {
	existing, err := w.svc.Spreadsheets.Values.Get(
		w.spreadsheetID, summarySheet+"!A1",
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading %s header: %w", summarySheet, err)
	}

	if len(existing.Values) == 0 {
		_, err = w.svc.Spreadsheets.Values.Update(
			w.spreadsheetID,
			summarySheet+"!A1",
			&sheets.ValueRange{Values: [][]any{summaryHeaders}},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("writing %s header: %w", summarySheet, err)
		}
	}

	_, err = w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		summarySheet+"!A:I",
		&sheets.ValueRange{Values: [][]any{buildSummaryRow(runs, at)}},
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending %s row: %w", summarySheet, err)
	}
	return nil
}

// freezeHeaders pins and colors the first row of each sheet.
func (w *SheetsWriter) freezeHeaders(ctx context.Context, ids map[string]int64) error {
	lightGreen := &sheets.Color{Red: 0.851, Green: 0.918, Blue: 0.827}

	var reqs []*sheets.Request
	for _, id := range ids {
		reqs = append(reqs,
			&sheets.Request{
				UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
					Properties: &sheets.SheetProperties{
						SheetId:        id,
						GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
					},
					Fields: "gridProperties.frozenRowCount",
				},
			},
			&sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{SheetId: id, StartRowIndex: 0, EndRowIndex: 1},
					Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
						BackgroundColor: lightGreen,
						TextFormat:      &sheets.TextFormat{Bold: true},
					}},
					Fields: "userEnteredFormat(backgroundColor,textFormat)",
				},
			},
		)
	}

	_, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: reqs},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("formatting headers: %w", err)
	}
	return nil
}

// ensureSheets creates any of the named sheets that do not already exist
// and returns the sheet id of each name.
func (w *SheetsWriter) ensureSheets(ctx context.Context, names ...string) (map[string]int64, error) {
	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting spreadsheet metadata: %w", err)
	}

	ids := make(map[string]int64, len(names))
	for _, s := range spreadsheet.Sheets {
		ids[s.Properties.Title] = s.Properties.SheetId
	}

	var requests []*sheets.Request
	for _, name := range names {
		if _, ok := ids[name]; !ok {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: name},
				},
			})
		}
	}

	wanted := make(map[string]int64, len(names))
	if len(requests) > 0 {
		resp, err := w.svc.Spreadsheets.BatchUpdate(
			w.spreadsheetID,
			&sheets.BatchUpdateSpreadsheetRequest{Requests: requests},
		).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("creating sheets: %w", err)
		}
		for _, r := range resp.Replies {
			if r.AddSheet != nil && r.AddSheet.Properties != nil {
				ids[r.AddSheet.Properties.Title] = r.AddSheet.Properties.SheetId
			}
		}
	}

	for _, name := range names {
		wanted[name] = ids[name]
	}
	return wanted, nil
}
