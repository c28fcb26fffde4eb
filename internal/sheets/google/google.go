package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"fincon/internal/core"
	ports "fincon/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// maxTitleLength is the Sheets limit on tab titles.
const maxTitleLength = 100

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	tabPrefix     string
}

// Ensure interface conformance
var _ ports.LedgerExporter = (*Client)(nil)

// Options selects the spreadsheet and the service account used to write it.
// CredentialsJSON wins over CredentialsFile; with neither set
// GOOGLE_APPLICATION_CREDENTIALS is consulted.
type Options struct {
	SpreadsheetID   string
	TabPrefix       string
	CredentialsJSON string
	CredentialsFile string
}

func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	prefix := strings.TrimSpace(opts.TabPrefix)
	if prefix == "" {
		prefix = "Ledger"
	}

	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		tabPrefix:     prefix,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	credentialsJSON := []byte(strings.TrimSpace(opts.CredentialsJSON))
	file := strings.TrimSpace(opts.CredentialsFile)
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	if len(credentialsJSON) == 0 {
		if file == "" {
			return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
		}
		var err error
		credentialsJSON, err = os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "scope", gsheet.SpreadsheetsScope)
	return service, nil
}

// ExportLedger rewrites the user's tab: header, one row per transaction
// (newest first) and the three totals underneath.
func (c *Client) ExportLedger(ctx context.Context, userID string, txs []core.Transaction, totals core.Totals) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := tabTitle(c.tabPrefix, userID)

	if _, err := c.ensureTab(ctx, title); err != nil {
		return err
	}

	clearRange := quoteTitle(title) + "!A:D"
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	vr := &gsheet.ValueRange{Values: ledgerRows(txs, totals)}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoteTitle(title)+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write ledger to %s: %w", title, err)
	}

	slog.InfoContext(ctx, "Ledger exported",
		"user_id", userID,
		"tab", title,
		"rows", len(txs))
	return nil
}

func (c *Client) RemoveLedger(ctx context.Context, userID string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := tabTitle(c.tabPrefix, userID)

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	id, ok := findSheetID(ss, title)
	if !ok {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{
		{DeleteSheet: &gsheet.DeleteSheetRequest{SheetId: id}},
	}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete tab %s: %w", title, err)
	}
	slog.InfoContext(ctx, "Ledger export removed", "user_id", userID, "tab", title)
	return nil
}

// ensureTab returns the sheet id of title, creating the tab when missing.
func (c *Client) ensureTab(ctx context.Context, title string) (int64, error) {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet: %w", err)
	}
	if id, ok := findSheetID(ss, title); ok {
		return id, nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{
		{AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}}},
	}}
	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("create tab %s: %w", title, err)
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("create tab %s: empty reply", title)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

func findSheetID(ss *gsheet.Spreadsheet, title string) (int64, bool) {
	if ss == nil {
		return 0, false
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return s.Properties.SheetId, true
		}
	}
	return 0, false
}

// tabTitle derives a stable tab title for a user within the Sheets limit.
func tabTitle(prefix, userID string) string {
	title := strings.TrimSpace(prefix + " " + userID)
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}
	return title
}

// quoteTitle quotes a tab title for A1 notation.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func ledgerRows(txs []core.Transaction, totals core.Totals) [][]any {
	rows := make([][]any, 0, len(txs)+5)
	rows = append(rows, []any{"Date", "Description", "Type", "Amount"})
	for _, t := range txs {
		rows = append(rows, []any{
			t.Date.UTC().Format(time.RFC3339),
			t.Description,
			string(t.Type),
			core.FormatSigned(t),
		})
	}
	rows = append(rows,
		[]any{},
		[]any{"", "Total income", "", core.FormatAmount(totals.TotalIncome)},
		[]any{"", "Total expenses", "", core.FormatAmount(totals.TotalExpenses)},
		[]any{"", "Balance", "", core.FormatAmount(totals.Balance)},
	)
	return rows
}
