package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"tripsplit/internal/ledger"
	"tripsplit/internal/report"
)

const defaultTabPrefix = "Trip"

// Options configure the Sheets exporter. Credentials come from the inline
// JSON first, then the file, then GOOGLE_APPLICATION_CREDENTIALS.
type Options struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
	TabPrefix       string
}

// Client writes trip reports into one tab per trip of a spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	tabPrefix     string
}

var _ ledger.ReportExporter = (*Client)(nil)

func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	credentialsJSON, err := loadCredentials(ctx, opts)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	prefix := strings.TrimSpace(opts.TabPrefix)
	if prefix == "" {
		prefix = defaultTabPrefix
	}

	slog.InfoContext(ctx, "Google Sheets exporter ready", "spreadsheet_id", spreadsheetID, "tab_prefix", prefix)
	return &Client{svc: svc, spreadsheetID: spreadsheetID, tabPrefix: prefix}, nil
}

func loadCredentials(ctx context.Context, opts Options) ([]byte, error) {
	inline := strings.TrimSpace(opts.CredentialsJSON)
	file := strings.TrimSpace(opts.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		slog.InfoContext(ctx, "Reading service account credentials", "path", file)
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// ExportReport replaces the content of the trip's tab with the report rows
// and returns the written range.
func (c *Client) ExportReport(ctx context.Context, r report.Report) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	tab := TabName(c.tabPrefix, r.Summary.Trip.ID)
	if err := c.ensureTab(ctx, tab); err != nil {
		return "", err
	}

	rng := quoteTab(tab) + "!A1"
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoteTab(tab), &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear tab %s: %w", tab, err)
	}

	vr := &gsheet.ValueRange{Values: r.Rows()}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write tab %s: %w", tab, err)
	}

	slog.InfoContext(ctx, "Report exported to Google Sheets",
		"trip_id", r.Summary.Trip.ID,
		"range", resp.UpdatedRange,
		"rows", resp.UpdatedRows)
	return resp.UpdatedRange, nil
}

func (c *Client) ensureTab(ctx context.Context, tab string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == tab {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %s: %w", tab, err)
	}
	slog.InfoContext(ctx, "Created report tab", "tab", tab)
	return nil
}

// TabName is the tab a trip's report is written to, e.g. "Trip 7".
func TabName(prefix string, tripID int64) string {
	return fmt.Sprintf("%s %d", prefix, tripID)
}

// quoteTab quotes a tab title for use in A1 notation.
func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}
