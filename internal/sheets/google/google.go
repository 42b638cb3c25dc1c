package google

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finsight/internal/core"
	"finsight/internal/gcp"
	"finsight/internal/log"
	ports "finsight/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// mirrorSheet receives one row per created transaction, e.g.
	// "2026 Transactions".
	mirrorSheet  string
	exportPrefix string
	logger       *log.Logger
}

// Ensure interface conformance
var (
	_ ports.TransactionAppender = (*Client)(nil)
	_ ports.TransactionExporter = (*Client)(nil)
)

type Config struct {
	SpreadsheetID string
	// SheetName is the base mirror sheet name; the current year is prefixed
	// unless the name already starts with one. Default "Transactions".
	SheetName   string
	Credentials gcp.Credentials
}

// New creates a Sheets client using service account credentials. Extra
// options replace the resolved credentials.
func New(ctx context.Context, cfg Config, logger *log.Logger, extra ...goption.ClientOption) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSheets)

	base := strings.TrimSpace(cfg.SheetName)
	if base == "" {
		base = "Transactions"
	}

	opts := extra
	if len(opts) == 0 {
		var err error
		opts, err = gcp.ClientOptions(ctx, cfg.Credentials, logger, gsheet.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("sheets credentials: %w", err)
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets service created", log.FieldSheetsRef, spreadsheetID)

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		mirrorSheet:   yearPrefixedName(base, time.Now().Year()),
		exportPrefix:  "Export",
		logger:        logger,
	}, nil
}

// Append adds tx to the mirror sheet unless a row with its id exists.
func (c *Client) Append(ctx context.Context, owner string, tx core.Transaction) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if err := tx.Amount.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	ids, err := c.readCol(ctx, c.mirrorSheet, "A:A")
	if err != nil {
		return "", err
	}
	if row := indexOf(ids, tx.ID.String()); row >= 0 {
		ref := rowRef(c.mirrorSheet, row+1)
		c.logger.DebugContext(ctx, "Transaction already mirrored", log.FieldRecordID, tx.ID.String(), log.FieldSheetsRef, ref)
		return ref, nil
	}

	values := [][]any{toValues(ports.Row(owner, tx))}
	if len(ids) == 0 {
		values = append([][]any{toValues(ports.Header)}, values...)
	}
	rng := fmt.Sprintf("%s!A:H", quoteSheet(c.mirrorSheet))
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.mirrorSheet, err)
	}
	ref := ""
	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	return ref, nil
}

// Export writes header plus txs to the owner's export sheet, creating the
// sheet when missing and clearing previous content.
func (c *Client) Export(ctx context.Context, owner string, txs []core.Transaction) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	sheet := exportSheetName(c.exportPrefix, owner)
	if err := c.ensureSheet(ctx, sheet); err != nil {
		return "", err
	}

	quoted := quoteSheet(sheet)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quoted+"!A:H", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear sheet %s: %w", sheet, err)
	}

	values := make([][]any, 0, len(txs)+1)
	values = append(values, toValues(ports.Header))
	for _, tx := range txs {
		values = append(values, toValues(ports.Row(owner, tx)))
	}
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quoted+"!A1", &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write sheet %s: %w", sheet, err)
	}
	c.logger.InfoContext(ctx, "Transactions exported", log.FieldSheetsRef, resp.UpdatedRange, log.FieldCount, len(txs))
	return resp.UpdatedRange, nil
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	return nil
}

func (c *Client) readCol(ctx context.Context, sheetName, col string) ([]string, error) {
	rng := fmt.Sprintf("%s!%s", quoteSheet(sheetName), col)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	out := make([]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) == 0 {
			out = append(out, "")
			continue
		}
		out = append(out, strings.TrimSpace(fmt.Sprint(row[0])))
	}
	return out, nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
