// Package google exports transactions to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"balancio/internal/config"
	"balancio/internal/log"
)

// Client writes export rows to one spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *log.Logger
}

// ExportResult describes a finished export.
type ExportResult struct {
	Sheet        string
	UpdatedRange string
	Rows         int
}

// New creates a client from the sheets configuration. A service account file
// wins over an OAuth client and token.
func New(ctx context.Context, cfg config.SheetsConfig, logger *log.Logger) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, logger), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

func newSheetsService(ctx context.Context, cfg config.SheetsConfig) (*gsheet.Service, error) {
	if f := strings.TrimSpace(cfg.CredentialsFile); f != "" {
		credentialsJSON, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	}

	oauthCfg, err := LoadOAuthConfig(cfg.OAuthClientJSON, cfg.OAuthClientFile, "")
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, err
	}
	client := oauthCfg.Client(context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling()), tok)
	return gsheet.NewService(ctx, goption.WithHTTPClient(client))
}

// newHTTPClientWithPooling returns the transport used under the OAuth client.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// Export replaces the content of sheet with header followed by rows. The
// sheet is created when it does not exist.
func (c *Client) Export(ctx context.Context, sheet string, header []string, rows [][]string) (ExportResult, error) {
	if c.svc == nil {
		return ExportResult{}, errors.New("sheets service not initialized")
	}
	sheet = strings.TrimSpace(sheet)
	if sheet == "" {
		return ExportResult{}, errors.New("sheet name is required")
	}

	if err := c.ensureSheet(ctx, sheet); err != nil {
		return ExportResult{}, err
	}

	clearRange := fmt.Sprintf("%s!A:%s", quoteSheet(sheet), columnName(len(header)))
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return ExportResult{}, fmt.Errorf("clear %s: %w", clearRange, err)
	}

	values := make([][]any, 0, len(rows)+1)
	values = append(values, toValues(header))
	for _, r := range rows {
		values = append(values, toValues(r))
	}
	rng := fmt.Sprintf("%s!A1", quoteSheet(sheet))
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return ExportResult{}, fmt.Errorf("write %s: %w", rng, err)
	}

	c.logger.InfoContext(ctx, "Transactions exported to sheet",
		log.FieldOperation, log.OpExport,
		"sheet", sheet,
		"rows", len(rows),
		"updated_range", resp.UpdatedRange)
	return ExportResult{Sheet: sheet, UpdatedRange: resp.UpdatedRange, Rows: len(rows)}, nil
}

func (c *Client) ensureSheet(ctx context.Context, sheet string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == sheet {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: sheet}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	c.logger.InfoContext(ctx, "Created sheet", "sheet", sheet)
	return nil
}

func toValues(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out
}

// quoteSheet quotes a sheet title for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// columnName returns the A1 column letters for a 1-based index.
func columnName(n int) string {
	if n < 1 {
		n = 1
	}
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// YearPrefixedName returns "<year> <base>" unless base already starts with a
// 4-digit year.
func YearPrefixedName(base string, year int) string {
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
