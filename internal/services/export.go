package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"balancio/internal/auth"
	"balancio/internal/budget"
	"balancio/internal/core"
	"balancio/internal/log"
)

// utf8BOM makes spreadsheet applications detect the encoding of a CSV file.
const utf8BOM = "\ufeff"

var exportHeader = []string{"Date", "Title", "Description", "Category", "Type", "Amount"}

// ExportFile is a rendered transaction export ready to be served.
type ExportFile struct {
	ContentType string
	Filename    string
	Body        []byte
}

// Export renders the user's transactions matching f in the given format.
func (s *TransactionService) Export(ctx context.Context, sess auth.Session, format core.ReportFormat, f core.TransactionFilter) (ExportFile, error) {
	if !format.Valid() {
		return ExportFile{}, core.ErrInvalidReportFormat
	}
	txs, err := s.store.ListTransactions(ctx, sess.UserID, f)
	if err != nil {
		return ExportFile{}, fmt.Errorf("list transactions: %w", err)
	}
	cats, err := s.store.ListCategories(ctx, sess.UserID, "")
	if err != nil {
		return ExportFile{}, fmt.Errorf("list categories: %w", err)
	}

	stamp := s.now().UTC().Format("20060102")
	var out ExportFile
	switch format {
	case core.ReportJSON:
		body, err := json.MarshalIndent(NewTransactionViews(txs, cats), "", "  ")
		if err != nil {
			return ExportFile{}, fmt.Errorf("encode json: %w", err)
		}
		out = ExportFile{ContentType: "application/json", Filename: "transactions-" + stamp + ".json", Body: body}
	case core.ReportExcel:
		body, err := WriteCSV(txs, cats, true)
		if err != nil {
			return ExportFile{}, err
		}
		out = ExportFile{ContentType: "text/csv; charset=utf-8", Filename: "transactions-" + stamp + "-excel.csv", Body: body}
	default:
		body, err := WriteCSV(txs, cats, false)
		if err != nil {
			return ExportFile{}, err
		}
		out = ExportFile{ContentType: "text/csv; charset=utf-8", Filename: "transactions-" + stamp + ".csv", Body: body}
	}

	s.logger.InfoContext(ctx, "Transactions exported",
		log.FieldUserID, sess.UserID,
		log.FieldOperation, log.OpExport,
		"format", format,
		"rows", len(txs))
	return out, nil
}

// WriteCSV renders transactions with a header row. Amounts are plain decimals
// in major units. bom prefixes the UTF-8 byte order mark.
func WriteCSV(txs []core.Transaction, categories []core.Category, bom bool) ([]byte, error) {
	var buf bytes.Buffer
	if bom {
		buf.WriteString(utf8BOM)
	}
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, row := range Rows(txs, categories) {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Rows flattens transactions into export columns matching exportHeader.
func Rows(txs []core.Transaction, categories []core.Category) [][]string {
	byID := budget.CategoryNames(categories)
	rows := make([][]string, 0, len(txs))
	for _, t := range txs {
		name := ""
		if c, ok := byID[t.CategoryID]; ok {
			name = c.Name
		}
		rows = append(rows, []string{
			t.Date.String(),
			t.Title,
			t.Description,
			name,
			string(t.Kind),
			t.Amount.String(),
		})
	}
	return rows
}

// ExportHeader returns a copy of the export column names.
func ExportHeader() []string {
	return append([]string(nil), exportHeader...)
}
