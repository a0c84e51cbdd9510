package http

import (
	"net/url"
	"strconv"
	"strings"

	"balancio/internal/core"
)

const maxPageSize = 500

// ParseTransactionFilter reads the transaction list query. Unknown sort
// fields fall back to the defaults; malformed dates, kinds and page bounds
// are rejected.
func ParseTransactionFilter(query url.Values) (core.TransactionFilter, error) {
	f := core.TransactionFilter{
		Search:     sanitizeInput(query.Get("search")),
		CategoryID: strings.TrimSpace(query.Get("categoryId")),
		SortBy:     strings.ToLower(strings.TrimSpace(query.Get("sortBy"))),
		SortOrder:  strings.ToLower(strings.TrimSpace(query.Get("sortOrder"))),
	}

	kind, err := ParseKind(query)
	if err != nil {
		return core.TransactionFilter{}, err
	}
	f.Kind = kind

	if f.From, err = parseDateParam(query, "dateFrom"); err != nil {
		return core.TransactionFilter{}, err
	}
	if f.To, err = parseDateParam(query, "dateTo"); err != nil {
		return core.TransactionFilter{}, err
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To.Time) {
		return core.TransactionFilter{}, badRequest("invalid date range", "dateFrom must not be after dateTo")
	}

	if f.Limit, err = parseIntParam(query, "limit", maxPageSize); err != nil {
		return core.TransactionFilter{}, err
	}
	if f.Offset, err = parseIntParam(query, "offset", -1); err != nil {
		return core.TransactionFilter{}, err
	}
	return f.Normalize(), nil
}

// ParseKind reads the optional type parameter.
func ParseKind(query url.Values) (core.Kind, error) {
	v := strings.ToLower(strings.TrimSpace(query.Get("type")))
	if v == "" {
		return "", nil
	}
	k := core.Kind(v)
	if !k.Valid() {
		return "", badRequest("invalid query parameter", "type must be income or expense")
	}
	return k, nil
}

// ParseReportFormat reads fileType, defaulting to csv.
func ParseReportFormat(query url.Values) (core.ReportFormat, error) {
	v := strings.ToLower(strings.TrimSpace(query.Get("fileType")))
	if v == "" {
		return core.ReportCSV, nil
	}
	f := core.ReportFormat(v)
	if !f.Valid() {
		return "", badRequest("invalid query parameter", "fileType must be one of csv, json, excel")
	}
	return f, nil
}

func parseDateParam(query url.Values, name string) (core.Date, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, badRequest("invalid query parameter", name+" must be a YYYY-MM-DD date")
	}
	return d, nil
}

// parseIntParam reads a non-negative integer. max < 0 means unbounded.
func parseIntParam(query url.Values, name string, max int) (int, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, badRequest("invalid query parameter", name+" must be a non-negative integer")
	}
	if max >= 0 && n > max {
		return 0, badRequest("invalid query parameter", name+" must be at most "+strconv.Itoa(max))
	}
	return n, nil
}
