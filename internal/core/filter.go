package core

import (
	"sort"
	"strings"
)

const (
	SortByDate   = "date"
	SortByAmount = "amount"
	SortByTitle  = "title"
	SortByType   = "type"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// TransactionFilter narrows and orders a user's transaction list.
// Zero values mean "no constraint"; From and To are inclusive.
type TransactionFilter struct {
	Search     string
	CategoryID string
	Kind       Kind
	From       Date
	To         Date
	SortBy     string
	SortOrder  string
	Limit      int
	Offset     int
}

// Normalize fills default sort settings and drops invalid ones.
func (f TransactionFilter) Normalize() TransactionFilter {
	switch f.SortBy {
	case SortByDate, SortByAmount, SortByTitle, SortByType:
	default:
		f.SortBy = SortByDate
	}
	if f.SortOrder != SortAsc {
		f.SortOrder = SortDesc
	}
	if f.Limit < 0 {
		f.Limit = 0
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Matches reports whether t passes every constraint of f.
func (f TransactionFilter) Matches(t Transaction) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.Search)) {
		return false
	}
	if f.CategoryID != "" && t.CategoryID != f.CategoryID {
		return false
	}
	if f.Kind != "" && t.Kind != f.Kind {
		return false
	}
	if !f.From.IsZero() && t.Date.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && t.Date.After(f.To.Time) {
		return false
	}
	return true
}

// Apply filters, sorts and pages txs without modifying the input slice.
func (f TransactionFilter) Apply(txs []Transaction) []Transaction {
	f = f.Normalize()
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	less := f.less()
	sort.SliceStable(out, func(i, j int) bool {
		if f.SortOrder == SortAsc {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Transaction{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

func (f TransactionFilter) less() func(a, b Transaction) bool {
	switch f.SortBy {
	case SortByAmount:
		return func(a, b Transaction) bool { return a.Amount.Cents < b.Amount.Cents }
	case SortByTitle:
		return func(a, b Transaction) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) }
	case SortByType:
		return func(a, b Transaction) bool { return a.Kind < b.Kind }
	default:
		return func(a, b Transaction) bool {
			if a.Date.Equal(b.Date.Time) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.Date.Before(b.Date.Time)
		}
	}
}
