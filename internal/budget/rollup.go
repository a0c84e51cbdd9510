package budget

import (
	"sort"

	"balancio/internal/core"
)

const (
	// UnknownCategory labels expenses whose category cannot be resolved.
	UnknownCategory = "Unknown Category"

	// DefaultTopN is the size of the "top categories" view.
	DefaultTopN = 3
)

// CategoryTotal is the summed expense amount for one category display name.
type CategoryTotal struct {
	CategoryID string // first category id seen under this name, empty for unknown
	Name       string
	Color      string
	Amount     core.Money
}

// CategoryNames indexes categories by id.
func CategoryNames(categories []core.Category) map[string]core.Category {
	out := make(map[string]core.Category, len(categories))
	for _, c := range categories {
		out[c.ID] = c
	}
	return out
}

// Rollup groups expense transactions by category display name, in order of
// first occurrence. Income records are ignored. Unresolvable categories are
// grouped under UnknownCategory.
func Rollup(txs []core.Transaction, categories []core.Category) []CategoryTotal {
	lookup := CategoryNames(categories)
	var out []CategoryTotal
	pos := make(map[string]int)

	for _, t := range txs {
		if t.Kind != core.Expense {
			continue
		}
		name, id, color := UnknownCategory, "", ""
		if c, ok := lookup[t.CategoryID]; ok && t.CategoryID != "" {
			name, id, color = c.Name, c.ID, c.Color
		}
		i, seen := pos[name]
		if !seen {
			i = len(out)
			pos[name] = i
			out = append(out, CategoryTotal{CategoryID: id, Name: name, Color: color})
		}
		out[i].Amount.Cents += amountOf(t)
	}
	if out == nil {
		out = []CategoryTotal{}
	}
	return out
}

// TopCategories returns the n largest totals in descending order. Equal
// totals keep their rollup order. n <= 0 means DefaultTopN.
func TopCategories(rollup []CategoryTotal, n int) []CategoryTotal {
	if n <= 0 {
		n = DefaultTopN
	}
	ranked := make([]CategoryTotal, len(rollup))
	copy(ranked, rollup)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Amount.Cents > ranked[j].Amount.Cents
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
