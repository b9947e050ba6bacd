package ledger

import (
	"sort"
	"time"

	"github.com/cleared-dev/ledgerd/internal/model"
)

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Less orders transactions canonically by (date, display_order, id). This is
// the tie-break for every balance-affecting and display computation.
func Less(a, b model.Transaction) bool {
	da, db := Day(a.Date), Day(b.Date)
	if !da.Equal(db) {
		return da.Before(db)
	}
	if a.DisplayOrder != b.DisplayOrder {
		return a.DisplayOrder < b.DisplayOrder
	}
	return a.ID < b.ID
}

// SortCanonical sorts txns in place in canonical order.
func SortCanonical(txns []model.Transaction) {
	sort.Slice(txns, func(i, j int) bool { return Less(txns[i], txns[j]) })
}
