package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cleared-dev/ledgerd/internal/model"
)

func TestSortCanonical(t *testing.T) {
	d1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	txns := []model.Transaction{
		{ID: 5, Date: d2, DisplayOrder: 0},
		{ID: 4, Date: d1, DisplayOrder: 2},
		{ID: 3, Date: d1, DisplayOrder: 1},
		{ID: 1, Date: d1, DisplayOrder: 1},
		{ID: 2, Date: d1.Add(23 * time.Hour), DisplayOrder: 0},
	}
	SortCanonical(txns)

	var ids []int64
	for _, txn := range txns {
		ids = append(ids, txn.ID)
	}
	assert.Equal(t, []int64{2, 1, 3, 4, 5}, ids)
}

func TestSortCanonical_Stable(t *testing.T) {
	d := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	build := func() []model.Transaction {
		return []model.Transaction{
			{ID: 9, Date: d}, {ID: 3, Date: d}, {ID: 7, Date: d}, {ID: 1, Date: d},
		}
	}
	first := build()
	SortCanonical(first)
	for i := 0; i < 10; i++ {
		again := build()
		SortCanonical(again)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, int64(1), first[0].ID)
	assert.Equal(t, int64(9), first[3].ID)
}

func TestDay(t *testing.T) {
	got := Day(time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), got)
}
