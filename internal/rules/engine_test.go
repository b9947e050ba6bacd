package rules

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/store"
)

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func coffee() model.Transaction {
	return model.Transaction{
		ID: 1, UserID: 1, AccountID: 7, Type: model.TxnDebit,
		Amount: dec("4.50"), Description: "STARBUCKS STORE 123", PayeeID: ptr(int64(3)),
	}
}

func TestMatchConditions(t *testing.T) {
	tests := []struct {
		name string
		cond model.RuleConditions
		want bool
	}{
		{"no conditions", model.RuleConditions{}, true},
		{"contains, any case", model.RuleConditions{DescriptionContains: ptr("starbucks")}, true},
		{"contains miss", model.RuleConditions{DescriptionContains: ptr("peets")}, false},
		{"regex", model.RuleConditions{DescriptionRegex: ptr(`store \d+$`)}, true},
		{"payee", model.RuleConditions{PayeeID: ptr(int64(3))}, true},
		{"other payee", model.RuleConditions{PayeeID: ptr(int64(4))}, false},
		{"account", model.RuleConditions{AccountID: ptr(int64(8))}, false},
		{"type", model.RuleConditions{Type: ptr(model.TxnCredit)}, false},
		{"amount in range", model.RuleConditions{AmountMin: ptr(dec("4.50")), AmountMax: ptr(dec("10"))}, true},
		{"amount below min", model.RuleConditions{AmountMin: ptr(dec("5"))}, false},
		{"all must hold", model.RuleConditions{DescriptionContains: ptr("starbucks"), Type: ptr(model.TxnCredit)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEngine([]model.CategorizationRule{{ID: 1, Name: tt.name, Conditions: tt.cond}})
			require.NoError(t, err)
			_, ok := e.Match(coffee())
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestFirstMatchByPriority(t *testing.T) {
	e, err := NewEngine([]model.CategorizationRule{
		{ID: 1, Name: "low", Priority: 1, Actions: model.RuleActions{SetCategoryID: ptr(int64(10))}},
		{ID: 3, Name: "high-late", Priority: 5, Actions: model.RuleActions{SetCategoryID: ptr(int64(30))}},
		{ID: 2, Name: "high-early", Priority: 5, Actions: model.RuleActions{SetCategoryID: ptr(int64(20))}},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 1}, []int64{e.Rules()[0].ID, e.Rules()[1].ID, e.Rules()[2].ID})

	txn := coffee()
	r, ok := e.Apply(&txn)
	require.True(t, ok)
	assert.Equal(t, int64(2), r.ID)
	assert.Equal(t, int64(20), *txn.CategoryID)
}

func TestApplyActions(t *testing.T) {
	e, err := NewEngine([]model.CategorizationRule{{
		ID: 1, Name: "rename",
		Actions: model.RuleActions{RenamePayeeID: ptr(int64(9)), AppendNotes: "coffee"},
	}})
	require.NoError(t, err)

	txn := coffee()
	txn.Notes = "team offsite"
	_, ok := e.Apply(&txn)
	require.True(t, ok)
	assert.Equal(t, int64(9), *txn.PayeeID)
	assert.Nil(t, txn.CategoryID)
	assert.Equal(t, "team offsite; coffee", txn.Notes)
}

func TestInvalidRegexRejected(t *testing.T) {
	_, err := NewEngine([]model.CategorizationRule{{ID: 1, Name: "bad", Conditions: model.RuleConditions{DescriptionRegex: ptr("(")}}})
	var ve *model.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestLoadAndRecordMatch(t *testing.T) {
	st := store.New()
	ctx := context.Background()
	require.NoError(t, st.Update(ctx, func(tx *store.Tx) error {
		r, err := tx.CreateRule(model.CategorizationRule{UserID: 1, Name: "any"})
		if err != nil {
			return err
		}
		e, err := Load(tx, 1)
		require.NoError(t, err)
		require.Len(t, e.Rules(), 1)
		return RecordMatch(tx, 1, r.ID)
	}))
	require.NoError(t, st.View(ctx, func(tx *store.Tx) error {
		assert.Equal(t, 1, tx.Rules(1)[0].MatchCount)
		return nil
	}))
}
