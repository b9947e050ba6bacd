package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledgerd/internal/model"
)

const user = int64(1)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

// fixture holds IDs created by seed.
type fixture struct {
	checking, savings int64
	payee, category   int64
	importID          int64
	txn, transfer     int64
	pattern, rule     int64
	row               int64
}

func seed(t *testing.T, s *Store) fixture {
	t.Helper()
	var f fixture
	err := s.Update(context.Background(), func(tx *Tx) error {
		chk, err := tx.CreateAccount(model.Account{UserID: user, Name: "Checking", OpeningBalance: dec("100")})
		require.NoError(t, err)
		sav, err := tx.CreateAccount(model.Account{UserID: user, Name: "Savings"})
		require.NoError(t, err)
		p, err := tx.CreatePayee(model.Payee{UserID: user, CanonicalName: "Starbucks", TransactionCount: 1})
		require.NoError(t, err)
		c, err := tx.CreateCategory(model.Category{UserID: user, Name: "Coffee"})
		require.NoError(t, err)
		h, err := tx.CreateImport(model.ImportHistory{UserID: user, AccountID: chk.ID, Reference: "imp-20250601-001", CreatedAt: date("2025-06-01")})
		require.NoError(t, err)
		txn, err := tx.CreateTransaction(model.Transaction{
			UserID: user, AccountID: chk.ID, Date: date("2025-06-01"), Type: model.TxnDebit,
			Amount: dec("4.50"), Description: "STARBUCKS #123", PayeeID: &p.ID, CategoryID: &c.ID,
			ImportID: &h.ID, Metadata: map[string]string{model.MetaFITID: "F1"},
		})
		require.NoError(t, err)
		xfer, err := tx.CreateTransaction(model.Transaction{
			UserID: user, AccountID: chk.ID, Date: date("2025-06-02"), Type: model.TxnTransfer,
			Amount: dec("20"), TransferAccountID: &sav.ID,
		})
		require.NoError(t, err)
		pat, err := tx.CreatePattern(model.PayeeMatchingPattern{UserID: user, PayeeID: p.ID, Type: model.PatternContains, Value: "starbucks", Confidence: 0.8})
		require.NoError(t, err)
		r, err := tx.CreateRule(model.CategorizationRule{
			UserID: user, Name: "coffee", Priority: 1,
			Conditions: model.RuleConditions{PayeeID: &p.ID},
			Actions:    model.RuleActions{SetCategoryID: &c.ID, RenamePayeeID: &p.ID},
		})
		require.NoError(t, err)
		row, err := tx.AddImportRow(user, model.ImportedTransaction{ImportID: h.ID, RowIndex: 0, Status: model.RowImported, TransactionID: &txn.ID})
		require.NoError(t, err)

		f = fixture{chk.ID, sav.ID, p.ID, c.ID, h.ID, txn.ID, xfer.ID, pat.ID, r.ID, row.ID}
		return nil
	})
	require.NoError(t, err)
	return f
}

func view(t *testing.T, s *Store, fn func(tx *Tx)) {
	t.Helper()
	require.NoError(t, s.View(context.Background(), func(tx *Tx) error {
		fn(tx)
		return nil
	}))
}

func update(t *testing.T, s *Store, fn func(tx *Tx) error) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), fn))
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	s := New()
	f := seed(t, s)

	boom := errors.New("boom")
	err := s.Update(context.Background(), func(tx *Tx) error {
		_, err := tx.CreateAccount(model.Account{UserID: user, Name: "Ghost"})
		require.NoError(t, err)
		require.NoError(t, tx.DeleteTransaction(user, f.txn))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	view(t, s, func(tx *Tx) {
		assert.Len(t, tx.Accounts(user), 2)
		_, err := tx.Transaction(user, f.txn)
		assert.NoError(t, err)
	})
}

func TestUpdateCancelledContextDiscards(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	err := s.Update(ctx, func(tx *Tx) error {
		_, err := tx.CreateAccount(model.Account{UserID: user, Name: "Late"})
		cancel()
		return err
	})
	assert.ErrorIs(t, err, context.Canceled)
	view(t, s, func(tx *Tx) { assert.Empty(t, tx.Accounts(user)) })
}

func TestViewIsReadOnly(t *testing.T) {
	s := New()
	err := s.View(context.Background(), func(tx *Tx) error {
		_, err := tx.CreateAccount(model.Account{UserID: user, Name: "x"})
		return err
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestViewSeesCommittedSnapshotOnly(t *testing.T) {
	s := New()
	f := seed(t, s)

	require.NoError(t, s.View(context.Background(), func(tx *Tx) error {
		update(t, s, func(w *Tx) error { return w.DeleteTransaction(user, f.txn) })
		_, err := tx.Transaction(user, f.txn)
		assert.NoError(t, err, "open view must keep its snapshot")
		return nil
	}))
	view(t, s, func(tx *Tx) {
		_, err := tx.Transaction(user, f.txn)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestReturnedEntitiesAreCopies(t *testing.T) {
	s := New()
	f := seed(t, s)
	view(t, s, func(tx *Tx) {
		txn, err := tx.Transaction(user, f.txn)
		require.NoError(t, err)
		txn.Metadata[model.MetaFITID] = "mutated"
		*txn.PayeeID = 999
	})
	view(t, s, func(tx *Tx) {
		txn, err := tx.Transaction(user, f.txn)
		require.NoError(t, err)
		assert.Equal(t, "F1", txn.FITID())
		assert.Equal(t, f.payee, *txn.PayeeID)
	})
}

func TestCreateTransactionValidates(t *testing.T) {
	s := New()
	f := seed(t, s)
	err := s.Update(context.Background(), func(tx *Tx) error {
		_, err := tx.CreateTransaction(model.Transaction{
			UserID: user, AccountID: f.checking, Date: date("2025-06-01"), Type: model.TxnDebit, Amount: dec("-1"),
		})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invariant 1")

	err = s.Update(context.Background(), func(tx *Tx) error {
		_, err := tx.CreateTransaction(model.Transaction{
			UserID: user, AccountID: f.checking, Date: date("2025-06-01"), Type: model.TxnDebit, Amount: dec("1"),
			PayeeID: ptr(int64(999)),
		})
		return err
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteTransactionNullsLinksAndDecrementsPayee(t *testing.T) {
	s := New()
	f := seed(t, s)
	update(t, s, func(tx *Tx) error { return tx.DeleteTransaction(user, f.txn) })

	view(t, s, func(tx *Tx) {
		rows, err := tx.ImportRows(user, f.importID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Nil(t, rows[0].TransactionID)

		p, err := tx.Payee(user, f.payee)
		require.NoError(t, err)
		assert.Equal(t, 0, p.TransactionCount)
	})

	// count never goes negative
	update(t, s, func(tx *Tx) error {
		txn, err := tx.CreateTransaction(model.Transaction{
			UserID: user, AccountID: f.checking, Date: date("2025-06-03"), Type: model.TxnDebit,
			Amount: dec("1"), PayeeID: &f.payee,
		})
		if err != nil {
			return err
		}
		return tx.DeleteTransaction(user, txn.ID)
	})
	view(t, s, func(tx *Tx) {
		p, _ := tx.Payee(user, f.payee)
		assert.Equal(t, 0, p.TransactionCount)
	})
}

func TestDeletePayeeCascades(t *testing.T) {
	s := New()
	f := seed(t, s)
	update(t, s, func(tx *Tx) error { return tx.DeletePayee(user, f.payee) })

	view(t, s, func(tx *Tx) {
		_, err := tx.Pattern(user, f.pattern)
		assert.ErrorIs(t, err, model.ErrNotFound)

		txn, err := tx.Transaction(user, f.txn)
		require.NoError(t, err)
		assert.Nil(t, txn.PayeeID)

		r, err := tx.Rule(user, f.rule)
		require.NoError(t, err)
		assert.Nil(t, r.Conditions.PayeeID)
		assert.Nil(t, r.Actions.RenamePayeeID)
		assert.NotNil(t, r.Actions.SetCategoryID)
	})
}

func TestDeleteCategorySetsNull(t *testing.T) {
	s := New()
	f := seed(t, s)
	update(t, s, func(tx *Tx) error { return tx.DeleteCategory(user, f.category) })

	view(t, s, func(tx *Tx) {
		txn, _ := tx.Transaction(user, f.txn)
		assert.Nil(t, txn.CategoryID)
		r, _ := tx.Rule(user, f.rule)
		assert.Nil(t, r.Actions.SetCategoryID)
	})
}

func TestDeleteAccountRemovesInboundTransfers(t *testing.T) {
	s := New()
	f := seed(t, s)
	update(t, s, func(tx *Tx) error { return tx.DeleteAccount(user, f.savings) })

	view(t, s, func(tx *Tx) {
		_, err := tx.Transaction(user, f.transfer)
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = tx.Transaction(user, f.txn)
		assert.NoError(t, err)
	})

	update(t, s, func(tx *Tx) error { return tx.DeleteAccount(user, f.checking) })
	view(t, s, func(tx *Tx) {
		assert.Empty(t, tx.AccountTransactions(user, f.checking))
		assert.Empty(t, tx.Imports(user))
	})
}

func TestDeleteImportOrphansTransactions(t *testing.T) {
	s := New()
	f := seed(t, s)
	update(t, s, func(tx *Tx) error { return tx.DeleteImport(user, f.importID) })

	view(t, s, func(tx *Tx) {
		txn, err := tx.Transaction(user, f.txn)
		require.NoError(t, err)
		assert.Nil(t, txn.ImportID)
		_, err = tx.ImportRows(user, f.importID)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestDeleteUserRemovesEverything(t *testing.T) {
	s := New()
	seed(t, s)
	update(t, s, func(tx *Tx) error { return tx.DeleteUser(user) })
	view(t, s, func(tx *Tx) {
		assert.Empty(t, tx.Accounts(user))
		assert.Empty(t, tx.Payees(user))
		assert.Empty(t, tx.Patterns(user))
		assert.Empty(t, tx.Rules(user))
		assert.Empty(t, tx.Categories(user))
	})
}

func TestPayeeNamesUniqueAfterFolding(t *testing.T) {
	s := New()
	seed(t, s)
	err := s.Update(context.Background(), func(tx *Tx) error {
		_, err := tx.CreatePayee(model.Payee{UserID: user, CanonicalName: "  STARBUCKS "})
		return err
	})
	assert.ErrorIs(t, err, model.ErrConflict)

	// another user may reuse the name
	update(t, s, func(tx *Tx) error {
		_, err := tx.CreatePayee(model.Payee{UserID: 2, CanonicalName: "Starbucks"})
		return err
	})
}

func TestPatternValidation(t *testing.T) {
	s := New()
	f := seed(t, s)

	tests := []struct {
		name string
		p    model.PayeeMatchingPattern
		want error
	}{
		{"duplicate triple", model.PayeeMatchingPattern{Type: model.PatternContains, Value: "STARBUCKS", Confidence: 0.5}, model.ErrConflict},
		{"confidence above 1", model.PayeeMatchingPattern{Type: model.PatternExact, Value: "x", Confidence: 1.2}, nil},
		{"bad regex", model.PayeeMatchingPattern{Type: model.PatternRegex, Value: "(", Confidence: 0.5}, nil},
		{"unknown type", model.PayeeMatchingPattern{Type: "soundex", Value: "x", Confidence: 0.5}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Update(context.Background(), func(tx *Tx) error {
				tt.p.UserID, tt.p.PayeeID = user, f.payee
				_, err := tx.CreatePattern(tt.p)
				return err
			})
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			} else {
				var ve *model.ValidationError
				assert.ErrorAs(t, err, &ve)
			}
		})
	}
}

func TestRulesOrderedByPriorityThenID(t *testing.T) {
	s := New()
	f := seed(t, s)
	update(t, s, func(tx *Tx) error {
		for _, p := range []int{5, 1, 5} {
			if _, err := tx.CreateRule(model.CategorizationRule{UserID: user, Name: "r", Priority: p}); err != nil {
				return err
			}
		}
		return nil
	})
	view(t, s, func(tx *Tx) {
		rules := tx.Rules(user)
		require.Len(t, rules, 4)
		assert.Equal(t, []int{5, 5, 1, 1}, []int{rules[0].Priority, rules[1].Priority, rules[2].Priority, rules[3].Priority})
		assert.Less(t, rules[0].ID, rules[1].ID)
		assert.Equal(t, f.rule, rules[2].ID)
	})

	err := s.Update(context.Background(), func(tx *Tx) error {
		_, err := tx.CreateRule(model.CategorizationRule{UserID: user, Name: "bad", Conditions: model.RuleConditions{DescriptionRegex: ptr("[")}})
		return err
	})
	var ve *model.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestQueries(t *testing.T) {
	s := New()
	f := seed(t, s)
	update(t, s, func(tx *Tx) error {
		_, err := tx.CreateTransaction(model.Transaction{
			UserID: user, AccountID: f.checking, Date: date("2025-06-01"), DisplayOrder: 3,
			Type: model.TxnCredit, Amount: dec("10"),
		})
		return err
	})

	view(t, s, func(tx *Tx) {
		assert.Equal(t, 3, tx.MaxDisplayOrder(user, f.checking, date("2025-06-01")))
		assert.Equal(t, 0, tx.MaxDisplayOrder(user, f.checking, date("2025-07-01")))

		got, ok := tx.TransactionByExternalID(user, f.checking, "F1")
		require.True(t, ok)
		assert.Equal(t, f.txn, got.ID)
		_, ok = tx.TransactionByExternalID(user, f.savings, "F1")
		assert.False(t, ok)

		inRange := tx.TransactionsInRange(user, f.savings, date("2025-06-01"), date("2025-06-02"))
		require.Len(t, inRange, 1, "inbound transfer counts for the destination")
		assert.Equal(t, f.transfer, inRange[0].ID)

		all := tx.AccountTransactions(user, f.checking)
		require.Len(t, all, 3)
		assert.Equal(t, f.txn, all[0].ID)
		assert.Equal(t, f.transfer, all[2].ID)

		assert.Equal(t, 2, tx.NextImportSeq(user, date("2025-06-01")))
		assert.Equal(t, 1, tx.NextImportSeq(user, date("2025-06-02")))
	})
}
