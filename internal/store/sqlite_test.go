package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledgerd/internal/model"
)

func TestPersistAndOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledgerd.db")

	s := New()
	f := seed(t, s)
	update(t, s, func(tx *Tx) error {
		h, err := tx.Import(user, f.importID)
		if err != nil {
			return err
		}
		h.Original = []byte("date,amount\n")
		h.CompletedAt = ptr(date("2025-06-01"))
		return tx.UpdateImport(h)
	})
	require.NoError(t, s.Persist(ctx, path))

	loaded, err := Open(ctx, path)
	require.NoError(t, err)

	view(t, loaded, func(tx *Tx) {
		acct, err := tx.Account(user, f.checking)
		require.NoError(t, err)
		assert.True(t, acct.OpeningBalance.Equal(dec("100")))
		assert.Nil(t, acct.OpeningBalanceDate)

		txn, err := tx.Transaction(user, f.txn)
		require.NoError(t, err)
		assert.True(t, txn.Amount.Equal(dec("4.50")))
		assert.Equal(t, "F1", txn.FITID())
		assert.Equal(t, f.payee, *txn.PayeeID)
		assert.True(t, txn.Date.Equal(date("2025-06-01")))

		r, err := tx.Rule(user, f.rule)
		require.NoError(t, err)
		assert.Equal(t, f.category, *r.Actions.SetCategoryID)

		h, err := tx.Import(user, f.importID)
		require.NoError(t, err)
		assert.Equal(t, []byte("date,amount\n"), h.Original)
		require.NotNil(t, h.CompletedAt)

		rows, err := tx.ImportRows(user, f.importID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, model.RowImported, rows[0].Status)
	})

	// IDs keep counting from where the saved arena stopped
	update(t, loaded, func(tx *Tx) error {
		c, err := tx.CreateCategory(model.Category{UserID: user, Name: "New"})
		assert.Greater(t, c.ID, f.row)
		return err
	})
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	view(t, s, func(tx *Tx) { assert.Empty(t, tx.Accounts(user)) })
}
