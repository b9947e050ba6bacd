package store

import (
	"time"

	"github.com/cleared-dev/ledgerd/internal/ledger"
	"github.com/cleared-dev/ledgerd/internal/model"
)

// CreateTransaction validates and stores a transaction. Payee, category and
// import references must belong to the same user.
func (tx *Tx) CreateTransaction(t model.Transaction) (model.Transaction, error) {
	if err := tx.writable(); err != nil {
		return model.Transaction{}, err
	}
	if err := ledger.Check(t, tx); err != nil {
		return model.Transaction{}, err
	}
	if err := tx.checkTxnRefs(t); err != nil {
		return model.Transaction{}, err
	}
	t.ID = tx.a.allocID()
	t.Date = ledger.Day(t.Date)
	t = cloneTxn(t)
	tx.a.transactions[t.ID] = t
	return cloneTxn(t), nil
}

func (tx *Tx) checkTxnRefs(t model.Transaction) error {
	if t.PayeeID != nil {
		if p, ok := tx.a.payees[*t.PayeeID]; !ok || p.UserID != t.UserID {
			return model.NotFound("payee", *t.PayeeID)
		}
	}
	if t.CategoryID != nil {
		if c, ok := tx.a.categories[*t.CategoryID]; !ok || c.UserID != t.UserID {
			return model.NotFound("category", *t.CategoryID)
		}
	}
	if t.ImportID != nil {
		if h, ok := tx.a.imports[*t.ImportID]; !ok || h.UserID != t.UserID {
			return model.NotFound("import", *t.ImportID)
		}
	}
	return nil
}

// Transaction returns one of the user's transactions.
func (tx *Tx) Transaction(userID, id int64) (model.Transaction, error) {
	t, ok := tx.a.transactions[id]
	if !ok || t.UserID != userID {
		return model.Transaction{}, model.NotFound("transaction", id)
	}
	return cloneTxn(t), nil
}

// AccountTransactions returns every transaction touching the account,
// including transfers into it, in canonical order.
func (tx *Tx) AccountTransactions(userID, accountID int64) []model.Transaction {
	var out []model.Transaction
	for _, t := range tx.a.transactions {
		if t.UserID == userID && t.Touches(accountID) {
			out = append(out, cloneTxn(t))
		}
	}
	ledger.SortCanonical(out)
	return out
}

// TransactionsInRange returns the account's transactions dated within
// [from, to], inclusive, in canonical order.
func (tx *Tx) TransactionsInRange(userID, accountID int64, from, to time.Time) []model.Transaction {
	from, to = ledger.Day(from), ledger.Day(to)
	var out []model.Transaction
	for _, t := range tx.a.transactions {
		if t.UserID != userID || !t.Touches(accountID) {
			continue
		}
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		out = append(out, cloneTxn(t))
	}
	ledger.SortCanonical(out)
	return out
}

// TransactionByExternalID finds a transaction in the account carrying the
// given institution ID.
func (tx *Tx) TransactionByExternalID(userID, accountID int64, externalID string) (model.Transaction, bool) {
	if externalID == "" {
		return model.Transaction{}, false
	}
	var (
		found model.Transaction
		ok    bool
	)
	for _, t := range tx.a.transactions {
		if t.UserID != userID || t.AccountID != accountID || t.FITID() != externalID {
			continue
		}
		// lowest ID wins so the result is stable
		if !ok || t.ID < found.ID {
			found, ok = t, true
		}
	}
	return cloneTxn(found), ok
}

// MaxDisplayOrder returns the highest display order among the account's
// transactions on the given day, or 0 if there are none.
func (tx *Tx) MaxDisplayOrder(userID, accountID int64, day time.Time) int {
	day = ledger.Day(day)
	highest := 0
	for _, t := range tx.a.transactions {
		if t.UserID == userID && t.AccountID == accountID && t.Date.Equal(day) && t.DisplayOrder > highest {
			highest = t.DisplayOrder
		}
	}
	return highest
}

// UpdateTransaction replaces a stored transaction after revalidating it.
func (tx *Tx) UpdateTransaction(t model.Transaction) error {
	if err := tx.writable(); err != nil {
		return err
	}
	old, ok := tx.a.transactions[t.ID]
	if !ok || old.UserID != t.UserID {
		return model.NotFound("transaction", t.ID)
	}
	if err := ledger.Check(t, tx); err != nil {
		return err
	}
	if err := tx.checkTxnRefs(t); err != nil {
		return err
	}
	t.Date = ledger.Day(t.Date)
	tx.a.transactions[t.ID] = cloneTxn(t)
	return nil
}

// DeleteTransaction removes a transaction, nulling the import links that
// point at it and decrementing its payee's usage count.
func (tx *Tx) DeleteTransaction(userID, id int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	t, ok := tx.a.transactions[id]
	if !ok || t.UserID != userID {
		return model.NotFound("transaction", id)
	}
	tx.deleteTransaction(id)
	return nil
}

func (tx *Tx) deleteTransaction(id int64) {
	t := tx.a.transactions[id]
	for rid, r := range tx.a.importRows {
		if r.TransactionID != nil && *r.TransactionID == id {
			r.TransactionID = nil
			tx.a.importRows[rid] = r
		}
	}
	if t.PayeeID != nil {
		if p, ok := tx.a.payees[*t.PayeeID]; ok && p.TransactionCount > 0 {
			p.TransactionCount--
			tx.a.payees[p.ID] = p
		}
	}
	delete(tx.a.transactions, id)
}
