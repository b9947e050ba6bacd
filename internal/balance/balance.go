// Package balance derives account balances from the opening balance and the
// transaction ledger. Balances are never stored.
package balance

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgerd/internal/ledger"
	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/store"
)

// Calculator computes balances against committed store snapshots.
type Calculator struct {
	store *store.Store
	log   zerolog.Logger
}

// NewCalculator creates a Calculator.
func NewCalculator(st *store.Store, log zerolog.Logger) *Calculator {
	return &Calculator{store: st, log: log}
}

// Reconciliation is the outcome of folding a statement balance into an
// account's opening balance.
type Reconciliation struct {
	AccountID          int64
	AsOf               time.Time
	Actual             decimal.Decimal
	Derived            decimal.Decimal // balance before reconciling
	Delta              decimal.Decimal
	OpeningBalance     decimal.Decimal // after reconciling
	OpeningBalanceDate time.Time
}

// Balance returns the account balance including every transaction dated on
// or before asOf, or all transactions when asOf is nil.
func (c *Calculator) Balance(ctx context.Context, userID, accountID int64, asOf *time.Time) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := c.store.View(ctx, func(tx *store.Tx) error {
		acct, err := tx.Account(userID, accountID)
		if err != nil {
			return err
		}
		bal = Derive(acct, tx.AccountTransactions(userID, accountID), asOf)
		return nil
	})
	return bal, err
}

// Derive sums acct's opening balance and the signed amounts of txns that fall
// inside the window [OpeningBalanceDate, asOf]. txns must be in canonical
// order and touch acct.
func Derive(acct model.Account, txns []model.Transaction, asOf *time.Time) decimal.Decimal {
	bal := acct.OpeningBalance
	for _, t := range txns {
		if !inWindow(acct, t, asOf) {
			continue
		}
		bal = bal.Add(t.SignedAmount(acct.ID))
	}
	return bal
}

func inWindow(acct model.Account, t model.Transaction, asOf *time.Time) bool {
	day := ledger.Day(t.Date)
	if acct.OpeningBalanceDate != nil && day.Before(ledger.Day(*acct.OpeningBalanceDate)) {
		return false
	}
	if asOf != nil && day.After(ledger.Day(*asOf)) {
		return false
	}
	return true
}

// Register returns the account's transactions in canonical order with the
// running balance after each one. Transactions before the opening balance
// date are left out.
func (c *Calculator) Register(ctx context.Context, userID, accountID int64, asOf *time.Time) ([]ledger.RegisterLine, error) {
	var lines []ledger.RegisterLine
	err := c.store.View(ctx, func(tx *store.Tx) error {
		acct, err := tx.Account(userID, accountID)
		if err != nil {
			return err
		}
		bal := acct.OpeningBalance
		for _, t := range tx.AccountTransactions(userID, accountID) {
			if !inWindow(acct, t, asOf) {
				continue
			}
			signed := t.SignedAmount(accountID)
			bal = bal.Add(signed)
			line := ledger.RegisterLine{Txn: t, Signed: signed, Balance: bal}
			if t.PayeeID != nil {
				if p, err := tx.Payee(userID, *t.PayeeID); err == nil {
					line.Payee = p.CanonicalName
				}
			}
			if t.CategoryID != nil {
				if cat, err := tx.Category(userID, *t.CategoryID); err == nil {
					line.Category = cat.Name
				}
			}
			lines = append(lines, line)
		}
		return nil
	})
	return lines, err
}

// Reconcile folds the difference between actual and the derived balance on
// asOf into the opening balance and moves the opening balance date to asOf.
// Transactions are never touched. Transactions dated on asOf stay inside the
// window, so the new opening balance excludes them and Balance(asOf) equals
// actual afterwards.
func (c *Calculator) Reconcile(ctx context.Context, userID, accountID int64, actual decimal.Decimal, asOf time.Time) (Reconciliation, error) {
	day := ledger.Day(asOf)
	var rec Reconciliation
	err := c.store.Update(ctx, func(tx *store.Tx) error {
		acct, err := tx.Account(userID, accountID)
		if err != nil {
			return err
		}
		txns := tx.AccountTransactions(userID, accountID)
		derived := Derive(acct, txns, &day)

		sameDay := decimal.Zero
		for _, t := range txns {
			if ledger.Day(t.Date).Equal(day) {
				sameDay = sameDay.Add(t.SignedAmount(accountID))
			}
		}

		acct.OpeningBalance = actual.Sub(sameDay)
		acct.OpeningBalanceDate = &day
		if err := tx.UpdateAccount(acct); err != nil {
			return err
		}
		rec = Reconciliation{
			AccountID:          accountID,
			AsOf:               day,
			Actual:             actual,
			Derived:            derived,
			Delta:              actual.Sub(derived),
			OpeningBalance:     acct.OpeningBalance,
			OpeningBalanceDate: day,
		}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	c.log.Info().
		Int64("account_id", accountID).
		Str("as_of", day.Format(time.DateOnly)).
		Str("delta", rec.Delta.StringFixed(2)).
		Msg("account reconciled")
	return rec, nil
}
