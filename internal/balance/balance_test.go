package balance

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/store"
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

type ledgerFixture struct {
	st                *store.Store
	checking, savings int64
}

// newLedger seeds checking (opening 100) and savings (opening 0):
//
//	06-01 DEBIT    4.50  checking
//	06-02 CREDIT 1000.00 checking
//	06-02 TRANSFER  20.00 checking -> savings
//	06-05 DEBIT   30.00  checking
func newLedger(t *testing.T) ledgerFixture {
	t.Helper()
	st := store.New()
	var f ledgerFixture
	f.st = st
	err := st.Update(context.Background(), func(tx *store.Tx) error {
		chk, err := tx.CreateAccount(model.Account{UserID: user, Name: "Checking", OpeningBalance: dec("100")})
		require.NoError(t, err)
		sav, err := tx.CreateAccount(model.Account{UserID: user, Name: "Savings"})
		require.NoError(t, err)
		f.checking, f.savings = chk.ID, sav.ID

		p, err := tx.CreatePayee(model.Payee{UserID: user, CanonicalName: "Starbucks"})
		require.NoError(t, err)
		c, err := tx.CreateCategory(model.Category{UserID: user, Name: "Coffee"})
		require.NoError(t, err)

		for _, txn := range []model.Transaction{
			{Date: date("2025-06-01"), Type: model.TxnDebit, Amount: dec("4.50"), Description: "STARBUCKS", PayeeID: &p.ID, CategoryID: &c.ID},
			{Date: date("2025-06-02"), Type: model.TxnCredit, Amount: dec("1000")},
			{Date: date("2025-06-02"), Type: model.TxnTransfer, Amount: dec("20"), TransferAccountID: &sav.ID},
			{Date: date("2025-06-05"), Type: model.TxnDebit, Amount: dec("30")},
		} {
			txn.UserID, txn.AccountID = user, chk.ID
			_, err := tx.CreateTransaction(txn)
			require.NoError(t, err)
		}
		return nil
	})
	require.NoError(t, err)
	return f
}

func calc(st *store.Store) *Calculator { return NewCalculator(st, zerolog.Nop()) }

func TestBalance(t *testing.T) {
	f := newLedger(t)
	c := calc(f.st)
	ctx := context.Background()

	tests := []struct {
		name    string
		account func() int64
		asOf    *time.Time
		want    string
	}{
		{"all checking", func() int64 { return f.checking }, nil, "1045.50"},
		{"checking as of 06-02", func() int64 { return f.checking }, ptrTime("2025-06-02"), "1075.50"},
		{"as of mid-day still includes the day", func() int64 { return f.checking }, timePtr(date("2025-06-02").Add(9 * time.Hour)), "1075.50"},
		{"before any transaction", func() int64 { return f.checking }, ptrTime("2025-05-31"), "100.00"},
		{"transfer destination", func() int64 { return f.savings }, nil, "20.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Balance(ctx, user, tt.account(), tt.asOf)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func ptrTime(s string) *time.Time { d := date(s); return &d }

func timePtr(t time.Time) *time.Time { return &t }

func TestBalanceRespectsOpeningDate(t *testing.T) {
	f := newLedger(t)
	ctx := context.Background()
	require.NoError(t, f.st.Update(ctx, func(tx *store.Tx) error {
		a, err := tx.Account(user, f.checking)
		require.NoError(t, err)
		a.OpeningBalanceDate = ptrTime("2025-06-02")
		return tx.UpdateAccount(a)
	}))

	got, err := calc(f.st).Balance(ctx, user, f.checking, nil)
	require.NoError(t, err)
	assert.Equal(t, "1050.00", got.StringFixed(2))
}

func TestZeroTransactions(t *testing.T) {
	st := store.New()
	ctx := context.Background()
	var id int64
	require.NoError(t, st.Update(ctx, func(tx *store.Tx) error {
		a, err := tx.CreateAccount(model.Account{UserID: user, Name: "Cash", OpeningBalance: dec("50")})
		id = a.ID
		return err
	}))
	c := calc(st)

	got, err := c.Balance(ctx, user, id, ptrTime("2025-01-01"))
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("50")))

	rec, err := c.Reconcile(ctx, user, id, dec("70"), date("2025-01-01"))
	require.NoError(t, err)
	assert.True(t, rec.Delta.Equal(dec("20")))

	got, err = c.Balance(ctx, user, id, nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(dec("70")))
}

func TestReconcile(t *testing.T) {
	f := newLedger(t)
	c := calc(f.st)
	ctx := context.Background()
	asOf := date("2025-06-02")

	rec, err := c.Reconcile(ctx, user, f.checking, dec("1080"), asOf)
	require.NoError(t, err)
	assert.Equal(t, "1075.50", rec.Derived.StringFixed(2))
	assert.Equal(t, "4.50", rec.Delta.StringFixed(2))
	// transactions dated on asOf stay in the window
	assert.Equal(t, "100.00", rec.OpeningBalance.StringFixed(2))

	got, err := c.Balance(ctx, user, f.checking, &asOf)
	require.NoError(t, err)
	assert.Equal(t, "1080.00", got.StringFixed(2))

	got, err = c.Balance(ctx, user, f.checking, nil)
	require.NoError(t, err)
	assert.Equal(t, "1050.00", got.StringFixed(2))

	again, err := c.Reconcile(ctx, user, f.checking, dec("1080"), asOf)
	require.NoError(t, err)
	assert.True(t, again.Delta.IsZero())

	require.NoError(t, f.st.View(ctx, func(tx *store.Tx) error {
		assert.Len(t, tx.AccountTransactions(user, f.checking), 4)
		a, err := tx.Account(user, f.checking)
		require.NoError(t, err)
		require.NotNil(t, a.OpeningBalanceDate)
		assert.True(t, a.OpeningBalanceDate.Equal(asOf))
		return nil
	}))
}

func TestReconcileBeforeOpeningDate(t *testing.T) {
	f := newLedger(t)
	c := calc(f.st)
	ctx := context.Background()

	_, err := c.Reconcile(ctx, user, f.checking, dec("500"), date("2025-06-05"))
	require.NoError(t, err)
	// move the window back to a day that was previously excluded
	asOf := date("2025-06-01")
	_, err = c.Reconcile(ctx, user, f.checking, dec("200"), asOf)
	require.NoError(t, err)

	got, err := c.Balance(ctx, user, f.checking, &asOf)
	require.NoError(t, err)
	assert.Equal(t, "200.00", got.StringFixed(2))
}

func TestRegister(t *testing.T) {
	f := newLedger(t)
	lines, err := calc(f.st).Register(context.Background(), user, f.checking, nil)
	require.NoError(t, err)
	require.Len(t, lines, 4)

	var balances []string
	for _, l := range lines {
		balances = append(balances, l.Balance.StringFixed(2))
	}
	assert.Equal(t, []string{"95.50", "1095.50", "1075.50", "1045.50"}, balances)
	assert.Equal(t, "Starbucks", lines[0].Payee)
	assert.Equal(t, "Coffee", lines[0].Category)
	assert.Equal(t, "-20.00", lines[2].Signed.StringFixed(2))
}

func TestRegisterOrderingIsStable(t *testing.T) {
	st := store.New()
	ctx := context.Background()
	var acct int64
	require.NoError(t, st.Update(ctx, func(tx *store.Tx) error {
		a, err := tx.CreateAccount(model.Account{UserID: user, Name: "Checking"})
		require.NoError(t, err)
		acct = a.ID
		for _, tc := range []struct {
			order int
			desc  string
		}{{2, "late"}, {1, "tie-a"}, {1, "tie-b"}, {0, "early"}} {
			_, err := tx.CreateTransaction(model.Transaction{
				UserID: user, AccountID: acct, Date: date("2025-06-01"), DisplayOrder: tc.order,
				Type: model.TxnDebit, Amount: dec("1"), Description: tc.desc,
			})
			require.NoError(t, err)
		}
		return nil
	}))

	c := calc(st)
	for i := 0; i < 3; i++ {
		lines, err := c.Register(ctx, user, acct, nil)
		require.NoError(t, err)
		var got []string
		for _, l := range lines {
			got = append(got, l.Txn.Description)
		}
		assert.Equal(t, []string{"early", "tie-a", "tie-b", "late"}, got)
	}
}

func TestUnknownAccount(t *testing.T) {
	f := newLedger(t)
	c := calc(f.st)
	ctx := context.Background()

	_, err := c.Balance(ctx, user, 999, nil)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = c.Register(ctx, user, 999, nil)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = c.Reconcile(ctx, user, 999, dec("1"), date("2025-06-01"))
	assert.ErrorIs(t, err, model.ErrNotFound)

	// another user's account is not visible
	_, err = c.Balance(ctx, user+1, f.checking, nil)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCancelledContext(t *testing.T) {
	f := newLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := calc(f.st).Balance(ctx, user, f.checking, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
