package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSignedAmount(t *testing.T) {
	dest := int64(2)
	amt := decimal.RequireFromString("10.50")

	tests := []struct {
		name    string
		txn     Transaction
		account int64
		want    string
	}{
		{"credit", Transaction{AccountID: 1, Type: TxnCredit, Amount: amt}, 1, "10.5"},
		{"debit", Transaction{AccountID: 1, Type: TxnDebit, Amount: amt}, 1, "-10.5"},
		{"transfer source", Transaction{AccountID: 1, Type: TxnTransfer, Amount: amt, TransferAccountID: &dest}, 1, "-10.5"},
		{"transfer destination", Transaction{AccountID: 1, Type: TxnTransfer, Amount: amt, TransferAccountID: &dest}, 2, "10.5"},
		{"unrelated account", Transaction{AccountID: 1, Type: TxnCredit, Amount: amt}, 3, "0"},
	}
	for _, tt := range tests {
		got := tt.txn.SignedAmount(tt.account)
		assert.Equal(t, tt.want, got.String(), tt.name)
	}
}

func TestTouches(t *testing.T) {
	dest := int64(9)
	txn := Transaction{AccountID: 1, Type: TxnTransfer, TransferAccountID: &dest}
	assert.True(t, txn.Touches(1))
	assert.True(t, txn.Touches(9))
	assert.False(t, txn.Touches(2))
}

func TestRowText(t *testing.T) {
	assert.Equal(t, "desc", Row{Description: "desc", Payee: "payee"}.Text())
	assert.Equal(t, "payee", Row{Payee: "payee"}.Text())
}

func TestTxnTypeValid(t *testing.T) {
	assert.True(t, TxnDebit.Valid())
	assert.True(t, TxnTransfer.Valid())
	assert.False(t, TxnType("REFUND").Valid())
}
