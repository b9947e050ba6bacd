package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxnType is the semantic direction of a transaction.
type TxnType string

const (
	TxnDebit    TxnType = "DEBIT"
	TxnCredit   TxnType = "CREDIT"
	TxnTransfer TxnType = "TRANSFER"
)

// Valid reports whether t is one of the known transaction types.
func (t TxnType) Valid() bool {
	switch t {
	case TxnDebit, TxnCredit, TxnTransfer:
		return true
	}
	return false
}

// MetaFITID is the metadata key holding an institution transaction ID.
const MetaFITID = "fitid"

// Transaction is one ledger entry. Amount is always a positive magnitude;
// direction comes from Type.
type Transaction struct {
	ID                int64
	UserID            int64
	AccountID         int64
	Date              time.Time
	DisplayOrder      int
	Type              TxnType
	Amount            decimal.Decimal
	Description       string
	PayeeID           *int64
	CategoryID        *int64
	TransferAccountID *int64 // set iff Type == TxnTransfer
	ImportID          *int64
	Notes             string
	Metadata          map[string]string
}

// SignedAmount returns the amount as seen from accountID: CREDIT adds, DEBIT
// subtracts, and a TRANSFER subtracts from its source and adds to its
// destination. Zero if the transaction does not touch accountID.
func (t Transaction) SignedAmount(accountID int64) decimal.Decimal {
	switch t.Type {
	case TxnCredit:
		if t.AccountID == accountID {
			return t.Amount
		}
	case TxnDebit:
		if t.AccountID == accountID {
			return t.Amount.Neg()
		}
	case TxnTransfer:
		if t.AccountID == accountID {
			return t.Amount.Neg()
		}
		if t.TransferAccountID != nil && *t.TransferAccountID == accountID {
			return t.Amount
		}
	}
	return decimal.Zero
}

// Touches reports whether the transaction affects accountID's balance.
func (t Transaction) Touches(accountID int64) bool {
	if t.AccountID == accountID {
		return true
	}
	return t.Type == TxnTransfer && t.TransferAccountID != nil && *t.TransferAccountID == accountID
}

// FITID returns the stored institution transaction ID, if any.
func (t Transaction) FITID() string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata[MetaFITID]
}

// Row is a canonical statement row produced by the normalizer.
type Row struct {
	Line        int // 1-based source line or record index
	Date        time.Time
	Amount      decimal.Decimal // unsigned magnitude
	Type        TxnType
	Payee       string
	Description string
	ExternalID  string // FITID when present
}

// Text returns the description, falling back to the payee field.
func (r Row) Text() string {
	if r.Description != "" {
		return r.Description
	}
	return r.Payee
}
