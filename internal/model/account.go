package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a ledger account. Its current balance is never stored; it is
// always derived from OpeningBalance plus the transaction ledger.
type Account struct {
	ID                 int64
	UserID             int64
	Name               string
	OpeningBalance     decimal.Decimal
	OpeningBalanceDate *time.Time // nil = from the beginning of time
}

// Category is a user-defined spending category.
type Category struct {
	ID     int64
	UserID int64
	Name   string
}
