package model

import "github.com/shopspring/decimal"

// RuleConditions are ANDed together; a nil field is skipped.
type RuleConditions struct {
	DescriptionContains *string
	DescriptionRegex    *string
	PayeeID             *int64
	AccountID           *int64
	Type                *TxnType
	AmountMin           *decimal.Decimal
	AmountMax           *decimal.Decimal
}

// RuleActions are applied when all conditions hold.
type RuleActions struct {
	SetCategoryID *int64
	RenamePayeeID *int64
	AppendNotes   string
}

// CategorizationRule is evaluated in descending Priority order.
type CategorizationRule struct {
	ID          int64
	UserID      int64
	Name        string
	Priority    int
	Conditions  RuleConditions
	Actions     RuleActions
	MatchCount  int
	AutoCreated bool
	Confidence  float64
}
