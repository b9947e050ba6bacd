package ledger

import (
	"fmt"
	"strings"

	"github.com/cleared-dev/ledgerd/internal/model"
)

// ValidationError describes a single invariant violation.
type ValidationError struct {
	Invariant     int
	TransactionID int64
	Description   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invariant %d [txn %d]: %s", e.Invariant, e.TransactionID, e.Description)
}

// AccountChecker tests whether an account ID exists for a user.
type AccountChecker interface {
	AccountExists(userID, accountID int64) bool
}

// ValidateTransaction enforces the 6 transaction invariants.
func ValidateTransaction(txn model.Transaction, accounts AccountChecker) []ValidationError {
	var errs []ValidationError
	add := func(inv int, format string, args ...any) {
		errs = append(errs, ValidationError{
			Invariant:     inv,
			TransactionID: txn.ID,
			Description:   fmt.Sprintf(format, args...),
		})
	}

	// Invariant 1: Amount is a positive magnitude.
	if !txn.Amount.IsPositive() {
		add(1, "amount must be > 0, got %s", txn.Amount.String())
	}

	// Invariant 2: Known type.
	if !txn.Type.Valid() {
		add(2, "unknown type %q", txn.Type)
	}

	// Invariant 3: Transfer target set iff type is TRANSFER.
	isTransfer := txn.Type == model.TxnTransfer
	hasTarget := txn.TransferAccountID != nil
	if isTransfer && !hasTarget {
		add(3, "transfer requires a destination account")
	}
	if !isTransfer && hasTarget {
		add(3, "%s must not carry a transfer account", txn.Type)
	}

	// Invariant 4: A transfer cannot target its own account.
	if hasTarget && *txn.TransferAccountID == txn.AccountID {
		add(4, "transfer source and destination are both account %d", txn.AccountID)
	}

	// Invariant 5: Valid account references.
	if !accounts.AccountExists(txn.UserID, txn.AccountID) {
		add(5, "unknown account %d", txn.AccountID)
	}
	if hasTarget && !accounts.AccountExists(txn.UserID, *txn.TransferAccountID) {
		add(5, "unknown transfer account %d", *txn.TransferAccountID)
	}

	// Invariant 6: Dated.
	if txn.Date.IsZero() {
		add(6, "missing date")
	}

	return errs
}

// Violations is the error returned by Check.
type Violations []ValidationError

func (v Violations) Error() string {
	msgs := make([]string, len(v))
	for i, ve := range v {
		msgs[i] = ve.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Check returns every violation as a Violations error, or nil.
func Check(txn model.Transaction, accounts AccountChecker) error {
	verrs := ValidateTransaction(txn, accounts)
	if len(verrs) == 0 {
		return nil
	}
	return Violations(verrs)
}
