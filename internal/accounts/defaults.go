package accounts

import "github.com/cleared-dev/ledgerd/internal/model"

// DefaultAccounts returns the starter accounts for a new ledger.
func DefaultAccounts() []model.Account {
	return []model.Account{
		{Name: "Checking"},
		{Name: "Savings"},
		{Name: "Credit Card"},
	}
}

// DefaultCategories returns the starter spending categories.
func DefaultCategories() []string {
	return []string{
		"Groceries",
		"Dining",
		"Coffee",
		"Transport",
		"Fuel",
		"Utilities",
		"Entertainment",
		"Subscriptions",
		"Software",
		"Shopping",
		"Travel",
		"Income",
	}
}
