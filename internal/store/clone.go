package store

import (
	"maps"
	"slices"

	"github.com/cleared-dev/ledgerd/internal/model"
)

// Entities cross the Tx boundary by value; pointer, map and slice fields are
// copied so callers cannot reach into a committed snapshot.

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneAccount(a model.Account) model.Account {
	a.OpeningBalanceDate = clonePtr(a.OpeningBalanceDate)
	return a
}

func cloneTxn(t model.Transaction) model.Transaction {
	t.PayeeID = clonePtr(t.PayeeID)
	t.CategoryID = clonePtr(t.CategoryID)
	t.TransferAccountID = clonePtr(t.TransferAccountID)
	t.ImportID = clonePtr(t.ImportID)
	t.Metadata = maps.Clone(t.Metadata)
	return t
}

func clonePayee(p model.Payee) model.Payee {
	p.LastUsedAt = clonePtr(p.LastUsedAt)
	return p
}

func clonePattern(p model.PayeeMatchingPattern) model.PayeeMatchingPattern {
	p.LastMatchedAt = clonePtr(p.LastMatchedAt)
	return p
}

func cloneRule(r model.CategorizationRule) model.CategorizationRule {
	c := &r.Conditions
	c.DescriptionContains = clonePtr(c.DescriptionContains)
	c.DescriptionRegex = clonePtr(c.DescriptionRegex)
	c.PayeeID = clonePtr(c.PayeeID)
	c.AccountID = clonePtr(c.AccountID)
	c.Type = clonePtr(c.Type)
	c.AmountMin = clonePtr(c.AmountMin)
	c.AmountMax = clonePtr(c.AmountMax)
	r.Actions.SetCategoryID = clonePtr(r.Actions.SetCategoryID)
	r.Actions.RenamePayeeID = clonePtr(r.Actions.RenamePayeeID)
	return r
}

func cloneImport(h model.ImportHistory) model.ImportHistory {
	h.Original = slices.Clone(h.Original)
	h.CompletedAt = clonePtr(h.CompletedAt)
	return h
}

func cloneImportRow(r model.ImportedTransaction) model.ImportedTransaction {
	r.TransactionID = clonePtr(r.TransactionID)
	r.DuplicateOfID = clonePtr(r.DuplicateOfID)
	return r
}
