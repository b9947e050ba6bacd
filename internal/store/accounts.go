package store

import (
	"sort"

	"github.com/cleared-dev/ledgerd/internal/model"
)

// CreateAccount stores a new account and returns it with its ID assigned.
func (tx *Tx) CreateAccount(a model.Account) (model.Account, error) {
	if err := tx.writable(); err != nil {
		return model.Account{}, err
	}
	if a.Name == "" {
		return model.Account{}, &model.ValidationError{Field: "account name", Reason: "must not be empty"}
	}
	a.ID = tx.a.allocID()
	a = cloneAccount(a)
	tx.a.accounts[a.ID] = a
	return cloneAccount(a), nil
}

// Account returns one of the user's accounts.
func (tx *Tx) Account(userID, id int64) (model.Account, error) {
	a, ok := tx.a.accounts[id]
	if !ok || a.UserID != userID {
		return model.Account{}, model.NotFound("account", id)
	}
	return cloneAccount(a), nil
}

// AccountExists reports whether the user owns account id.
func (tx *Tx) AccountExists(userID, id int64) bool {
	a, ok := tx.a.accounts[id]
	return ok && a.UserID == userID
}

// Accounts returns the user's accounts ordered by ID.
func (tx *Tx) Accounts(userID int64) []model.Account {
	var out []model.Account
	for _, a := range tx.a.accounts {
		if a.UserID == userID {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateAccount replaces a stored account.
func (tx *Tx) UpdateAccount(a model.Account) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if !tx.AccountExists(a.UserID, a.ID) {
		return model.NotFound("account", a.ID)
	}
	tx.a.accounts[a.ID] = cloneAccount(a)
	return nil
}

// DeleteAccount removes an account together with the transactions it owns,
// transfers that target it, and its imports.
func (tx *Tx) DeleteAccount(userID, id int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if !tx.AccountExists(userID, id) {
		return model.NotFound("account", id)
	}

	for tid, t := range tx.a.transactions {
		if t.UserID == userID && t.Touches(id) {
			tx.deleteTransaction(tid)
		}
	}
	for iid, h := range tx.a.imports {
		if h.UserID == userID && h.AccountID == id {
			tx.deleteImport(iid)
		}
	}
	delete(tx.a.accounts, id)
	return nil
}

// DeleteUser removes every entity the user owns.
func (tx *Tx) DeleteUser(userID int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	for id, a := range tx.a.accounts {
		if a.UserID == userID {
			if err := tx.DeleteAccount(userID, id); err != nil {
				return err
			}
		}
	}
	for id, p := range tx.a.payees {
		if p.UserID == userID {
			tx.deletePayee(id)
		}
	}
	for id, c := range tx.a.categories {
		if c.UserID == userID {
			tx.deleteCategory(id)
		}
	}
	for id, r := range tx.a.rules {
		if r.UserID == userID {
			delete(tx.a.rules, id)
		}
	}
	return nil
}
