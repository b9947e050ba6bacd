package accounts

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgerd/internal/ledger"
	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/store"
)

// Service manages a user's accounts and categories in the store.
type Service struct {
	store *store.Store
}

// NewService creates a Service.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Create adds an account. openingDate may be nil.
func (s *Service) Create(ctx context.Context, userID int64, name string, opening decimal.Decimal, openingDate *time.Time) (model.Account, error) {
	acct := model.Account{UserID: userID, Name: strings.TrimSpace(name), OpeningBalance: opening}
	if openingDate != nil {
		d := ledger.Day(*openingDate)
		acct.OpeningBalanceDate = &d
	}
	var out model.Account
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		if err := checkUniqueName(tx, userID, acct.Name); err != nil {
			return err
		}
		var err error
		out, err = tx.CreateAccount(acct)
		return err
	})
	return out, err
}

// All returns the user's accounts ordered by ID.
func (s *Service) All(ctx context.Context, userID int64) ([]model.Account, error) {
	var out []model.Account
	err := s.store.View(ctx, func(tx *store.Tx) error {
		out = tx.Accounts(userID)
		return nil
	})
	return out, err
}

// Get returns an account by ID.
func (s *Service) Get(ctx context.Context, userID, id int64) (model.Account, error) {
	var out model.Account
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.Account(userID, id)
		return err
	})
	return out, err
}

// Find returns an account by ID or, failing that, by case-insensitive name.
func (s *Service) Find(ctx context.Context, userID int64, key string) (model.Account, error) {
	key = strings.TrimSpace(key)
	var out model.Account
	err := s.store.View(ctx, func(tx *store.Tx) error {
		for _, a := range tx.Accounts(userID) {
			if strconv.FormatInt(a.ID, 10) == key || strings.EqualFold(a.Name, key) {
				out = a
				return nil
			}
		}
		return fmt.Errorf("account %q: %w", key, model.ErrNotFound)
	})
	return out, err
}

// Delete removes an account with its transactions and imports.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	return s.store.Update(ctx, func(tx *store.Tx) error {
		return tx.DeleteAccount(userID, id)
	})
}

// Load creates every account in an accounts CSV in one commit. IDs in the
// file are ignored; names must not clash with existing accounts.
func (s *Service) Load(ctx context.Context, userID int64, r io.Reader) ([]model.Account, error) {
	accts, err := ReadAccounts(r)
	if err != nil {
		return nil, err
	}
	var out []model.Account
	err = s.store.Update(ctx, func(tx *store.Tx) error {
		for _, a := range accts {
			if err := checkUniqueName(tx, userID, a.Name); err != nil {
				return err
			}
			a.ID = 0
			a.UserID = userID
			created, err := tx.CreateAccount(a)
			if err != nil {
				return err
			}
			out = append(out, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadFile is Load over a file on disk.
func (s *Service) LoadFile(ctx context.Context, userID int64, path string) ([]model.Account, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening accounts file: %w", err)
	}
	defer f.Close()
	return s.Load(ctx, userID, f)
}

// Export writes the user's accounts as CSV.
func (s *Service) Export(ctx context.Context, userID int64, w io.Writer) error {
	accts, err := s.All(ctx, userID)
	if err != nil {
		return err
	}
	return WriteAccounts(w, accts)
}

// SeedDefaults creates the starter accounts and categories for a user that
// has none yet. It reports whether anything was created.
func (s *Service) SeedDefaults(ctx context.Context, userID int64) (bool, error) {
	seeded := false
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		if len(tx.Accounts(userID)) == 0 {
			for _, a := range DefaultAccounts() {
				a.UserID = userID
				if _, err := tx.CreateAccount(a); err != nil {
					return err
				}
			}
			seeded = true
		}
		if len(tx.Categories(userID)) == 0 {
			for _, name := range DefaultCategories() {
				if _, err := tx.CreateCategory(model.Category{UserID: userID, Name: name}); err != nil {
					return err
				}
			}
			seeded = true
		}
		return nil
	})
	return seeded, err
}

func checkUniqueName(tx *store.Tx, userID int64, name string) error {
	for _, a := range tx.Accounts(userID) {
		if strings.EqualFold(a.Name, name) {
			return fmt.Errorf("account %q: %w", name, model.ErrConflict)
		}
	}
	return nil
}
