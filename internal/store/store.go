// Package store is the arena-style entity store behind the ledger core.
//
// Every entity lives in one arena owned by the Store. Ownership is explicit:
// a user owns everything, an account owns its transactions and imports, a
// payee owns its patterns, an import owns its row links. Deletion never
// relies on foreign-key side effects; each Delete method runs its cascade and
// SET NULL steps itself before removing the entity.
//
// Writes go through Update, which works on a private copy of the arena and
// publishes it only when the callback succeeds, so a batch either commits as
// a whole or not at all. Reads go through View and always see the last
// committed arena.
package store

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/cleared-dev/ledgerd/internal/model"
)

// ErrReadOnly is returned by mutating Tx methods inside View.
var ErrReadOnly = errors.New("store: write in read-only view")

// Store holds the committed arena.
type Store struct {
	mu        sync.Mutex // serializes writers
	snapMu    sync.RWMutex
	committed *arena
}

// New creates an empty Store.
func New() *Store {
	return &Store{committed: newArena()}
}

// View runs fn against the committed snapshot. Concurrent Views are safe and
// never observe a half-applied Update.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.snapMu.RLock()
	snap := s.committed
	s.snapMu.RUnlock()
	return fn(&Tx{a: snap, readOnly: true})
}

// Update runs fn against a private copy of the arena and commits it only if
// fn returns nil and ctx is still live.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapMu.RLock()
	work := s.committed.clone()
	s.snapMu.RUnlock()

	if err := fn(&Tx{a: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.snapMu.Lock()
	s.committed = work
	s.snapMu.Unlock()
	return nil
}

type arena struct {
	nextID       int64
	accounts     map[int64]model.Account
	categories   map[int64]model.Category
	transactions map[int64]model.Transaction
	payees       map[int64]model.Payee
	patterns     map[int64]model.PayeeMatchingPattern
	rules        map[int64]model.CategorizationRule
	imports      map[int64]model.ImportHistory
	importRows   map[int64]model.ImportedTransaction
}

func newArena() *arena {
	return &arena{
		nextID:       1,
		accounts:     make(map[int64]model.Account),
		categories:   make(map[int64]model.Category),
		transactions: make(map[int64]model.Transaction),
		payees:       make(map[int64]model.Payee),
		patterns:     make(map[int64]model.PayeeMatchingPattern),
		rules:        make(map[int64]model.CategorizationRule),
		imports:      make(map[int64]model.ImportHistory),
		importRows:   make(map[int64]model.ImportedTransaction),
	}
}

// clone copies the maps. Records are values whose pointer and map fields are
// never mutated in place, so a shallow copy is a full snapshot.
func (a *arena) clone() *arena {
	return &arena{
		nextID:       a.nextID,
		accounts:     maps.Clone(a.accounts),
		categories:   maps.Clone(a.categories),
		transactions: maps.Clone(a.transactions),
		payees:       maps.Clone(a.payees),
		patterns:     maps.Clone(a.patterns),
		rules:        maps.Clone(a.rules),
		imports:      maps.Clone(a.imports),
		importRows:   maps.Clone(a.importRows),
	}
}

func (a *arena) allocID() int64 {
	id := a.nextID
	a.nextID++
	return id
}

// Tx is a handle on one arena for the duration of a View or Update callback.
// It must not be retained after the callback returns.
type Tx struct {
	a        *arena
	readOnly bool
}

func (tx *Tx) writable() error {
	if tx.readOnly {
		return ErrReadOnly
	}
	return nil
}
