// Package ingest runs statement imports end to end: parse, duplicate
// detection, payee resolution, categorization, commit and audit. An import
// is also the unit of rollback.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/ledgerd/internal/auditlog"
	"github.com/cleared-dev/ledgerd/internal/dedup"
	"github.com/cleared-dev/ledgerd/internal/importer"
	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/payee"
	"github.com/cleared-dev/ledgerd/internal/store"
	"github.com/cleared-dev/ledgerd/internal/suggest"
)

var (
	// ErrAlreadyRolledBack is returned when rolling back an import twice.
	ErrAlreadyRolledBack = errors.New("import already rolled back")
	// ErrNotRetained is returned when reprocessing an import whose original
	// file was not kept.
	ErrNotRetained = errors.New("original file not retained")
	// ErrNotPending is returned when cancelling an import that already ran.
	ErrNotPending = errors.New("import is not pending")
)

// Options control one import.
type Options struct {
	// RetainOriginal keeps the uploaded bytes so the import can be
	// reprocessed.
	RetainOriginal bool
	// SkipDuplicates records flagged rows as duplicates instead of importing
	// them with the duplicate noted on the row link.
	SkipDuplicates bool
	// LearnPayees creates a payee and a contains pattern from the payee
	// field of rows that resolve to nothing.
	LearnPayees bool
}

// Deps are the collaborators of a Service. Store is required; the rest
// fall back to defaults.
type Deps struct {
	Store     *store.Store
	Registry  *importer.Registry
	Detector  *dedup.Detector
	Resolver  *payee.Resolver
	Suggester *suggest.Engine
	Icons     payee.IconSource
	Audit     auditlog.Sink
	Log       zerolog.Logger
	Now       func() time.Time
}

// Service orchestrates imports for every user of a store.
type Service struct {
	store     *store.Store
	registry  *importer.Registry
	detector  *dedup.Detector
	resolver  *payee.Resolver
	suggester *suggest.Engine
	icons     payee.IconSource
	audit     auditlog.Sink
	log       zerolog.Logger
	now       func() time.Time
	defaults  Options
}

// NewService wires a Service. defaults apply to requests that carry no
// Options of their own.
func NewService(d Deps, defaults Options) (*Service, error) {
	if d.Store == nil {
		return nil, errors.New("ingest: store is required")
	}
	s := &Service{
		store:     d.Store,
		registry:  d.Registry,
		detector:  d.Detector,
		resolver:  d.Resolver,
		suggester: d.Suggester,
		icons:     d.Icons,
		audit:     d.Audit,
		log:       d.Log,
		now:       d.Now,
		defaults:  defaults,
	}
	if s.registry == nil {
		s.registry = importer.DefaultRegistry()
	}
	if s.detector == nil {
		s.detector = dedup.New(dedup.DefaultConfig())
	}
	if s.resolver == nil {
		s.resolver = payee.NewResolver(d.Store, payee.DefaultConfig(), d.Log, payee.WithIcons(d.Icons))
	}
	if s.suggester == nil {
		eng, err := suggest.LoadEmbedded()
		if err != nil {
			return nil, err
		}
		s.suggester = eng
	}
	if s.audit == nil {
		s.audit = auditlog.Discard
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Imports returns the user's import history, oldest first.
func (s *Service) Imports(ctx context.Context, userID int64) ([]model.ImportHistory, error) {
	var out []model.ImportHistory
	err := s.store.View(ctx, func(tx *store.Tx) error {
		out = tx.Imports(userID)
		return nil
	})
	return out, err
}

// Rows returns the row links of one import in source order.
func (s *Service) Rows(ctx context.Context, userID, importID int64) ([]model.ImportedTransaction, error) {
	var out []model.ImportedTransaction
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ImportRows(userID, importID)
		return err
	})
	return out, err
}

// Lookup finds an import by reference ("imp-20250601-001") or numeric ID.
func (s *Service) Lookup(ctx context.Context, userID int64, key string) (model.ImportHistory, error) {
	key = strings.TrimSpace(key)
	var out model.ImportHistory
	err := s.store.View(ctx, func(tx *store.Tx) error {
		if h, ok := tx.ImportByRef(userID, key); ok {
			out = h
			return nil
		}
		n, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("import %q: %w", key, model.ErrNotFound)
		}
		out, err = tx.Import(userID, n)
		return err
	})
	return out, err
}

// FindDuplicates reports, per row, the existing transactions in the account
// that the row probably duplicates.
func (s *Service) FindDuplicates(ctx context.Context, userID, accountID int64, rows []model.Row) ([][]dedup.Candidate, error) {
	var out [][]dedup.Candidate
	err := s.store.View(ctx, func(tx *store.Tx) error {
		if !tx.AccountExists(userID, accountID) {
			return model.NotFound("account", accountID)
		}
		var err error
		out, err = s.detector.Find(ctx, tx, userID, accountID, rows)
		return err
	})
	return out, err
}

func (s *Service) writeAudit(entries []auditlog.Entry) {
	if err := s.audit.Append(entries); err != nil {
		s.log.Warn().Err(err).Int("entries", len(entries)).Msg("writing import audit log")
	}
}
