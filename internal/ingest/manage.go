package ingest

import (
	"context"
	"fmt"

	"github.com/cleared-dev/ledgerd/internal/auditlog"
	"github.com/cleared-dev/ledgerd/internal/importer"
	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/store"
)

// Rollback deletes every transaction the import created and marks it rolled
// back. Row links stay for the audit trail with their transaction cleared.
// Returns the number of transactions removed.
func (s *Service) Rollback(ctx context.Context, userID, importID int64) (int, error) {
	var (
		h       model.ImportHistory
		removed []model.ImportedTransaction
	)
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		h, err = tx.Import(userID, importID)
		if err != nil {
			return err
		}
		if h.RolledBack {
			return fmt.Errorf("import %s: %w", h.Reference, ErrAlreadyRolledBack)
		}
		rows, err := tx.ImportRows(userID, importID)
		if err != nil {
			return err
		}
		removed = removed[:0]
		for _, r := range rows {
			if r.TransactionID == nil {
				continue
			}
			if err := tx.DeleteTransaction(userID, *r.TransactionID); err != nil {
				return err
			}
			removed = append(removed, r)
		}
		h.RolledBack = true
		return tx.UpdateImport(h)
	})
	if err != nil {
		return 0, err
	}

	entries := make([]auditlog.Entry, 0, len(removed)+1)
	for _, r := range removed {
		entries = append(entries, s.entry(h, auditlog.EventRolledBack, r.RowIndex, *r.TransactionID, "transaction deleted"))
	}
	entries = append(entries, s.entry(h, auditlog.EventRolledBack, -1, 0,
		fmt.Sprintf("%d transactions deleted", len(removed))))
	s.writeAudit(entries)

	s.log.Info().Str("import", h.Reference).Int("deleted", len(removed)).Msg("import rolled back")
	return len(removed), nil
}

// Reprocess runs a retained original file again as a new import into the
// same account. mapping is needed for generic CSV files.
func (s *Service) Reprocess(ctx context.Context, userID, importID int64, mapping *importer.ColumnMapping) (*Result, error) {
	var h model.ImportHistory
	err := s.store.View(ctx, func(tx *store.Tx) error {
		var err error
		h, err = tx.Import(userID, importID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if h.Original == nil {
		return nil, fmt.Errorf("import %s: %w", h.Reference, ErrNotRetained)
	}
	opts := s.defaults
	opts.RetainOriginal = true
	return s.Import(ctx, Request{
		UserID:    userID,
		AccountID: h.AccountID,
		Filename:  h.Filename,
		Format:    h.Format,
		Data:      h.Original,
		Mapping:   mapping,
		Options:   &opts,
	})
}

// Cancel moves a pending import to cancelled.
func (s *Service) Cancel(ctx context.Context, userID, importID int64) error {
	return s.store.Update(ctx, func(tx *store.Tx) error {
		h, err := tx.Import(userID, importID)
		if err != nil {
			return err
		}
		if h.Status != model.ImportPending {
			return fmt.Errorf("import %s is %s: %w", h.Reference, h.Status, ErrNotPending)
		}
		now := s.now().UTC()
		h.Status = model.ImportCancelled
		h.CompletedAt = &now
		return tx.UpdateImport(h)
	})
}

// Delete removes an import record and its row links. Transactions it
// created are kept.
func (s *Service) Delete(ctx context.Context, userID, importID int64) error {
	return s.store.Update(ctx, func(tx *store.Tx) error {
		return tx.DeleteImport(userID, importID)
	})
}
