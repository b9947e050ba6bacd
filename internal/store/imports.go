package store

import (
	"sort"
	"strings"
	"time"

	"github.com/cleared-dev/ledgerd/internal/id"
	"github.com/cleared-dev/ledgerd/internal/model"
)

// CreateImport stores a new import session for one of the user's accounts.
func (tx *Tx) CreateImport(h model.ImportHistory) (model.ImportHistory, error) {
	if err := tx.writable(); err != nil {
		return model.ImportHistory{}, err
	}
	if !tx.AccountExists(h.UserID, h.AccountID) {
		return model.ImportHistory{}, model.NotFound("account", h.AccountID)
	}
	if h.Status == "" {
		h.Status = model.ImportPending
	}
	h.ID = tx.a.allocID()
	h = cloneImport(h)
	tx.a.imports[h.ID] = h
	return cloneImport(h), nil
}

// Import returns one of the user's imports.
func (tx *Tx) Import(userID, importID int64) (model.ImportHistory, error) {
	h, ok := tx.a.imports[importID]
	if !ok || h.UserID != userID {
		return model.ImportHistory{}, model.NotFound("import", importID)
	}
	return cloneImport(h), nil
}

// ImportByRef looks an import up by its human-facing reference.
func (tx *Tx) ImportByRef(userID int64, ref string) (model.ImportHistory, bool) {
	for _, h := range tx.a.imports {
		if h.UserID == userID && h.Reference == ref {
			return cloneImport(h), true
		}
	}
	return model.ImportHistory{}, false
}

// Imports returns the user's imports, oldest first.
func (tx *Tx) Imports(userID int64) []model.ImportHistory {
	var out []model.ImportHistory
	for _, h := range tx.a.imports {
		if h.UserID == userID {
			out = append(out, cloneImport(h))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NextImportSeq returns the next free reference sequence for day.
func (tx *Tx) NextImportSeq(userID int64, day time.Time) int {
	prefix := id.RefPrefix(day)
	highest := 0
	for _, h := range tx.a.imports {
		if h.UserID != userID || !strings.HasPrefix(h.Reference, prefix) {
			continue
		}
		if _, seq, err := id.ParseImportRef(h.Reference); err == nil && seq > highest {
			highest = seq
		}
	}
	return highest + 1
}

// UpdateImport replaces a stored import.
func (tx *Tx) UpdateImport(h model.ImportHistory) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if _, err := tx.Import(h.UserID, h.ID); err != nil {
		return err
	}
	tx.a.imports[h.ID] = cloneImport(h)
	return nil
}

// DeleteImport removes an import and its row links. Transactions it created
// are kept, with their import reference cleared.
func (tx *Tx) DeleteImport(userID, importID int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if _, err := tx.Import(userID, importID); err != nil {
		return err
	}
	tx.deleteImport(importID)
	return nil
}

func (tx *Tx) deleteImport(importID int64) {
	for rid, r := range tx.a.importRows {
		if r.ImportID == importID {
			delete(tx.a.importRows, rid)
		}
	}
	for tid, t := range tx.a.transactions {
		if t.ImportID != nil && *t.ImportID == importID {
			t.ImportID = nil
			tx.a.transactions[tid] = t
		}
	}
	delete(tx.a.imports, importID)
}

// AddImportRow records the outcome of one source row.
func (tx *Tx) AddImportRow(userID int64, r model.ImportedTransaction) (model.ImportedTransaction, error) {
	if err := tx.writable(); err != nil {
		return model.ImportedTransaction{}, err
	}
	if _, err := tx.Import(userID, r.ImportID); err != nil {
		return model.ImportedTransaction{}, err
	}
	if r.TransactionID != nil {
		if _, err := tx.Transaction(userID, *r.TransactionID); err != nil {
			return model.ImportedTransaction{}, err
		}
	}
	r.ID = tx.a.allocID()
	r = cloneImportRow(r)
	tx.a.importRows[r.ID] = r
	return cloneImportRow(r), nil
}

// ImportRows returns an import's row links ordered by source row index.
func (tx *Tx) ImportRows(userID, importID int64) ([]model.ImportedTransaction, error) {
	if _, err := tx.Import(userID, importID); err != nil {
		return nil, err
	}
	var out []model.ImportedTransaction
	for _, r := range tx.a.importRows {
		if r.ImportID == importID {
			out = append(out, cloneImportRow(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RowIndex != out[j].RowIndex {
			return out[i].RowIndex < out[j].RowIndex
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateImportRow replaces a stored row link.
func (tx *Tx) UpdateImportRow(userID int64, r model.ImportedTransaction) error {
	if err := tx.writable(); err != nil {
		return err
	}
	old, ok := tx.a.importRows[r.ID]
	if !ok {
		return model.NotFound("import row", r.ID)
	}
	if _, err := tx.Import(userID, old.ImportID); err != nil {
		return err
	}
	r.ImportID = old.ImportID
	tx.a.importRows[r.ID] = cloneImportRow(r)
	return nil
}
