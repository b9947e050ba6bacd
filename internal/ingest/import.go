package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cleared-dev/ledgerd/internal/auditlog"
	"github.com/cleared-dev/ledgerd/internal/id"
	"github.com/cleared-dev/ledgerd/internal/importer"
	"github.com/cleared-dev/ledgerd/internal/ledger"
	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/payee"
	"github.com/cleared-dev/ledgerd/internal/rules"
	"github.com/cleared-dev/ledgerd/internal/store"
)

// Request is one uploaded statement file.
type Request struct {
	UserID    int64
	AccountID int64
	Filename  string
	// Format names the parser; guessed from Filename when empty.
	Format  string
	Data    []byte
	Mapping *importer.ColumnMapping
	// Options overrides the service defaults when set.
	Options *Options
}

// Result is a finished import: the history record with its counters and
// one link per source row.
type Result struct {
	Import model.ImportHistory
	Rows   []model.ImportedTransaction
}

// item is one source row in file order, either parsed or rejected.
type item struct {
	line   int
	row    model.Row
	rowErr *importer.RowError
}

// Import parses req.Data and commits every accepted row in one store
// update. Row errors and duplicates are per-row outcomes; only a file that
// cannot be parsed or a failed commit fails the import.
func (s *Service) Import(ctx context.Context, req Request) (*Result, error) {
	opts := s.defaults
	if req.Options != nil {
		opts = *req.Options
	}
	format := req.Format
	if format == "" {
		format = importer.FormatForFile(req.Filename)
	}

	h, err := s.begin(ctx, req, format, opts)
	if err != nil {
		return nil, err
	}
	log := s.log.With().Str("import", h.Reference).Int64("account_id", h.AccountID).Logger()
	log.Info().Str("file", h.Filename).Str("format", format).Msg("import started")
	s.writeAudit([]auditlog.Entry{s.entry(h, auditlog.EventUploaded, -1, 0,
		fmt.Sprintf("%s (%s, %d bytes)", h.Filename, format, len(req.Data)))})

	parsed, err := s.registry.Parse(req.Data, format, req.Mapping)
	if err != nil {
		s.fail(ctx, h, err)
		return nil, fmt.Errorf("import %s: %w", h.Reference, err)
	}
	s.writeAudit([]auditlog.Entry{s.entry(h, auditlog.EventParsed, -1, 0,
		fmt.Sprintf("%d rows, %d rejected", len(parsed.Rows), len(parsed.RowErrors)))})

	var (
		result Result
		events []auditlog.Entry
	)
	err = s.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		result, events, err = s.commit(ctx, tx, h, parsed, opts)
		return err
	})
	if err != nil {
		s.fail(ctx, h, err)
		return nil, fmt.Errorf("import %s: %w", h.Reference, err)
	}

	for _, e := range events {
		switch e.Event {
		case auditlog.EventRowDuplicate, auditlog.EventRowError:
			log.Debug().Int("row", e.RowIndex).Str("event", string(e.Event)).Msg(e.Details)
		}
	}
	done := result.Import
	events = append(events, s.entry(done, auditlog.EventCompleted, -1, 0,
		fmt.Sprintf("imported=%d duplicates=%d errors=%d", done.ImportedCount, done.DuplicateCount, done.ErrorCount)))
	s.writeAudit(events)

	log.Info().
		Int("total", done.TotalRows).
		Int("imported", done.ImportedCount).
		Int("duplicates", done.DuplicateCount).
		Int("errors", done.ErrorCount).
		Msg("import completed")
	return &result, nil
}

// begin records the pending import in its own commit so a failed batch
// still leaves a history entry behind.
func (s *Service) begin(ctx context.Context, req Request, format string, opts Options) (model.ImportHistory, error) {
	now := s.now().UTC()
	var h model.ImportHistory
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		if !tx.AccountExists(req.UserID, req.AccountID) {
			return model.NotFound("account", req.AccountID)
		}
		rec := model.ImportHistory{
			UserID:    req.UserID,
			AccountID: req.AccountID,
			Reference: id.FormatImportRef(now, tx.NextImportSeq(req.UserID, now)),
			SessionID: id.NewSessionID(),
			Filename:  req.Filename,
			Format:    format,
			Status:    model.ImportPending,
			CreatedAt: now,
		}
		if opts.RetainOriginal {
			rec.Original = append([]byte(nil), req.Data...)
		}
		var err error
		h, err = tx.CreateImport(rec)
		return err
	})
	return h, err
}

// fail marks the import failed. The failure itself is already being
// returned to the caller, so problems here are only logged.
func (s *Service) fail(ctx context.Context, h model.ImportHistory, cause error) {
	s.log.Error().Err(cause).Str("import", h.Reference).Msg("import failed")
	s.writeAudit([]auditlog.Entry{s.entry(h, auditlog.EventFailed, -1, 0, cause.Error())})

	// the request context may be the reason for the failure
	ctx = context.WithoutCancel(ctx)
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		cur, err := tx.Import(h.UserID, h.ID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		cur.Status = model.ImportFailed
		cur.ErrorMessage = cause.Error()
		cur.CompletedAt = &now
		return tx.UpdateImport(cur)
	})
	if err != nil {
		s.log.Warn().Err(err).Str("import", h.Reference).Msg("marking import failed")
	}
}

func (s *Service) commit(ctx context.Context, tx *store.Tx, h model.ImportHistory, parsed *importer.Result, opts Options) (Result, []auditlog.Entry, error) {
	items := make([]item, 0, len(parsed.Rows)+len(parsed.RowErrors))
	for _, r := range parsed.Rows {
		items = append(items, item{line: r.Line, row: r})
	}
	for i := range parsed.RowErrors {
		re := parsed.RowErrors[i]
		items = append(items, item{line: re.Line, row: model.Row{Line: re.Line}, rowErr: &re})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].line < items[j].line })

	lib := s.resolver.Library(tx, h.UserID)
	engine, err := rules.Load(tx, h.UserID)
	if err != nil {
		return Result{}, nil, err
	}

	now := s.now().UTC()
	var (
		links  []model.ImportedTransaction
		events []auditlog.Entry
	)
	for idx, it := range items {
		if err := ctx.Err(); err != nil {
			return Result{}, nil, err
		}
		link := model.ImportedTransaction{ImportID: h.ID, RowIndex: idx, Row: it.row}

		switch {
		case it.rowErr != nil:
			link.Status = model.RowError
			link.Message = it.rowErr.Error()
			h.ErrorCount++
			events = append(events, s.entry(h, auditlog.EventRowError, idx, 0, link.Message))

		default:
			cands := s.detector.Candidates(tx, h.UserID, h.AccountID, it.row)
			if len(cands) > 0 {
				best := cands[0]
				link.DuplicateOfID = &best.ExistingID
				link.Confidence = best.Confidence
				if opts.SkipDuplicates {
					link.Status = model.RowDuplicate
					link.Message = fmt.Sprintf("duplicate of transaction %d (%s %.2f)", best.ExistingID, best.Reason, best.Confidence)
					h.DuplicateCount++
					events = append(events, s.entry(h, auditlog.EventRowDuplicate, idx, best.ExistingID, link.Message))
					break
				}
			}

			txn, learned, err := s.buildTransaction(tx, lib, engine, h, it.row, opts, now)
			if err != nil {
				return Result{}, nil, err
			}
			if learned {
				lib = s.resolver.Library(tx, h.UserID)
			}
			created, err := tx.CreateTransaction(txn)
			var violations ledger.Violations
			if errors.As(err, &violations) {
				link.Status = model.RowError
				link.Message = violations.Error()
				h.ErrorCount++
				events = append(events, s.entry(h, auditlog.EventRowError, idx, 0, link.Message))
				break
			}
			if err != nil {
				return Result{}, nil, err
			}
			if created.PayeeID != nil {
				if err := s.resolver.Touch(tx, h.UserID, *created.PayeeID, now); err != nil {
					return Result{}, nil, err
				}
			}
			link.Status = model.RowImported
			link.TransactionID = &created.ID
			h.ImportedCount++
			details := fmt.Sprintf("%s %s %s", created.Type, created.Amount.StringFixed(2), created.Description)
			if link.DuplicateOfID != nil {
				details += fmt.Sprintf(" (possible duplicate of %d)", *link.DuplicateOfID)
			}
			events = append(events, s.entry(h, auditlog.EventRowImported, idx, created.ID, details))
		}

		saved, err := tx.AddImportRow(h.UserID, link)
		if err != nil {
			return Result{}, nil, err
		}
		links = append(links, saved)
	}

	h.TotalRows = max(parsed.TotalRows, len(items))
	h.Status = model.ImportCompleted
	h.CompletedAt = &now
	if err := tx.UpdateImport(h); err != nil {
		return Result{}, nil, err
	}
	return Result{Import: h, Rows: links}, events, nil
}

// buildTransaction turns a row into a transaction: payee resolution with
// usage recording, optional payee learning, then the first matching rule.
// learned reports whether a new payee or pattern was created.
func (s *Service) buildTransaction(tx *store.Tx, lib *payee.Library, engine *rules.Engine, h model.ImportHistory, row model.Row, opts Options, now time.Time) (txn model.Transaction, learned bool, err error) {
	txn = model.Transaction{
		UserID:       h.UserID,
		AccountID:    h.AccountID,
		Date:         ledger.Day(row.Date),
		DisplayOrder: tx.MaxDisplayOrder(h.UserID, h.AccountID, row.Date) + 1,
		Type:         row.Type,
		Amount:       row.Amount,
		Description:  row.Text(),
		ImportID:     &h.ID,
	}
	if row.ExternalID != "" {
		txn.Metadata = map[string]string{model.MetaFITID: row.ExternalID}
	}

	m, ok := s.resolver.Match(lib, row.Text())
	if !ok && row.Payee != "" && row.Payee != row.Text() {
		m, ok = s.resolver.Match(lib, row.Payee)
	}
	switch {
	case ok:
		txn.PayeeID = &m.Payee.ID
		if err := s.resolver.RecordMatch(tx, h.UserID, m, now); err != nil {
			return txn, false, err
		}
	case opts.LearnPayees && row.Payee != "":
		p, err := payee.EnsurePayeeIn(tx, h.UserID, row.Payee, "")
		if err != nil {
			return txn, false, err
		}
		if _, err := s.resolver.LearnIn(tx, h.UserID, p.ID, model.PatternContains, row.Payee, model.SourceImportLearning); err != nil {
			return txn, false, err
		}
		txn.PayeeID = &p.ID
		learned = true
	}

	if r, ok := engine.Apply(&txn); ok {
		if err := rules.RecordMatch(tx, h.UserID, r.ID); err != nil {
			return txn, learned, err
		}
	}
	return txn, learned, nil
}

func (s *Service) entry(h model.ImportHistory, ev auditlog.Event, row int, txnID int64, details string) auditlog.Entry {
	return auditlog.Entry{
		Timestamp:     s.now().UTC(),
		ImportRef:     h.Reference,
		Event:         ev,
		RowIndex:      row,
		TransactionID: txnID,
		Details:       details,
	}
}
