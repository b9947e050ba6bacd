// Package dedup flags incoming statement rows that plausibly repeat
// transactions already in the ledger.
package dedup

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/cleared-dev/ledgerd/internal/ledger"
	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/textmatch"
)

// Config holds the scoring weights and acceptance threshold. The weights
// are expected to sum to 1.
type Config struct {
	WindowDays        int
	DateWeight        float64
	AmountWeight      float64
	DescriptionWeight float64
	Threshold         float64
}

// DefaultConfig returns the stock tuning: a 2 day window, 0.3/0.4/0.3
// weights and a 0.7 threshold.
func DefaultConfig() Config {
	return Config{
		WindowDays:        2,
		DateWeight:        0.3,
		AmountWeight:      0.4,
		DescriptionWeight: 0.3,
		Threshold:         0.7,
	}
}

// Reason says why a candidate was reported.
type Reason string

const (
	ReasonFITID Reason = "fitid"
	ReasonScore Reason = "score"
)

// Candidate is an existing transaction that a row may duplicate.
type Candidate struct {
	ExistingID int64
	Confidence float64
	Reason     Reason
}

// Source is the read access the detector needs. *store.Tx satisfies it.
type Source interface {
	TransactionsInRange(userID, accountID int64, from, to time.Time) []model.Transaction
	TransactionByExternalID(userID, accountID int64, externalID string) (model.Transaction, bool)
}

// Detector scores rows against a Source.
type Detector struct {
	cfg Config
}

// New creates a Detector.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Config returns the detector's tuning.
func (d *Detector) Config() Config { return d.cfg }

// Find returns, for each row, its duplicate candidates ordered by confidence
// descending then ID.
func (d *Detector) Find(ctx context.Context, src Source, userID, accountID int64, rows []model.Row) ([][]Candidate, error) {
	out := make([][]Candidate, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = d.Candidates(src, userID, accountID, row)
	}
	return out, nil
}

// Candidates checks one row. A matching institution ID is authoritative
// and skips scoring.
func (d *Detector) Candidates(src Source, userID, accountID int64, row model.Row) []Candidate {
	if row.ExternalID != "" {
		if txn, ok := src.TransactionByExternalID(userID, accountID, row.ExternalID); ok {
			return []Candidate{{ExistingID: txn.ID, Confidence: 1, Reason: ReasonFITID}}
		}
	}

	window := time.Duration(d.cfg.WindowDays) * 24 * time.Hour
	day := ledger.Day(row.Date)

	var out []Candidate
	for _, txn := range src.TransactionsInRange(userID, accountID, day.Add(-window), day.Add(window)) {
		score, ok := d.score(row, txn)
		if !ok || score <= d.cfg.Threshold {
			continue
		}
		out = append(out, Candidate{ExistingID: txn.ID, Confidence: score, Reason: ReasonScore})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ExistingID < out[j].ExistingID
	})
	return out
}

// Score returns the weighted duplicate score of row against txn, or 0 when
// the pair fails the date-window and exact-amount prefilter.
func (d *Detector) Score(row model.Row, txn model.Transaction) float64 {
	s, _ := d.score(row, txn)
	return s
}

func (d *Detector) score(row model.Row, txn model.Transaction) (float64, bool) {
	if !row.Amount.Abs().Equal(txn.Amount.Abs()) {
		return 0, false
	}
	days := math.Abs(ledger.Day(row.Date).Sub(ledger.Day(txn.Date)).Hours() / 24)
	if days > float64(d.cfg.WindowDays) {
		return 0, false
	}

	proximity := 1.0
	if d.cfg.WindowDays > 0 {
		proximity = 1 - days/float64(d.cfg.WindowDays)
	}
	sim := textmatch.Similarity(textmatch.Fold(row.Text()), textmatch.Fold(txn.Description))

	score := d.cfg.DateWeight*proximity + d.cfg.AmountWeight + d.cfg.DescriptionWeight*sim
	return math.Min(1, score), true
}
