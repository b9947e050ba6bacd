// Package payee resolves raw statement text to canonical payees and learns
// matching patterns from user feedback.
package payee

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/store"
)

// Config tunes feedback steps and fuzzy matching.
type Config struct {
	AcceptStep        float64
	RejectStep        float64
	FuzzyFloor        float64
	LearnedConfidence float64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		AcceptStep:        0.05,
		RejectStep:        0.10,
		FuzzyFloor:        0.6,
		LearnedConfidence: 0.5,
	}
}

// IconSource builds icon URLs for merchant domains.
type IconSource interface {
	IconURL(ctx context.Context, domain string) (string, error)
}

// Resolver maps descriptions to payees through an ordered matcher list.
type Resolver struct {
	store    *store.Store
	cfg      Config
	matchers []Matcher
	icons    IconSource
	log      zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMatchers replaces the default matcher order.
func WithMatchers(m ...Matcher) Option {
	return func(r *Resolver) { r.matchers = m }
}

// WithIcons sets where payee icon URLs come from.
func WithIcons(src IconSource) Option {
	return func(r *Resolver) { r.icons = src }
}

// NewResolver creates a Resolver. The default order is exact name, then
// text patterns, then fuzzy bases.
func NewResolver(st *store.Store, cfg Config, log zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{store: st, cfg: cfg, log: log}
	r.matchers = []Matcher{
		ExactMatcher{},
		TextPatternMatcher{Log: log},
		FuzzyMatcher{Floor: cfg.FuzzyFloor},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Library loads the user's payees and patterns from tx.
func (r *Resolver) Library(tx *store.Tx, userID int64) *Library {
	return NewLibrary(tx.Payees(userID), tx.Patterns(userID))
}

// Match runs the matchers over lib and returns the first hit. An unresolved
// description is a normal (Match{}, false) result.
func (r *Resolver) Match(lib *Library, description string) (Match, bool) {
	if strings.TrimSpace(description) == "" {
		return Match{}, false
	}
	for _, m := range r.matchers {
		if mt, ok := m.Match(description, lib); ok {
			return mt, true
		}
	}
	return Match{}, false
}

// Resolve looks description up against the user's committed payees.
func (r *Resolver) Resolve(ctx context.Context, userID int64, description string) (Match, bool, error) {
	var (
		mt Match
		ok bool
	)
	err := r.store.View(ctx, func(tx *store.Tx) error {
		mt, ok = r.Match(r.Library(tx, userID), description)
		return nil
	})
	if err != nil {
		return Match{}, false, err
	}
	return mt, ok, nil
}

// RecordMatch notes that the caller used m: the pattern's match count goes
// up and its last-matched time moves to at.
func (r *Resolver) RecordMatch(tx *store.Tx, userID int64, m Match, at time.Time) error {
	if m.Pattern == nil {
		return nil
	}
	p, err := tx.Pattern(userID, m.Pattern.ID)
	if err != nil {
		return err
	}
	p.MatchCount++
	p.LastMatchedAt = &at
	return tx.UpdatePattern(p)
}

// Touch records one more transaction assigned to the payee.
func (r *Resolver) Touch(tx *store.Tx, userID, payeeID int64, at time.Time) error {
	p, err := tx.Payee(userID, payeeID)
	if err != nil {
		return err
	}
	p.TransactionCount++
	if p.LastUsedAt == nil || at.After(*p.LastUsedAt) {
		p.LastUsedAt = &at
	}
	return tx.UpdatePayee(p)
}

// adjust moves confidence by one feedback step, clamped to [0,1].
func (r *Resolver) adjust(conf float64, accepted bool) float64 {
	if accepted {
		conf += r.cfg.AcceptStep
	} else {
		conf -= r.cfg.RejectStep
	}
	return min(1, max(0, conf))
}

// RecordFeedback applies a user's confirmation or rejection of a suggested
// match. A pattern driven to zero stays in place as a pruning candidate.
func (r *Resolver) RecordFeedback(ctx context.Context, userID, patternID int64, accepted bool) (model.PayeeMatchingPattern, error) {
	var out model.PayeeMatchingPattern
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		p, err := tx.Pattern(userID, patternID)
		if err != nil {
			return err
		}
		p.Confidence = r.adjust(p.Confidence, accepted)
		if err := tx.UpdatePattern(p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return model.PayeeMatchingPattern{}, fmt.Errorf("recording feedback on pattern %d: %w", patternID, err)
	}
	r.log.Debug().Int64("pattern_id", patternID).Bool("accepted", accepted).
		Float64("confidence", out.Confidence).Msg("pattern feedback")
	return out, nil
}

// Learn creates a pattern for the payee, or reinforces it as accepted if the
// same (payee, type, value) already exists.
func (r *Resolver) Learn(ctx context.Context, userID, payeeID int64, typ model.PatternType, value string, source model.PatternSource) (model.PayeeMatchingPattern, error) {
	var out model.PayeeMatchingPattern
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		out, err = r.LearnIn(tx, userID, payeeID, typ, value, source)
		return err
	})
	return out, err
}

// LearnIn is Learn inside an existing store transaction.
func (r *Resolver) LearnIn(tx *store.Tx, userID, payeeID int64, typ model.PatternType, value string, source model.PatternSource) (model.PayeeMatchingPattern, error) {
	if _, err := tx.Payee(userID, payeeID); err != nil {
		return model.PayeeMatchingPattern{}, err
	}
	value = strings.TrimSpace(value)
	if p, ok := tx.FindPattern(payeeID, typ, value); ok {
		p.Confidence = r.adjust(p.Confidence, true)
		return p, tx.UpdatePattern(p)
	}
	return tx.CreatePattern(model.PayeeMatchingPattern{
		UserID:     userID,
		PayeeID:    payeeID,
		Type:       typ,
		Value:      value,
		Confidence: r.cfg.LearnedConfidence,
		Source:     source,
	})
}

// EnsurePayee returns the user's payee with this canonical name, creating
// it if needed. domain, when known, sets the icon of a new payee.
func (r *Resolver) EnsurePayee(ctx context.Context, userID int64, name, domain string) (model.Payee, error) {
	icon := r.iconURL(ctx, domain)
	var out model.Payee
	err := r.store.Update(ctx, func(tx *store.Tx) error {
		var err error
		out, err = EnsurePayeeIn(tx, userID, name, icon)
		return err
	})
	return out, err
}

// EnsurePayeeIn is EnsurePayee inside an existing store transaction.
func EnsurePayeeIn(tx *store.Tx, userID int64, name, iconURL string) (model.Payee, error) {
	if p, ok := tx.PayeeByName(userID, name); ok {
		return p, nil
	}
	return tx.CreatePayee(model.Payee{UserID: userID, CanonicalName: strings.TrimSpace(name), IconURL: iconURL})
}

func (r *Resolver) iconURL(ctx context.Context, domain string) string {
	if r.icons == nil || domain == "" {
		return ""
	}
	url, err := r.icons.IconURL(ctx, domain)
	if err != nil {
		r.log.Warn().Err(err).Str("domain", domain).Msg("payee icon lookup failed")
		return ""
	}
	return url
}

// PruneCandidates lists the user's patterns whose confidence has reached
// zero. Nothing is deleted.
func (r *Resolver) PruneCandidates(ctx context.Context, userID int64) ([]model.PayeeMatchingPattern, error) {
	var out []model.PayeeMatchingPattern
	err := r.store.View(ctx, func(tx *store.Tx) error {
		for _, p := range tx.Patterns(userID) {
			if p.Confidence <= 0 {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}
