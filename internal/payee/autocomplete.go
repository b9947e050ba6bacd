package payee

import (
	"context"
	"sort"
	"strings"

	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/store"
	"github.com/cleared-dev/ledgerd/internal/textmatch"
)

const (
	rankExact = iota
	rankPrefix
	rankContains
	rankNone
)

func rank(name, query string) int {
	switch {
	case name == query:
		return rankExact
	case strings.HasPrefix(name, query):
		return rankPrefix
	case strings.Contains(name, query):
		return rankContains
	}
	return rankNone
}

// Autocomplete returns payees whose name contains query, ordered exact
// match first, then prefix, then substring, then by transaction count and
// most recent use. limit <= 0 returns every match.
func (r *Resolver) Autocomplete(ctx context.Context, userID int64, query string, limit int) ([]model.Payee, error) {
	var payees []model.Payee
	if err := r.store.View(ctx, func(tx *store.Tx) error {
		payees = tx.Payees(userID)
		return nil
	}); err != nil {
		return nil, err
	}
	return RankPayees(payees, query, limit), nil
}

// RankPayees applies the autocomplete ordering to payees.
func RankPayees(payees []model.Payee, query string, limit int) []model.Payee {
	q := textmatch.Fold(query)

	type ranked struct {
		p    model.Payee
		rank int
		name string
	}
	var hits []ranked
	for _, p := range payees {
		name := textmatch.Fold(p.CanonicalName)
		if rk := rank(name, q); rk != rankNone {
			hits = append(hits, ranked{p, rk, name})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.p.TransactionCount != b.p.TransactionCount {
			return a.p.TransactionCount > b.p.TransactionCount
		}
		switch {
		case a.p.LastUsedAt != nil && b.p.LastUsedAt == nil:
			return true
		case a.p.LastUsedAt == nil && b.p.LastUsedAt != nil:
			return false
		case a.p.LastUsedAt != nil && !a.p.LastUsedAt.Equal(*b.p.LastUsedAt):
			return a.p.LastUsedAt.After(*b.p.LastUsedAt)
		}
		return a.name < b.name
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]model.Payee, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out
}
