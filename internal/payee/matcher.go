package payee

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/textmatch"
)

// Strategy names the matcher that produced a Match.
type Strategy string

const (
	StrategyExact   Strategy = "exact"
	StrategyPattern Strategy = "pattern"
	StrategyFuzzy   Strategy = "fuzzy"
)

// Match is a resolved payee. Pattern is nil when the description equalled a
// canonical name outright.
type Match struct {
	Payee      model.Payee
	Pattern    *model.PayeeMatchingPattern
	Strategy   Strategy
	Confidence float64
}

// Library is one user's payees and patterns, loaded once and shared by the
// matchers for a run of lookups.
type Library struct {
	Payees   []model.Payee
	Patterns []model.PayeeMatchingPattern
	byID     map[int64]model.Payee
	regexes  map[int64]compiledRegex
}

type compiledRegex struct {
	re  *regexp.Regexp
	err error
}

// NewLibrary indexes payees and patterns for matching. Regex patterns are
// compiled here, once per library.
func NewLibrary(payees []model.Payee, patterns []model.PayeeMatchingPattern) *Library {
	lib := &Library{
		Payees:   payees,
		Patterns: patterns,
		byID:     make(map[int64]model.Payee, len(payees)),
		regexes:  make(map[int64]compiledRegex),
	}
	for _, p := range payees {
		lib.byID[p.ID] = p
	}
	for _, p := range patterns {
		if p.Type != model.PatternRegex {
			continue
		}
		re, err := regexp.Compile("(?i)" + p.Value)
		lib.regexes[p.ID] = compiledRegex{re: re, err: err}
	}
	return lib
}

// regex returns the compiled form of a description_regex pattern.
func (l *Library) regex(p model.PayeeMatchingPattern) (*regexp.Regexp, error) {
	c, ok := l.regexes[p.ID]
	if !ok {
		return nil, fmt.Errorf("pattern %d is not a compiled regex", p.ID)
	}
	return c.re, c.err
}

// patterns returns live patterns of the given types by confidence
// descending, then ID. Zero-confidence patterns are pruning candidates and
// never match.
func (l *Library) patterns(types ...model.PatternType) []model.PayeeMatchingPattern {
	var out []model.PayeeMatchingPattern
	for _, p := range l.Patterns {
		if p.Confidence <= 0 {
			continue
		}
		for _, t := range types {
			if p.Type == t {
				out = append(out, p)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *Library) match(p model.PayeeMatchingPattern, s Strategy, conf float64) (Match, bool) {
	payee, ok := l.byID[p.PayeeID]
	if !ok {
		return Match{}, false
	}
	pat := p
	return Match{Payee: payee, Pattern: &pat, Strategy: s, Confidence: conf}, true
}

// Matcher is one resolution strategy. The resolver runs its matchers in
// order and stops at the first hit.
type Matcher interface {
	Name() Strategy
	Match(description string, lib *Library) (Match, bool)
}

// ExactMatcher matches folded descriptions equal to a canonical payee name or
// to an exact_match pattern.
type ExactMatcher struct{}

func (ExactMatcher) Name() Strategy { return StrategyExact }

func (ExactMatcher) Match(description string, lib *Library) (Match, bool) {
	key := textmatch.Fold(description)
	if key == "" {
		return Match{}, false
	}
	best := -1
	for i, p := range lib.Payees {
		if textmatch.Fold(p.CanonicalName) == key && (best < 0 || p.ID < lib.Payees[best].ID) {
			best = i
		}
	}
	if best >= 0 {
		return Match{Payee: lib.Payees[best], Strategy: StrategyExact, Confidence: 1}, true
	}
	for _, p := range lib.patterns(model.PatternExact) {
		if textmatch.Fold(p.Value) == key {
			return lib.match(p, StrategyExact, p.Confidence)
		}
	}
	return Match{}, false
}

// TextPatternMatcher evaluates description_contains and description_regex
// patterns case-insensitively, highest confidence first.
type TextPatternMatcher struct {
	Log zerolog.Logger
}

func (TextPatternMatcher) Name() Strategy { return StrategyPattern }

func (m TextPatternMatcher) Match(description string, lib *Library) (Match, bool) {
	folded := textmatch.Fold(description)
	for _, p := range lib.patterns(model.PatternContains, model.PatternRegex) {
		switch p.Type {
		case model.PatternContains:
			needle := textmatch.Fold(p.Value)
			if needle != "" && strings.Contains(folded, needle) {
				return lib.match(p, StrategyPattern, p.Confidence)
			}
		case model.PatternRegex:
			re, err := lib.regex(p)
			if err != nil {
				m.Log.Warn().Err(err).Int64("pattern_id", p.ID).Msg("skipping invalid payee regex")
				continue
			}
			if re.MatchString(description) {
				return lib.match(p, StrategyPattern, p.Confidence)
			}
		}
	}
	return Match{}, false
}

// FuzzyMatcher compares descriptions to fuzzy_match_base values by edit
// distance. A pattern matches when similarity exceeds
// max(Floor, 1-(1-Floor)*confidence), so low-confidence bases demand a
// closer match and a zero-confidence base never matches.
type FuzzyMatcher struct {
	Floor float64
}

func (FuzzyMatcher) Name() Strategy { return StrategyFuzzy }

// Threshold returns the similarity a pattern of confidence conf must beat.
func (m FuzzyMatcher) Threshold(conf float64) float64 {
	return max(m.Floor, 1-(1-m.Floor)*conf)
}

func (m FuzzyMatcher) Match(description string, lib *Library) (Match, bool) {
	var (
		best    Match
		bestSim float64
		found   bool
	)
	for _, p := range lib.patterns(model.PatternFuzzyBase) {
		sim := textmatch.WindowSimilarity(description, p.Value)
		if sim <= m.Threshold(p.Confidence) || sim <= bestSim {
			continue
		}
		if mt, ok := lib.match(p, StrategyFuzzy, sim); ok {
			best, bestSim, found = mt, sim, true
		}
	}
	return best, found
}
