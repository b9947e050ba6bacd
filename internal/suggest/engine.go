// Package suggest proposes categorization rules from the rows of one import.
//
// Rows are first claimed by curated known merchants; whatever is left is
// grouped by recurring description tokens. Suggestions are read-only: nothing
// is written until a caller accepts one.
package suggest

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/cleared-dev/ledgerd/internal/textmatch"
)

// Source records which stage produced a suggestion.
type Source string

const (
	SourceKnownMerchant Source = "known_merchant"
	SourcePattern       Source = "pattern"
)

const (
	maxSamples       = 3
	maxGenericConf   = 0.95
	baseMerchantConf = 0.90
)

// Input is the text of one import row.
type Input struct {
	Description string
	Payee       string
}

// Text returns the description, falling back to the payee.
func (in Input) Text() string {
	if in.Description != "" {
		return in.Description
	}
	return in.Payee
}

// Suggestion is a proposed rule covering a set of rows.
type Suggestion struct {
	Name               string
	PayeePattern       string
	MatchType          MatchType
	MatchingRowIndices []int
	SampleDescriptions []string
	Confidence         float64
	Source             Source
	CategoryHint       string
	Domain             string
}

// Engine holds the known-merchant table.
type Engine struct {
	merchants []Merchant
}

// NewEngine builds an engine over merchants, matched in the given order.
func NewEngine(merchants []Merchant) *Engine {
	ms := make([]Merchant, len(merchants))
	copy(ms, merchants)
	for i := range ms {
		ms[i].folded = textmatch.Fold(ms[i].Pattern)
	}
	return &Engine{merchants: ms}
}

// LoadEmbedded builds an engine over the bundled merchant table.
func LoadEmbedded() (*Engine, error) {
	ms, err := LoadMerchants(embeddedMerchants)
	if err != nil {
		return nil, fmt.Errorf("loading embedded merchants: %w", err)
	}
	return NewEngine(ms), nil
}

// Merchants returns a copy of the merchant table.
func (e *Engine) Merchants() []Merchant {
	out := make([]Merchant, len(e.merchants))
	copy(out, e.merchants)
	return out
}

// Suggest groups rows into rule suggestions. Every group, known merchant or
// generic, needs minOccurrences rows; rows of an undersized merchant group
// stay available for generic grouping. Suggestions below minConfidence are
// dropped.
func (e *Engine) Suggest(rows []Input, minOccurrences int, minConfidence float64) []Suggestion {
	if minOccurrences < 1 {
		minOccurrences = 1
	}

	folded := make([]string, len(rows))
	for i, r := range rows {
		folded[i] = textmatch.Fold(r.Text())
	}

	claimed := make([]bool, len(rows))
	var out []Suggestion
	merchantPatterns := make(map[string]bool)

	for _, m := range e.merchants {
		var idx []int
		for i, f := range folded {
			if claimed[i] || f == "" {
				continue
			}
			if m.matches(f) {
				idx = append(idx, i)
			}
		}
		if len(idx) < minOccurrences {
			continue
		}
		for _, i := range idx {
			claimed[i] = true
		}
		out = append(out, Suggestion{
			Name:               m.Name,
			PayeePattern:       m.Pattern,
			MatchType:          m.MatchType,
			MatchingRowIndices: idx,
			SampleDescriptions: samples(rows, idx),
			Confidence:         baseMerchantConf + 0.01*float64(min(len(idx)-1, 9)),
			Source:             SourceKnownMerchant,
			CategoryHint:       m.Category,
			Domain:             m.Domain,
		})
		merchantPatterns[textmatch.Fold(m.Pattern)] = true
	}

	for _, g := range groupGeneric(folded, claimed, minOccurrences) {
		if merchantPatterns[textmatch.Fold(g.pattern)] {
			continue
		}
		out = append(out, Suggestion{
			Name:               displayName(g.tokens),
			PayeePattern:       strings.ToUpper(g.pattern),
			MatchType:          MatchContains,
			MatchingRowIndices: g.rows,
			SampleDescriptions: samples(rows, g.rows),
			Confidence:         genericConfidence(folded, g, minOccurrences),
			Source:             SourcePattern,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if len(a.MatchingRowIndices) != len(b.MatchingRowIndices) {
			return len(a.MatchingRowIndices) > len(b.MatchingRowIndices)
		}
		return a.Name < b.Name
	})

	kept := out[:0]
	for _, s := range out {
		if s.Confidence >= minConfidence {
			kept = append(kept, s)
		}
	}
	return kept
}

type group struct {
	tokens  []string
	pattern string
	rows    []int
}

// groupGeneric buckets unclaimed rows by their first two meaningful tokens,
// then gives rows from undersized buckets a second chance on the first token
// alone.
func groupGeneric(folded []string, claimed []bool, minOcc int) []group {
	sigTokens := make([][]string, len(folded))
	var order2 []string
	by2 := make(map[string][]int)
	var leftovers []int

	for i, f := range folded {
		if claimed[i] {
			continue
		}
		toks := meaningful(f)
		if len(toks) == 0 {
			continue
		}
		sigTokens[i] = toks
		if len(toks) < 2 {
			leftovers = append(leftovers, i)
			continue
		}
		key := toks[0] + " " + toks[1]
		if _, ok := by2[key]; !ok {
			order2 = append(order2, key)
		}
		by2[key] = append(by2[key], i)
	}

	var groups []group
	for _, key := range order2 {
		idx := by2[key]
		if len(idx) < minOcc {
			leftovers = append(leftovers, idx...)
			continue
		}
		groups = append(groups, newGroup(folded, sigTokens[idx[0]][:2], idx))
	}

	sort.Ints(leftovers)
	var order1 []string
	by1 := make(map[string][]int)
	for _, i := range leftovers {
		key := sigTokens[i][0]
		if _, ok := by1[key]; !ok {
			order1 = append(order1, key)
		}
		by1[key] = append(by1[key], i)
	}
	for _, key := range order1 {
		if idx := by1[key]; len(idx) >= minOcc {
			groups = append(groups, newGroup(folded, []string{key}, idx))
		}
	}
	return groups
}

// newGroup picks the pattern for a group: the joined signature when every
// row contains it verbatim, else the first token, which every row has.
func newGroup(folded []string, tokens []string, rows []int) group {
	pattern := strings.Join(tokens, " ")
	for _, i := range rows {
		if !strings.Contains(folded[i], pattern) {
			pattern = tokens[0]
			tokens = tokens[:1]
			break
		}
	}
	return group{tokens: tokens, pattern: pattern, rows: rows}
}

func genericConfidence(folded []string, g group, minOcc int) float64 {
	size := float64(len(g.rows))
	conf := 0.5*min(1, size/float64(2*minOcc)) +
		0.2*min(1, float64(len(g.pattern))/10) +
		0.3*cohesion(folded, g.rows)
	return min(conf, maxGenericConf)
}

// cohesion is the mean similarity of each row to the group's first row.
func cohesion(folded []string, rows []int) float64 {
	if len(rows) == 0 {
		return 0
	}
	first := folded[rows[0]]
	var sum float64
	for _, i := range rows {
		sum += textmatch.Similarity(first, folded[i])
	}
	return sum / float64(len(rows))
}

var noiseTokens = map[string]bool{
	"pos": true, "purchase": true, "debit": true, "credit": true, "card": true,
	"visa": true, "mc": true, "mastercard": true, "amex": true, "ach": true,
	"payment": true, "pmt": true, "recurring": true, "online": true, "www": true,
	"inc": true, "llc": true, "ltd": true, "co": true, "corp": true, "the": true,
	"sq": true, "tst": true, "pp": true, "checkcard": true, "dbt": true,
	"crd": true, "ref": true, "txn": true, "trans": true, "transaction": true,
	"withdrawal": true, "deposit": true, "autopay": true, "bill": true,
	"store": true, "us": true, "usa": true, "id": true, "ppd": true, "web": true,
}

// meaningful returns the tokens of a folded description that are not
// boilerplate, numbers or reference codes.
func meaningful(folded string) []string {
	var out []string
	for _, t := range textmatch.Tokens(folded) {
		if len(t) < 2 || noiseTokens[t] || hasDigit(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// displayName title-cases the signature, dropping a token that only extends
// the one before it ("anthropic anthropic.com" -> "Anthropic").
func displayName(tokens []string) string {
	var words []string
	for i, t := range tokens {
		if i > 0 && strings.HasPrefix(t, tokens[i-1]) {
			continue
		}
		r := []rune(t)
		r[0] = unicode.ToUpper(r[0])
		words = append(words, string(r))
	}
	return strings.Join(words, " ")
}

func samples(rows []Input, idx []int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, i := range idx {
		text := strings.TrimSpace(rows[i].Text())
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, text)
		if len(out) == maxSamples {
			break
		}
	}
	return out
}
