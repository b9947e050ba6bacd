// Package rules applies a user's categorization rules to transactions.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/store"
	"github.com/cleared-dev/ledgerd/internal/textmatch"
)

type compiledRule struct {
	rule model.CategorizationRule
	re   *regexp.Regexp
}

// Engine evaluates rules in priority order (highest first, then by ID).
type Engine struct {
	rules []compiledRule
}

// NewEngine compiles rules. A regex that does not compile rejects the whole
// set.
func NewEngine(rules []model.CategorizationRule) (*Engine, error) {
	sorted := make([]model.CategorizationRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})

	e := &Engine{rules: make([]compiledRule, 0, len(sorted))}
	for _, r := range sorted {
		c := compiledRule{rule: r}
		if p := r.Conditions.DescriptionRegex; p != nil {
			re, err := regexp.Compile("(?i)" + *p)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): %w", r.ID, r.Name,
					&model.ValidationError{Field: "rule regex", Reason: err.Error()})
			}
			c.re = re
		}
		e.rules = append(e.rules, c)
	}
	return e, nil
}

// Load builds an engine over the user's stored rules.
func Load(tx *store.Tx, userID int64) (*Engine, error) {
	return NewEngine(tx.Rules(userID))
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []model.CategorizationRule {
	out := make([]model.CategorizationRule, len(e.rules))
	for i, c := range e.rules {
		out[i] = c.rule
	}
	return out
}

func (c compiledRule) matches(txn model.Transaction) bool {
	cond := c.rule.Conditions
	if cond.DescriptionContains != nil &&
		!strings.Contains(textmatch.Fold(txn.Description), textmatch.Fold(*cond.DescriptionContains)) {
		return false
	}
	if c.re != nil && !c.re.MatchString(txn.Description) {
		return false
	}
	if cond.PayeeID != nil && (txn.PayeeID == nil || *txn.PayeeID != *cond.PayeeID) {
		return false
	}
	if cond.AccountID != nil && txn.AccountID != *cond.AccountID {
		return false
	}
	if cond.Type != nil && txn.Type != *cond.Type {
		return false
	}
	amt := txn.Amount.Abs()
	if cond.AmountMin != nil && amt.LessThan(*cond.AmountMin) {
		return false
	}
	if cond.AmountMax != nil && amt.GreaterThan(*cond.AmountMax) {
		return false
	}
	return true
}

// Match returns the first rule whose conditions all hold for txn.
func (e *Engine) Match(txn model.Transaction) (model.CategorizationRule, bool) {
	for _, c := range e.rules {
		if c.matches(txn) {
			return c.rule, true
		}
	}
	return model.CategorizationRule{}, false
}

// Apply runs the first matching rule's actions on txn and returns that rule.
func (e *Engine) Apply(txn *model.Transaction) (model.CategorizationRule, bool) {
	r, ok := e.Match(*txn)
	if !ok {
		return model.CategorizationRule{}, false
	}
	a := r.Actions
	if a.SetCategoryID != nil {
		id := *a.SetCategoryID
		txn.CategoryID = &id
	}
	if a.RenamePayeeID != nil {
		id := *a.RenamePayeeID
		txn.PayeeID = &id
	}
	if a.AppendNotes != "" {
		if txn.Notes == "" {
			txn.Notes = a.AppendNotes
		} else {
			txn.Notes += "; " + a.AppendNotes
		}
	}
	return r, true
}

// RecordMatch increments a rule's match count.
func RecordMatch(tx *store.Tx, userID, ruleID int64) error {
	r, err := tx.Rule(userID, ruleID)
	if err != nil {
		return err
	}
	r.MatchCount++
	return tx.UpdateRule(r)
}
