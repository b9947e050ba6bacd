package store

import (
	"regexp"
	"sort"
	"strings"

	"github.com/cleared-dev/ledgerd/internal/model"
)

func validateRule(r model.CategorizationRule) error {
	if strings.TrimSpace(r.Name) == "" {
		return &model.ValidationError{Field: "rule name", Reason: "must not be empty"}
	}
	if re := r.Conditions.DescriptionRegex; re != nil {
		if _, err := regexp.Compile("(?i)" + *re); err != nil {
			return &model.ValidationError{Field: "rule regex", Reason: err.Error()}
		}
	}
	if t := r.Conditions.Type; t != nil && !t.Valid() {
		return &model.ValidationError{Field: "rule type", Reason: "unknown transaction type " + string(*t)}
	}
	c := r.Conditions
	if c.AmountMin != nil && c.AmountMax != nil && c.AmountMin.GreaterThan(*c.AmountMax) {
		return &model.ValidationError{Field: "rule amount range", Reason: "min exceeds max"}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return &model.ValidationError{Field: "rule confidence", Reason: "outside [0,1]"}
	}
	return nil
}

func (tx *Tx) checkRuleRefs(r model.CategorizationRule) error {
	for _, pid := range []*int64{r.Conditions.PayeeID, r.Actions.RenamePayeeID} {
		if pid != nil {
			if _, err := tx.Payee(r.UserID, *pid); err != nil {
				return err
			}
		}
	}
	if aid := r.Conditions.AccountID; aid != nil && !tx.AccountExists(r.UserID, *aid) {
		return model.NotFound("account", *aid)
	}
	if cid := r.Actions.SetCategoryID; cid != nil {
		if _, err := tx.Category(r.UserID, *cid); err != nil {
			return err
		}
	}
	return nil
}

// CreateRule validates and stores a categorization rule.
func (tx *Tx) CreateRule(r model.CategorizationRule) (model.CategorizationRule, error) {
	if err := tx.writable(); err != nil {
		return model.CategorizationRule{}, err
	}
	if err := validateRule(r); err != nil {
		return model.CategorizationRule{}, err
	}
	if err := tx.checkRuleRefs(r); err != nil {
		return model.CategorizationRule{}, err
	}
	r.ID = tx.a.allocID()
	r = cloneRule(r)
	tx.a.rules[r.ID] = r
	return cloneRule(r), nil
}

// Rule returns one of the user's rules.
func (tx *Tx) Rule(userID, id int64) (model.CategorizationRule, error) {
	r, ok := tx.a.rules[id]
	if !ok || r.UserID != userID {
		return model.CategorizationRule{}, model.NotFound("rule", id)
	}
	return cloneRule(r), nil
}

// Rules returns the user's rules by priority descending, then ID.
func (tx *Tx) Rules(userID int64) []model.CategorizationRule {
	var out []model.CategorizationRule
	for _, r := range tx.a.rules {
		if r.UserID == userID {
			out = append(out, cloneRule(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// UpdateRule replaces a stored rule after revalidating it.
func (tx *Tx) UpdateRule(r model.CategorizationRule) error {
	if err := tx.writable(); err != nil {
		return err
	}
	old, ok := tx.a.rules[r.ID]
	if !ok || old.UserID != r.UserID {
		return model.NotFound("rule", r.ID)
	}
	if err := validateRule(r); err != nil {
		return err
	}
	if err := tx.checkRuleRefs(r); err != nil {
		return err
	}
	tx.a.rules[r.ID] = cloneRule(r)
	return nil
}

// DeleteRule removes a rule.
func (tx *Tx) DeleteRule(userID, id int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if _, err := tx.Rule(userID, id); err != nil {
		return err
	}
	delete(tx.a.rules, id)
	return nil
}
