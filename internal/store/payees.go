package store

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/textmatch"
)

// CreatePayee stores a payee. Canonical names are unique per user after
// case and diacritic folding.
func (tx *Tx) CreatePayee(p model.Payee) (model.Payee, error) {
	if err := tx.writable(); err != nil {
		return model.Payee{}, err
	}
	if strings.TrimSpace(p.CanonicalName) == "" {
		return model.Payee{}, &model.ValidationError{Field: "payee name", Reason: "must not be empty"}
	}
	if _, ok := tx.PayeeByName(p.UserID, p.CanonicalName); ok {
		return model.Payee{}, fmt.Errorf("payee %q: %w", p.CanonicalName, model.ErrConflict)
	}
	p.ID = tx.a.allocID()
	p = clonePayee(p)
	tx.a.payees[p.ID] = p
	return clonePayee(p), nil
}

// Payee returns one of the user's payees.
func (tx *Tx) Payee(userID, id int64) (model.Payee, error) {
	p, ok := tx.a.payees[id]
	if !ok || p.UserID != userID {
		return model.Payee{}, model.NotFound("payee", id)
	}
	return clonePayee(p), nil
}

// PayeeByName looks a payee up by folded canonical name.
func (tx *Tx) PayeeByName(userID int64, name string) (model.Payee, bool) {
	key := textmatch.Fold(name)
	for _, p := range tx.a.payees {
		if p.UserID == userID && textmatch.Fold(p.CanonicalName) == key {
			return clonePayee(p), true
		}
	}
	return model.Payee{}, false
}

// Payees returns the user's payees ordered by ID.
func (tx *Tx) Payees(userID int64) []model.Payee {
	var out []model.Payee
	for _, p := range tx.a.payees {
		if p.UserID == userID {
			out = append(out, clonePayee(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdatePayee replaces a stored payee.
func (tx *Tx) UpdatePayee(p model.Payee) error {
	if err := tx.writable(); err != nil {
		return err
	}
	old, ok := tx.a.payees[p.ID]
	if !ok || old.UserID != p.UserID {
		return model.NotFound("payee", p.ID)
	}
	if other, ok := tx.PayeeByName(p.UserID, p.CanonicalName); ok && other.ID != p.ID {
		return fmt.Errorf("payee %q: %w", p.CanonicalName, model.ErrConflict)
	}
	tx.a.payees[p.ID] = clonePayee(p)
	return nil
}

// DeletePayee removes a payee and its patterns, and clears every
// transaction and rule reference to it.
func (tx *Tx) DeletePayee(userID, id int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	p, ok := tx.a.payees[id]
	if !ok || p.UserID != userID {
		return model.NotFound("payee", id)
	}
	tx.deletePayee(id)
	return nil
}

func (tx *Tx) deletePayee(id int64) {
	for pid, pat := range tx.a.patterns {
		if pat.PayeeID == id {
			delete(tx.a.patterns, pid)
		}
	}
	for tid, t := range tx.a.transactions {
		if t.PayeeID != nil && *t.PayeeID == id {
			t.PayeeID = nil
			tx.a.transactions[tid] = t
		}
	}
	for rid, r := range tx.a.rules {
		changed := false
		if r.Conditions.PayeeID != nil && *r.Conditions.PayeeID == id {
			r.Conditions.PayeeID = nil
			changed = true
		}
		if r.Actions.RenamePayeeID != nil && *r.Actions.RenamePayeeID == id {
			r.Actions.RenamePayeeID = nil
			changed = true
		}
		if changed {
			tx.a.rules[rid] = r
		}
	}
	delete(tx.a.payees, id)
}

func validatePattern(p model.PayeeMatchingPattern) error {
	if !p.Type.Valid() {
		return &model.ValidationError{Field: "pattern type", Reason: fmt.Sprintf("unknown type %q", p.Type)}
	}
	if strings.TrimSpace(p.Value) == "" {
		return &model.ValidationError{Field: "pattern value", Reason: "must not be empty"}
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return &model.ValidationError{Field: "pattern confidence", Reason: fmt.Sprintf("%v outside [0,1]", p.Confidence)}
	}
	if p.Type == model.PatternRegex {
		if _, err := regexp.Compile("(?i)" + p.Value); err != nil {
			return &model.ValidationError{Field: "pattern regex", Reason: err.Error()}
		}
	}
	return nil
}

// CreatePattern stores a matching pattern for one of the user's payees.
// (PayeeID, Type, Value) is unique, with Value compared case-insensitively.
func (tx *Tx) CreatePattern(p model.PayeeMatchingPattern) (model.PayeeMatchingPattern, error) {
	if err := tx.writable(); err != nil {
		return model.PayeeMatchingPattern{}, err
	}
	if err := validatePattern(p); err != nil {
		return model.PayeeMatchingPattern{}, err
	}
	if _, err := tx.Payee(p.UserID, p.PayeeID); err != nil {
		return model.PayeeMatchingPattern{}, err
	}
	if _, ok := tx.FindPattern(p.PayeeID, p.Type, p.Value); ok {
		return model.PayeeMatchingPattern{}, fmt.Errorf("pattern %s %q: %w", p.Type, p.Value, model.ErrConflict)
	}
	p.ID = tx.a.allocID()
	p = clonePattern(p)
	tx.a.patterns[p.ID] = p
	return clonePattern(p), nil
}

// Pattern returns one of the user's patterns.
func (tx *Tx) Pattern(userID, id int64) (model.PayeeMatchingPattern, error) {
	p, ok := tx.a.patterns[id]
	if !ok || p.UserID != userID {
		return model.PayeeMatchingPattern{}, model.NotFound("pattern", id)
	}
	return clonePattern(p), nil
}

// FindPattern looks a pattern up by its unique triple.
func (tx *Tx) FindPattern(payeeID int64, typ model.PatternType, value string) (model.PayeeMatchingPattern, bool) {
	for _, p := range tx.a.patterns {
		if p.PayeeID == payeeID && p.Type == typ && strings.EqualFold(p.Value, value) {
			return clonePattern(p), true
		}
	}
	return model.PayeeMatchingPattern{}, false
}

// Patterns returns all of the user's patterns ordered by ID.
func (tx *Tx) Patterns(userID int64) []model.PayeeMatchingPattern {
	var out []model.PayeeMatchingPattern
	for _, p := range tx.a.patterns {
		if p.UserID == userID {
			out = append(out, clonePattern(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PayeePatterns returns the patterns owned by one payee ordered by ID.
func (tx *Tx) PayeePatterns(userID, payeeID int64) []model.PayeeMatchingPattern {
	var out []model.PayeeMatchingPattern
	for _, p := range tx.Patterns(userID) {
		if p.PayeeID == payeeID {
			out = append(out, p)
		}
	}
	return out
}

// UpdatePattern replaces a stored pattern after revalidating it.
func (tx *Tx) UpdatePattern(p model.PayeeMatchingPattern) error {
	if err := tx.writable(); err != nil {
		return err
	}
	old, ok := tx.a.patterns[p.ID]
	if !ok || old.UserID != p.UserID {
		return model.NotFound("pattern", p.ID)
	}
	if err := validatePattern(p); err != nil {
		return err
	}
	if other, ok := tx.FindPattern(p.PayeeID, p.Type, p.Value); ok && other.ID != p.ID {
		return fmt.Errorf("pattern %s %q: %w", p.Type, p.Value, model.ErrConflict)
	}
	tx.a.patterns[p.ID] = clonePattern(p)
	return nil
}

// DeletePattern removes a pattern.
func (tx *Tx) DeletePattern(userID, id int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	p, ok := tx.a.patterns[id]
	if !ok || p.UserID != userID {
		return model.NotFound("pattern", id)
	}
	delete(tx.a.patterns, id)
	return nil
}

// CreateCategory stores a category.
func (tx *Tx) CreateCategory(c model.Category) (model.Category, error) {
	if err := tx.writable(); err != nil {
		return model.Category{}, err
	}
	if strings.TrimSpace(c.Name) == "" {
		return model.Category{}, &model.ValidationError{Field: "category name", Reason: "must not be empty"}
	}
	c.ID = tx.a.allocID()
	tx.a.categories[c.ID] = c
	return c, nil
}

// Category returns one of the user's categories.
func (tx *Tx) Category(userID, id int64) (model.Category, error) {
	c, ok := tx.a.categories[id]
	if !ok || c.UserID != userID {
		return model.Category{}, model.NotFound("category", id)
	}
	return c, nil
}

// Categories returns the user's categories ordered by ID.
func (tx *Tx) Categories(userID int64) []model.Category {
	var out []model.Category
	for _, c := range tx.a.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteCategory removes a category and clears transaction and rule
// references to it.
func (tx *Tx) DeleteCategory(userID, id int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if _, err := tx.Category(userID, id); err != nil {
		return err
	}
	tx.deleteCategory(id)
	return nil
}

func (tx *Tx) deleteCategory(id int64) {
	for tid, t := range tx.a.transactions {
		if t.CategoryID != nil && *t.CategoryID == id {
			t.CategoryID = nil
			tx.a.transactions[tid] = t
		}
	}
	for rid, r := range tx.a.rules {
		if r.Actions.SetCategoryID != nil && *r.Actions.SetCategoryID == id {
			r.Actions.SetCategoryID = nil
			tx.a.rules[rid] = r
		}
	}
	delete(tx.a.categories, id)
}
