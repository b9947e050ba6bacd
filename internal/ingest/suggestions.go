package ingest

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/payee"
	"github.com/cleared-dev/ledgerd/internal/store"
	"github.com/cleared-dev/ledgerd/internal/suggest"
)

// SuggestRules proposes categorization rules from an import's rows.
// MatchingRowIndices refer to the rows' RowIndex. Nothing is written.
func (s *Service) SuggestRules(ctx context.Context, userID, importID int64, minOccurrences int, minConfidence float64) ([]suggest.Suggestion, error) {
	rows, err := s.Rows(ctx, userID, importID)
	if err != nil {
		return nil, err
	}
	n := 0
	for _, r := range rows {
		n = max(n, r.RowIndex+1)
	}
	inputs := make([]suggest.Input, n)
	for _, r := range rows {
		if r.Status == model.RowError {
			continue
		}
		inputs[r.RowIndex] = suggest.Input{Description: r.Row.Description, Payee: r.Row.Payee}
	}
	return s.suggester.Suggest(inputs, minOccurrences, minConfidence), nil
}

// AcceptRequest turns a suggestion into a rule.
type AcceptRequest struct {
	Suggestion suggest.Suggestion
	// PayeeName defaults to the suggestion name.
	PayeeName string
	// CategoryID wins over CategoryName; CategoryName defaults to the
	// suggestion's category hint and is created if missing.
	CategoryID   *int64
	CategoryName string
	Priority     int
	// ImportID, when set, applies the new payee and category to the
	// suggestion's rows of that import that have neither yet.
	ImportID int64
}

// Accepted is what AcceptSuggestion created or reused.
type Accepted struct {
	Rule     model.CategorizationRule
	Payee    model.Payee
	Pattern  model.PayeeMatchingPattern
	Category *model.Category
	Updated  int
}

// AcceptSuggestion creates the payee, matching pattern, category and rule a
// suggestion describes, all in one commit.
func (s *Service) AcceptSuggestion(ctx context.Context, userID int64, req AcceptRequest) (Accepted, error) {
	sg := req.Suggestion
	if strings.TrimSpace(sg.PayeePattern) == "" {
		return Accepted{}, &model.ValidationError{Field: "suggestion", Reason: "pattern must not be empty"}
	}
	name := strings.TrimSpace(req.PayeeName)
	if name == "" {
		name = sg.Name
	}
	iconURL := ""
	if s.icons != nil && sg.Domain != "" {
		url, err := s.icons.IconURL(ctx, sg.Domain)
		if err != nil {
			s.log.Warn().Err(err).Str("domain", sg.Domain).Msg("payee icon lookup failed")
		} else {
			iconURL = url
		}
	}

	var out Accepted
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		p, err := payee.EnsurePayeeIn(tx, userID, name, iconURL)
		if err != nil {
			return err
		}
		out.Payee = p

		source := model.SourceImportLearning
		if sg.Source == suggest.SourceKnownMerchant {
			source = model.SourceKnownMerchant
		}
		typ := model.PatternContains
		if sg.MatchType == suggest.MatchExact {
			typ = model.PatternExact
		}
		if out.Pattern, err = s.resolver.LearnIn(tx, userID, p.ID, typ, sg.PayeePattern, source); err != nil {
			return err
		}

		if out.Category, err = resolveCategory(tx, userID, req, sg); err != nil {
			return err
		}

		rule := model.CategorizationRule{
			UserID:      userID,
			Name:        sg.Name,
			Priority:    req.Priority,
			Actions:     model.RuleActions{RenamePayeeID: &p.ID},
			AutoCreated: true,
			Confidence:  sg.Confidence,
		}
		if typ == model.PatternExact {
			re := "^" + regexp.QuoteMeta(strings.TrimSpace(sg.PayeePattern)) + "$"
			rule.Conditions.DescriptionRegex = &re
		} else {
			pattern := sg.PayeePattern
			rule.Conditions.DescriptionContains = &pattern
		}
		if out.Category != nil {
			rule.Actions.SetCategoryID = &out.Category.ID
		}
		if out.Rule, err = tx.CreateRule(rule); err != nil {
			return err
		}

		if req.ImportID != 0 {
			out.Updated, err = s.applyToImport(tx, userID, req.ImportID, sg.MatchingRowIndices, p.ID, out.Category)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Accepted{}, err
	}
	s.log.Info().Str("rule", out.Rule.Name).Int64("payee_id", out.Payee.ID).
		Int("updated", out.Updated).Msg("suggestion accepted")
	return out, nil
}

func resolveCategory(tx *store.Tx, userID int64, req AcceptRequest, sg suggest.Suggestion) (*model.Category, error) {
	if req.CategoryID != nil {
		c, err := tx.Category(userID, *req.CategoryID)
		if err != nil {
			return nil, err
		}
		return &c, nil
	}
	name := strings.TrimSpace(req.CategoryName)
	if name == "" {
		name = sg.CategoryHint
	}
	if name == "" {
		return nil, nil
	}
	for _, c := range tx.Categories(userID) {
		if strings.EqualFold(c.Name, name) {
			return &c, nil
		}
	}
	c, err := tx.CreateCategory(model.Category{UserID: userID, Name: name})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// applyToImport fills in payee and category on the import's transactions at
// the given row indices, leaving values the user already set alone.
func (s *Service) applyToImport(tx *store.Tx, userID, importID int64, indices []int, payeeID int64, cat *model.Category) (int, error) {
	rows, err := tx.ImportRows(userID, importID)
	if err != nil {
		return 0, err
	}
	want := make(map[int]bool, len(indices))
	for _, i := range indices {
		want[i] = true
	}
	now := s.now().UTC()
	updated := 0
	for _, r := range rows {
		if !want[r.RowIndex] || r.TransactionID == nil {
			continue
		}
		txn, err := tx.Transaction(userID, *r.TransactionID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		changed := false
		if txn.PayeeID == nil {
			txn.PayeeID = &payeeID
			if err := s.resolver.Touch(tx, userID, payeeID, now); err != nil {
				return 0, err
			}
			changed = true
		}
		if txn.CategoryID == nil && cat != nil {
			txn.CategoryID = &cat.ID
			changed = true
		}
		if !changed {
			continue
		}
		if err := tx.UpdateTransaction(txn); err != nil {
			return 0, err
		}
		updated++
	}
	return updated, nil
}
