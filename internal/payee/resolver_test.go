package payee

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/store"
)

const user = int64(1)

type fixture struct {
	st        *store.Store
	r         *Resolver
	starbucks model.Payee
	amazon    model.Payee
}

func setup(t *testing.T) fixture {
	t.Helper()
	st := store.New()
	f := fixture{st: st, r: NewResolver(st, DefaultConfig(), zerolog.Nop())}
	require.NoError(t, st.Update(context.Background(), func(tx *store.Tx) error {
		var err error
		if f.starbucks, err = tx.CreatePayee(model.Payee{UserID: user, CanonicalName: "Starbucks"}); err != nil {
			return err
		}
		f.amazon, err = tx.CreatePayee(model.Payee{UserID: user, CanonicalName: "Amazon"})
		return err
	}))
	return f
}

func (f fixture) pattern(t *testing.T, payeeID int64, typ model.PatternType, value string, conf float64) model.PayeeMatchingPattern {
	t.Helper()
	var p model.PayeeMatchingPattern
	require.NoError(t, f.st.Update(context.Background(), func(tx *store.Tx) error {
		var err error
		p, err = tx.CreatePattern(model.PayeeMatchingPattern{
			UserID: user, PayeeID: payeeID, Type: typ, Value: value, Confidence: conf, Source: model.SourceUserCreated,
		})
		return err
	}))
	return p
}

func TestResolve_ExactCanonicalName(t *testing.T) {
	f := setup(t)
	f.pattern(t, f.amazon.ID, model.PatternContains, "starbucks", 0.9)

	m, ok, err := f.r.Resolve(context.Background(), user, "  STARBUCKS ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.starbucks.ID, m.Payee.ID, "exact name beats a contains pattern")
	assert.Equal(t, StrategyExact, m.Strategy)
	assert.Nil(t, m.Pattern)
}

func TestResolve_PatternsByConfidence(t *testing.T) {
	f := setup(t)
	f.pattern(t, f.amazon.ID, model.PatternContains, "mktp", 0.6)
	f.pattern(t, f.starbucks.ID, model.PatternRegex, `^amzn\s+mktp`, 0.7)

	m, ok, err := f.r.Resolve(context.Background(), user, "AMZN Mktp US*2K4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.starbucks.ID, m.Payee.ID, "higher confidence pattern is tried first")
	assert.Equal(t, StrategyPattern, m.Strategy)
	assert.Equal(t, model.PatternRegex, m.Pattern.Type)
}

func TestResolve_Fuzzy(t *testing.T) {
	f := setup(t)
	f.pattern(t, f.starbucks.ID, model.PatternFuzzyBase, "starbucks", 0.8)

	m, ok, err := f.r.Resolve(context.Background(), user, "STARBUKS STORE 44")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.starbucks.ID, m.Payee.ID)
	assert.Equal(t, StrategyFuzzy, m.Strategy)
	assert.Greater(t, m.Confidence, 0.68)

	_, ok, err = f.r.Resolve(context.Background(), user, "SHELL OIL")
	require.NoError(t, err)
	assert.False(t, ok, "no match is not an error")
}

func TestFuzzyThreshold(t *testing.T) {
	m := FuzzyMatcher{Floor: 0.6}
	assert.InDelta(t, 1.0, m.Threshold(0), 1e-9)
	assert.InDelta(t, 0.8, m.Threshold(0.5), 1e-9)
	assert.InDelta(t, 0.6, m.Threshold(1), 1e-9)
}

func TestZeroConfidencePatternsNeverMatch(t *testing.T) {
	f := setup(t)
	f.pattern(t, f.amazon.ID, model.PatternContains, "amzn", 0)
	f.pattern(t, f.amazon.ID, model.PatternFuzzyBase, "amzn mktp", 0)

	_, ok, err := f.r.Resolve(context.Background(), user, "AMZN MKTP")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTextPatternMatcherSkipsBadRegex(t *testing.T) {
	lib := NewLibrary(
		[]model.Payee{{ID: 1, CanonicalName: "Acme"}},
		[]model.PayeeMatchingPattern{
			{ID: 2, PayeeID: 1, Type: model.PatternRegex, Value: "(", Confidence: 0.9},
			{ID: 3, PayeeID: 1, Type: model.PatternContains, Value: "acme", Confidence: 0.5},
		},
	)
	m, ok := TextPatternMatcher{Log: zerolog.Nop()}.Match("ACME CORP", lib)
	require.True(t, ok)
	assert.Equal(t, int64(3), m.Pattern.ID)
}

func TestLibraryCompilesRegexesOnce(t *testing.T) {
	lib := NewLibrary(
		[]model.Payee{{ID: 1, CanonicalName: "Acme"}},
		[]model.PayeeMatchingPattern{
			{ID: 2, PayeeID: 1, Type: model.PatternRegex, Value: `^acme\s+\d+`, Confidence: 0.9},
			{ID: 3, PayeeID: 1, Type: model.PatternContains, Value: "acme", Confidence: 0.5},
		},
	)
	require.Len(t, lib.regexes, 1, "only regex patterns are compiled")

	first, err := lib.regex(lib.Patterns[0])
	require.NoError(t, err)

	m := TextPatternMatcher{Log: zerolog.Nop()}
	for _, desc := range []string{"ACME 12", "acme 99 store", "Acme 7"} {
		got, ok := m.Match(desc, lib)
		require.True(t, ok, desc)
		assert.Equal(t, int64(2), got.Pattern.ID, desc)
	}

	again, err := lib.regex(lib.Patterns[0])
	require.NoError(t, err)
	assert.Same(t, first, again, "matching reuses the compiled regex")
}

func TestCustomMatcherOrder(t *testing.T) {
	f := setup(t)
	f.pattern(t, f.amazon.ID, model.PatternContains, "starbucks", 0.9)
	r := NewResolver(f.st, DefaultConfig(), zerolog.Nop(), WithMatchers(TextPatternMatcher{}, ExactMatcher{}))

	m, ok, err := r.Resolve(context.Background(), user, "Starbucks")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.amazon.ID, m.Payee.ID)
}

func TestPatternReinforcement(t *testing.T) {
	f := setup(t)
	p := f.pattern(t, f.starbucks.ID, model.PatternContains, "starbucks", 0.80)
	ctx := context.Background()

	prev := p.Confidence
	for i := 0; i < 3; i++ {
		got, err := f.r.RecordFeedback(ctx, user, p.ID, true)
		require.NoError(t, err)
		assert.Greater(t, got.Confidence, prev)
		assert.LessOrEqual(t, got.Confidence, 1.0)
		prev = got.Confidence
	}

	got, err := f.r.RecordFeedback(ctx, user, p.ID, false)
	require.NoError(t, err)
	assert.Less(t, got.Confidence, prev)
	assert.GreaterOrEqual(t, got.Confidence, 0.0)
}

func TestFeedbackClamps(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	high := f.pattern(t, f.starbucks.ID, model.PatternContains, "sbux", 0.98)
	low := f.pattern(t, f.starbucks.ID, model.PatternContains, "starbux", 0.05)

	got, err := f.r.RecordFeedback(ctx, user, high.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Confidence)

	got, err = f.r.RecordFeedback(ctx, user, low.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.Confidence)

	cands, err := f.r.PruneCandidates(ctx, user)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, low.ID, cands[0].ID)

	// still stored
	_, err = f.r.RecordFeedback(ctx, user, low.ID, true)
	assert.NoError(t, err)
}

func TestFeedbackUnknownPattern(t *testing.T) {
	f := setup(t)
	_, err := f.r.RecordFeedback(context.Background(), user, 999, true)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLearnCreatesThenReinforces(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p, err := f.r.Learn(ctx, user, f.starbucks.ID, model.PatternContains, " STARBUCKS STORE ", model.SourceImportLearning)
	require.NoError(t, err)
	assert.Equal(t, 0.5, p.Confidence)
	assert.Equal(t, "STARBUCKS STORE", p.Value)
	assert.Equal(t, model.SourceImportLearning, p.Source)

	again, err := f.r.Learn(ctx, user, f.starbucks.ID, model.PatternContains, "starbucks store", model.SourceImportLearning)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.InDelta(t, 0.55, again.Confidence, 1e-9)

	_, err = f.r.Learn(ctx, 2, f.starbucks.ID, model.PatternContains, "x", model.SourceUserCreated)
	assert.ErrorIs(t, err, model.ErrNotFound, "patterns are never shared across users")
}

func TestRecordMatchAndTouch(t *testing.T) {
	f := setup(t)
	f.pattern(t, f.starbucks.ID, model.PatternContains, "sbux", 0.7)
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	require.NoError(t, f.st.Update(ctx, func(tx *store.Tx) error {
		m, ok := f.r.Match(f.r.Library(tx, user), "SBUX 1234")
		require.True(t, ok)
		if err := f.r.RecordMatch(tx, user, m, at); err != nil {
			return err
		}
		return f.r.Touch(tx, user, m.Payee.ID, at)
	}))

	require.NoError(t, f.st.View(ctx, func(tx *store.Tx) error {
		pats := tx.PayeePatterns(user, f.starbucks.ID)
		require.Len(t, pats, 1)
		assert.Equal(t, 1, pats[0].MatchCount)
		assert.True(t, pats[0].LastMatchedAt.Equal(at))

		p, err := tx.Payee(user, f.starbucks.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, p.TransactionCount)
		assert.True(t, p.LastUsedAt.Equal(at))
		return nil
	}))
}

type stubIcons struct{}

func (stubIcons) IconURL(_ context.Context, domain string) (string, error) {
	return "https://icons.example/" + domain, nil
}

func TestEnsurePayee(t *testing.T) {
	f := setup(t)
	r := NewResolver(f.st, DefaultConfig(), zerolog.Nop(), WithIcons(stubIcons{}))
	ctx := context.Background()

	existing, err := r.EnsurePayee(ctx, user, "starbucks", "starbucks.com")
	require.NoError(t, err)
	assert.Equal(t, f.starbucks.ID, existing.ID)

	created, err := r.EnsurePayee(ctx, user, "Netflix", "netflix.com")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "https://icons.example/netflix.com", created.IconURL)
}
