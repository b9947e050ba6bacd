package model

import "time"

// Payee is the canonical identity raw descriptions resolve to. Usage stats
// are updated incrementally as transactions are assigned.
type Payee struct {
	ID               int64
	UserID           int64
	CanonicalName    string
	TransactionCount int
	LastUsedAt       *time.Time
	IconURL          string
}

// PatternType selects how a pattern value is compared to a description.
type PatternType string

const (
	PatternContains  PatternType = "description_contains"
	PatternRegex     PatternType = "description_regex"
	PatternExact     PatternType = "exact_match"
	PatternFuzzyBase PatternType = "fuzzy_match_base"
)

// Valid reports whether p is a known pattern type.
func (p PatternType) Valid() bool {
	switch p {
	case PatternContains, PatternRegex, PatternExact, PatternFuzzyBase:
		return true
	}
	return false
}

// PatternSource records where a pattern came from.
type PatternSource string

const (
	SourceImportLearning PatternSource = "import_learning"
	SourceUserCreated    PatternSource = "user_created"
	SourceKnownMerchant  PatternSource = "known_merchant"
	SourceMigration      PatternSource = "migration"
)

// PayeeMatchingPattern maps raw text to a payee with a learned confidence.
// Unique per (PayeeID, Type, Value).
type PayeeMatchingPattern struct {
	ID            int64
	UserID        int64
	PayeeID       int64
	Type          PatternType
	Value         string
	Confidence    float64 // [0,1]
	MatchCount    int
	LastMatchedAt *time.Time
	Source        PatternSource
}
