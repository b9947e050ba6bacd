package suggest

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/ledgerd/internal/textmatch"
)

//go:embed merchants.yaml
var embeddedMerchants []byte

// MatchType defines how a merchant pattern is compared to a description.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchContains MatchType = "contains"
)

// Merchant is one curated known-merchant signature.
type Merchant struct {
	Name      string    `yaml:"name"`
	Pattern   string    `yaml:"pattern"`
	MatchType MatchType `yaml:"match_type"`
	Category  string    `yaml:"category"`
	Domain    string    `yaml:"domain"`

	folded string
}

type merchantTable struct {
	Merchants []Merchant `yaml:"merchants"`
}

// LoadMerchants parses a merchant table.
func LoadMerchants(data []byte) ([]Merchant, error) {
	var t merchantTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing merchant table: %w", err)
	}
	for i, m := range t.Merchants {
		if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Pattern) == "" {
			return nil, fmt.Errorf("merchant %d: name and pattern are required", i)
		}
		if m.MatchType != MatchExact && m.MatchType != MatchContains {
			return nil, fmt.Errorf("merchant %d (%s): invalid match_type %q", i, m.Name, m.MatchType)
		}
	}
	return t.Merchants, nil
}

// matches reports whether folded text carries the merchant signature.
func (m Merchant) matches(folded string) bool {
	pattern := m.folded
	if pattern == "" {
		pattern = textmatch.Fold(m.Pattern)
	}
	if m.MatchType == MatchExact {
		return folded == pattern
	}
	return containsWord(folded, pattern)
}

// containsWord reports whether needle occurs in s with no letter or digit
// directly before or after it, so "shell oil" does not hit "shelloil".
func containsWord(s, needle string) bool {
	for from := 0; from <= len(s)-len(needle); {
		i := strings.Index(s[from:], needle)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(needle)
		if !wordByte(s, start-1) && !wordByte(s, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func wordByte(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	c := s[i]
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80
}
