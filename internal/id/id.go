package id

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const refDateFormat = "20060102"

// FormatImportRef returns an import reference like "imp-20250601-003".
func FormatImportRef(day time.Time, seq int) string {
	return fmt.Sprintf("imp-%s-%03d", day.Format(refDateFormat), seq)
}

// ParseImportRef parses "imp-20250601-003" into its day and sequence.
func ParseImportRef(ref string) (day time.Time, seq int, err error) {
	parts := strings.SplitN(ref, "-", 3)
	if len(parts) != 3 || parts[0] != "imp" {
		return time.Time{}, 0, fmt.Errorf("invalid import reference format: %q", ref)
	}

	day, err = time.Parse(refDateFormat, parts[1])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid date in import reference %q: %w", ref, err)
	}

	seq, err = strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid sequence in import reference %q: %w", ref, err)
	}

	return day, seq, nil
}

// RefPrefix returns the reference prefix shared by every import on day.
// "imp-20250601-"
func RefPrefix(day time.Time) string {
	return "imp-" + day.Format(refDateFormat) + "-"
}

// NewSessionID returns a random upload session ID.
func NewSessionID() string {
	return uuid.New().String()
}
