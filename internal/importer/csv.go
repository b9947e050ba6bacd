package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgerd/internal/model"
)

// ColumnMapping tells the CSV parser where each field lives. Columns are
// referenced by header name (case-insensitive) or by zero-based index.
type ColumnMapping struct {
	Date        string `yaml:"date"`
	Amount      string `yaml:"amount,omitempty"`
	Debit       string `yaml:"debit,omitempty"`
	Credit      string `yaml:"credit,omitempty"`
	Description string `yaml:"description,omitempty"`
	Payee       string `yaml:"payee,omitempty"`
	Type        string `yaml:"type,omitempty"`
	ExternalID  string `yaml:"external_id,omitempty"`
	DateFormat  string `yaml:"date_format,omitempty"`
	Delimiter   string `yaml:"delimiter,omitempty"`
	NoHeader    bool   `yaml:"no_header,omitempty"`
	// InvertSign treats positive amounts as money leaving the account, as
	// credit card exports usually do.
	InvertSign bool `yaml:"invert_sign,omitempty"`
}

// Validate checks that the mapping names a date and some amount source.
func (m *ColumnMapping) Validate() error {
	if m.Date == "" {
		return errors.New("mapping needs a date column")
	}
	if m.Amount == "" && m.Debit == "" && m.Credit == "" {
		return errors.New("mapping needs an amount column or debit/credit columns")
	}
	if _, err := m.delimiter(); err != nil {
		return err
	}
	return nil
}

func (m *ColumnMapping) delimiter() (rune, error) {
	switch m.Delimiter {
	case "":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	if utf8.RuneCountInString(m.Delimiter) != 1 {
		return 0, fmt.Errorf("delimiter %q must be a single character", m.Delimiter)
	}
	r, _ := utf8.DecodeRuneInString(m.Delimiter)
	return r, nil
}

// dateLayouts are tried in order when the mapping has no DateFormat.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"2006/01/02",
	"20060102",
	"02 Jan 2006",
	"Jan 2, 2006",
	"2006-01-02T15:04:05Z07:00",
}

// CSVParser parses delimited bank exports through a ColumnMapping.
type CSVParser struct{}

// Format returns the parser name.
func (p *CSVParser) Format() string { return "csv" }

// Parse reads a delimited file. A structural error or a mapped column that
// is absent from the header rejects the file.
func (p *CSVParser) Parse(r io.Reader, m *ColumnMapping) (*Result, error) {
	if m == nil {
		return nil, errors.New("csv import requires a column mapping")
	}
	return parseCSV(r, m)
}

func parseCSV(r io.Reader, m *ColumnMapping) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mapping: %w", err)
	}
	delim, _ := m.delimiter()

	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		records [][]string
		lines   []int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		line, _ := cr.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}

	var header []string
	if !m.NoHeader {
		if len(records) == 0 {
			return nil, errors.New("missing header row")
		}
		header, records, lines = records[0], records[1:], lines[1:]
	}

	cols, err := resolveColumns(m, header)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for i, rec := range records {
		if blankRecord(rec) {
			continue
		}
		res.TotalRows++
		row, rerr := cols.row(rec, lines[i])
		if rerr != nil {
			res.RowErrors = append(res.RowErrors, *rerr)
			continue
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func blankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// columns holds resolved field indexes; -1 means unmapped.
type columns struct {
	date, amount, debit, credit  int
	desc, payee, typ, externalID int
	dateFormat                   string
	invert                       bool
}

func resolveColumns(m *ColumnMapping, header []string) (columns, error) {
	c := columns{dateFormat: m.DateFormat, invert: m.InvertSign}
	targets := []struct {
		ref string
		dst *int
	}{
		{m.Date, &c.date},
		{m.Amount, &c.amount},
		{m.Debit, &c.debit},
		{m.Credit, &c.credit},
		{m.Description, &c.desc},
		{m.Payee, &c.payee},
		{m.Type, &c.typ},
		{m.ExternalID, &c.externalID},
	}
	for _, t := range targets {
		idx, err := resolveColumn(t.ref, header)
		if err != nil {
			return columns{}, err
		}
		*t.dst = idx
	}
	return c, nil
}

func resolveColumn(ref string, header []string) (int, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return -1, nil
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), ref) {
			return i, nil
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 0 {
		if header != nil && n >= len(header) {
			return 0, fmt.Errorf("column index %d beyond %d header columns", n, len(header))
		}
		return n, nil
	}
	return 0, fmt.Errorf("column %q not found in header", ref)
}

func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func (c columns) row(rec []string, line int) (model.Row, *RowError) {
	fail := func(f, format string, args ...any) (model.Row, *RowError) {
		return model.Row{}, &RowError{Line: line, Field: f, Reason: fmt.Sprintf(format, args...)}
	}

	rawDate := field(rec, c.date)
	if rawDate == "" {
		return fail("date", "missing")
	}
	date, err := parseDate(rawDate, c.dateFormat)
	if err != nil {
		return fail("date", "invalid date %q", rawDate)
	}

	row := model.Row{
		Line:        line,
		Date:        date,
		Description: field(rec, c.desc),
		Payee:       field(rec, c.payee),
		ExternalID:  field(rec, c.externalID),
	}

	if c.amount >= 0 {
		raw := field(rec, c.amount)
		if raw == "" {
			return fail("amount", "missing")
		}
		amt, err := ParseAmount(raw)
		if err != nil {
			return fail("amount", "invalid amount %q", raw)
		}
		if c.invert {
			amt = amt.Neg()
		}
		row.Type = model.TxnCredit
		if amt.IsNegative() {
			row.Type = model.TxnDebit
		}
		if t, ok := typeKeyword(field(rec, c.typ)); ok {
			row.Type = t
		}
		row.Amount = amt.Abs()
	} else {
		debit, derr := optionalAmount(field(rec, c.debit))
		credit, cerr := optionalAmount(field(rec, c.credit))
		switch {
		case derr != nil:
			return fail("debit", "invalid amount %q", field(rec, c.debit))
		case cerr != nil:
			return fail("credit", "invalid amount %q", field(rec, c.credit))
		case !debit.IsZero() && !credit.IsZero():
			return fail("amount", "both debit and credit are set")
		case !debit.IsZero():
			row.Type, row.Amount = model.TxnDebit, debit.Abs()
		case !credit.IsZero():
			row.Type, row.Amount = model.TxnCredit, credit.Abs()
		default:
			return fail("amount", "missing")
		}
	}

	if row.Amount.IsZero() {
		return fail("amount", "zero amount")
	}
	return row, nil
}

func optionalAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return ParseAmount(s)
}

func parseDate(s, layout string) (time.Time, error) {
	if layout != "" {
		return time.Parse(layout, s)
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// typeKeyword maps a bank's type column to a direction, if it names one.
func typeKeyword(s string) (model.TxnType, bool) {
	switch strings.ToLower(s) {
	case "debit", "dr", "withdrawal", "payment", "purchase", "sale":
		return model.TxnDebit, true
	case "credit", "cr", "deposit", "refund", "return":
		return model.TxnCredit, true
	}
	return "", false
}

// ParseAmount parses money text as exported by banks: currency symbols and
// codes, thousands separators, parenthesised or trailing-minus negatives.
// "($1,234.50)" -> -1234.50
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		neg = true
		s = strings.TrimSuffix(s, "-")
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+':
			return r
		case r == '\u2212':
			return '-'
		case r == ',', r == '\'', unicode.IsSpace(r), unicode.Is(unicode.Sc, r), unicode.IsLetter(r):
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("no digits in amount %q", s)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, err
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}
