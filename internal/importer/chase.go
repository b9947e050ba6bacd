package importer

import "io"

// ChaseParser parses Chase checking CSV exports with a fixed mapping.
type ChaseParser struct {
	mapping ColumnMapping
}

// NewChaseParser returns the Chase preset.
func NewChaseParser() *ChaseParser {
	return &ChaseParser{mapping: ColumnMapping{
		Date:        "Posting Date",
		Amount:      "Amount",
		Description: "Description",
		DateFormat:  "01/02/2006",
	}}
}

// Format returns the parser name.
func (p *ChaseParser) Format() string { return "chase" }

// Parse reads a Chase CSV. Any mapping passed in is ignored.
func (p *ChaseParser) Parse(r io.Reader, _ *ColumnMapping) (*Result, error) {
	m := p.mapping
	return parseCSV(r, &m)
}
