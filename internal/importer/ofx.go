package importer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgerd/internal/ledger"
	"github.com/cleared-dev/ledgerd/internal/model"
)

// OFXParser parses OFX and QFX bank and credit card statements. QFX is OFX
// with extra Quicken headers, so both names share one implementation.
type OFXParser struct {
	format string
}

// Format returns the parser name.
func (p *OFXParser) Format() string { return p.format }

// Parse reads an OFX document. The sign of TRNAMT decides DEBIT or CREDIT
// and FITID becomes the row's ExternalID.
func (p *OFXParser) Parse(r io.Reader, _ *ColumnMapping) (*Result, error) {
	resp, err := ofxgo.ParseResponse(r)
	if err != nil {
		return nil, fmt.Errorf("reading OFX: %w", err)
	}

	var lists [][]ofxgo.Transaction
	for _, msg := range resp.Bank {
		if s, ok := msg.(*ofxgo.StatementResponse); ok && s.BankTranList != nil {
			lists = append(lists, s.BankTranList.Transactions)
		}
	}
	for _, msg := range resp.CreditCard {
		if s, ok := msg.(*ofxgo.CCStatementResponse); ok && s.BankTranList != nil {
			lists = append(lists, s.BankTranList.Transactions)
		}
	}
	if len(resp.Bank) == 0 && len(resp.CreditCard) == 0 {
		return nil, errors.New("no bank or credit card statement in document")
	}

	res := &Result{}
	line := 0
	for _, txns := range lists {
		for _, txn := range txns {
			line++
			res.TotalRows++
			row, rerr := ofxRow(txn, line)
			if rerr != nil {
				res.RowErrors = append(res.RowErrors, *rerr)
				continue
			}
			res.Rows = append(res.Rows, row)
		}
	}
	return res, nil
}

func ofxRow(txn ofxgo.Transaction, line int) (model.Row, *RowError) {
	date := txn.DtPosted.Time
	if date.IsZero() && txn.DtUser != nil {
		date = txn.DtUser.Time
	}
	if date.IsZero() {
		return model.Row{}, &RowError{Line: line, Field: "date", Reason: "missing DTPOSTED and DTUSER"}
	}

	amt, err := decimal.NewFromString(txn.TrnAmt.String())
	if err != nil {
		return model.Row{}, &RowError{Line: line, Field: "amount", Reason: fmt.Sprintf("invalid TRNAMT %q", txn.TrnAmt.String())}
	}
	if amt.IsZero() {
		return model.Row{}, &RowError{Line: line, Field: "amount", Reason: "zero amount"}
	}

	typ := model.TxnCredit
	if amt.IsNegative() {
		typ = model.TxnDebit
	}

	name := strings.TrimSpace(txn.Name.String())
	memo := strings.TrimSpace(txn.Memo.String())
	desc := memo
	if desc == "" {
		desc = name
	}

	return model.Row{
		Line:        line,
		Date:        ledger.Day(date),
		Amount:      amt.Abs(),
		Type:        typ,
		Payee:       name,
		Description: desc,
		ExternalID:  strings.TrimSpace(txn.FiTID.String()),
	}, nil
}
