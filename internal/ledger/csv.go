package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgerd/internal/model"
)

// Header is the CSV header for an account register export.
const Header = "txn_id,date,display_order,type,amount,signed,balance,payee,category,description,transfer_account_id,fitid,notes"

const (
	numFields     = 13
	dateFormat    = "2006-01-02"
	colID         = 0
	colDate       = 1
	colOrder      = 2
	colType       = 3
	colAmount     = 4
	colSigned     = 5
	colBalance    = 6
	colPayee      = 7
	colCategory   = 8
	colDesc       = 9
	colTransferTo = 10
	colFITID      = 11
	colNotes      = 12
)

// RegisterLine is one transaction as seen from a single account, with the
// running balance after it.
type RegisterLine struct {
	Txn      model.Transaction
	Signed   decimal.Decimal
	Balance  decimal.Decimal
	Payee    string
	Category string
}

// WriteRegister writes register lines (including header).
func WriteRegister(w io.Writer, lines []RegisterLine) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, line := range lines {
		if err := cw.Write(MarshalLine(line)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return cw.Error()
}

// MarshalLine converts a RegisterLine to a CSV row.
func MarshalLine(line RegisterLine) []string {
	txn := line.Txn
	row := make([]string, numFields)
	row[colID] = strconv.FormatInt(txn.ID, 10)
	row[colDate] = txn.Date.Format(dateFormat)
	row[colOrder] = strconv.Itoa(txn.DisplayOrder)
	row[colType] = string(txn.Type)
	row[colAmount] = txn.Amount.StringFixed(2)
	row[colSigned] = line.Signed.StringFixed(2)
	row[colBalance] = line.Balance.StringFixed(2)
	row[colPayee] = line.Payee
	row[colCategory] = line.Category
	row[colDesc] = txn.Description
	if txn.TransferAccountID != nil {
		row[colTransferTo] = strconv.FormatInt(*txn.TransferAccountID, 10)
	}
	row[colFITID] = txn.FITID()
	row[colNotes] = txn.Notes
	return row
}
