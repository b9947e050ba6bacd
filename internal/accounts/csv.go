package accounts

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgerd/internal/model"
)

// Header is the CSV header for account files.
const Header = "account_id,name,opening_balance,opening_balance_date"

const (
	numFields   = 4
	colID       = 0
	colName     = 1
	colOpening  = 2
	colOpenDate = 3
	dateFormat  = "2006-01-02"
)

// ReadAccounts reads an accounts CSV. account_id may be blank in seed files.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	var accounts []model.Account
	for i, rec := range records[1:] {
		acct, err := UnmarshalAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// WriteAccounts writes an accounts CSV.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, acct := range accounts {
		if err := cw.Write(MarshalAccount(acct)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalAccount converts an Account to a CSV row.
func MarshalAccount(acct model.Account) []string {
	row := make([]string, numFields)
	if acct.ID != 0 {
		row[colID] = strconv.FormatInt(acct.ID, 10)
	}
	row[colName] = acct.Name
	row[colOpening] = acct.OpeningBalance.StringFixed(2)
	if acct.OpeningBalanceDate != nil {
		row[colOpenDate] = acct.OpeningBalanceDate.Format(dateFormat)
	}
	return row
}

// UnmarshalAccount converts a CSV row to an Account.
func UnmarshalAccount(record []string) (model.Account, error) {
	if len(record) != numFields {
		return model.Account{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	var acct model.Account
	if s := strings.TrimSpace(record[colID]); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing account_id %q: %w", s, err)
		}
		acct.ID = id
	}

	acct.Name = strings.TrimSpace(record[colName])
	if acct.Name == "" {
		return model.Account{}, fmt.Errorf("name is required")
	}

	if s := strings.TrimSpace(record[colOpening]); s != "" {
		bal, err := decimal.NewFromString(s)
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing opening_balance %q: %w", s, err)
		}
		acct.OpeningBalance = bal
	}

	if s := strings.TrimSpace(record[colOpenDate]); s != "" {
		d, err := time.Parse(dateFormat, s)
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing opening_balance_date %q: %w", s, err)
		}
		acct.OpeningBalanceDate = &d
	}
	return acct, nil
}
