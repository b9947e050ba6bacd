package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/cleared-dev/ledgerd/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS accounts (
	id INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	opening_balance TEXT NOT NULL,
	opening_balance_date TEXT
);
CREATE TABLE IF NOT EXISTS categories (
	id INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS payees (
	id INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL,
	canonical_name TEXT NOT NULL,
	transaction_count INTEGER NOT NULL,
	last_used_at TEXT,
	icon_url TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS payee_patterns (
	id INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL,
	payee_id INTEGER NOT NULL,
	pattern_type TEXT NOT NULL,
	value TEXT NOT NULL,
	confidence REAL NOT NULL,
	match_count INTEGER NOT NULL,
	last_matched_at TEXT,
	source TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rules (
	id INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	priority INTEGER NOT NULL,
	conditions TEXT NOT NULL,
	actions TEXT NOT NULL,
	match_count INTEGER NOT NULL,
	auto_created INTEGER NOT NULL,
	confidence REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	date TEXT NOT NULL,
	display_order INTEGER NOT NULL,
	type TEXT NOT NULL,
	amount TEXT NOT NULL,
	description TEXT NOT NULL,
	payee_id INTEGER,
	category_id INTEGER,
	transfer_account_id INTEGER,
	import_id INTEGER,
	notes TEXT NOT NULL,
	metadata TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS imports (
	id INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL,
	account_id INTEGER NOT NULL,
	reference TEXT NOT NULL,
	session_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	format TEXT NOT NULL,
	status TEXT NOT NULL,
	total_rows INTEGER NOT NULL,
	imported_count INTEGER NOT NULL,
	duplicate_count INTEGER NOT NULL,
	error_count INTEGER NOT NULL,
	rolled_back INTEGER NOT NULL,
	error_message TEXT NOT NULL,
	original BLOB,
	created_at TEXT NOT NULL,
	completed_at TEXT
);
CREATE TABLE IF NOT EXISTS import_rows (
	id INTEGER PRIMARY KEY,
	import_id INTEGER NOT NULL,
	row_index INTEGER NOT NULL,
	status TEXT NOT NULL,
	transaction_id INTEGER,
	duplicate_of_id INTEGER,
	confidence REAL NOT NULL,
	message TEXT NOT NULL,
	row TEXT NOT NULL
);`

// tables in delete order; Persist rewrites every one of them.
var tables = []string{"import_rows", "imports", "transactions", "rules", "payee_patterns", "payees", "categories", "accounts", "meta"}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

// Open loads a Store from the SQLite file at path, creating an empty
// database if none exists.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := openDB(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	a := newArena()
	loaders := []struct {
		name string
		fn   func(context.Context, *sql.DB, *arena) error
	}{
		{"meta", loadMeta},
		{"accounts", loadAccounts},
		{"categories", loadCategories},
		{"payees", loadPayees},
		{"payee_patterns", loadPatterns},
		{"rules", loadRules},
		{"transactions", loadTransactions},
		{"imports", loadImports},
		{"import_rows", loadImportRows},
	}
	for _, l := range loaders {
		if err := l.fn(ctx, db, a); err != nil {
			return nil, fmt.Errorf("loading %s: %w", l.name, err)
		}
	}
	return &Store{committed: a}, nil
}

// Persist writes the committed snapshot to the SQLite file at path in a
// single transaction, replacing whatever it held.
func (s *Store) Persist(ctx context.Context, path string) error {
	s.snapMu.RLock()
	a := s.committed
	s.snapMu.RUnlock()

	db, err := openDB(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	for _, t := range tables {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("clearing %s: %w", t, err)
		}
	}
	if err := writeArena(ctx, sqlTx, a); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func writeArena(ctx context.Context, q *sql.Tx, a *arena) error {
	exec := func(what, query string, args ...any) error {
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("writing %s: %w", what, err)
		}
		return nil
	}

	if err := exec("meta", `INSERT INTO meta (key, value) VALUES ('next_id', ?)`, a.nextID); err != nil {
		return err
	}
	for _, v := range a.accounts {
		if err := exec("account", `INSERT INTO accounts VALUES (?, ?, ?, ?, ?)`,
			v.ID, v.UserID, v.Name, v.OpeningBalance.String(), timeArg(v.OpeningBalanceDate)); err != nil {
			return err
		}
	}
	for _, v := range a.categories {
		if err := exec("category", `INSERT INTO categories VALUES (?, ?, ?)`, v.ID, v.UserID, v.Name); err != nil {
			return err
		}
	}
	for _, v := range a.payees {
		if err := exec("payee", `INSERT INTO payees VALUES (?, ?, ?, ?, ?, ?)`,
			v.ID, v.UserID, v.CanonicalName, v.TransactionCount, timeArg(v.LastUsedAt), v.IconURL); err != nil {
			return err
		}
	}
	for _, v := range a.patterns {
		if err := exec("pattern", `INSERT INTO payee_patterns VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.UserID, v.PayeeID, string(v.Type), v.Value, v.Confidence, v.MatchCount,
			timeArg(v.LastMatchedAt), string(v.Source)); err != nil {
			return err
		}
	}
	for _, v := range a.rules {
		cond, err := json.Marshal(v.Conditions)
		if err != nil {
			return fmt.Errorf("encoding rule %d conditions: %w", v.ID, err)
		}
		act, err := json.Marshal(v.Actions)
		if err != nil {
			return fmt.Errorf("encoding rule %d actions: %w", v.ID, err)
		}
		if err := exec("rule", `INSERT INTO rules VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.UserID, v.Name, v.Priority, string(cond), string(act), v.MatchCount,
			v.AutoCreated, v.Confidence); err != nil {
			return err
		}
	}
	for _, v := range a.transactions {
		meta, err := json.Marshal(v.Metadata)
		if err != nil {
			return fmt.Errorf("encoding transaction %d metadata: %w", v.ID, err)
		}
		if err := exec("transaction", `INSERT INTO transactions VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.UserID, v.AccountID, v.Date.Format(time.RFC3339), v.DisplayOrder, string(v.Type),
			v.Amount.String(), v.Description, intArg(v.PayeeID), intArg(v.CategoryID),
			intArg(v.TransferAccountID), intArg(v.ImportID), v.Notes, string(meta)); err != nil {
			return err
		}
	}
	for _, v := range a.imports {
		if err := exec("import", `INSERT INTO imports VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.UserID, v.AccountID, v.Reference, v.SessionID, v.Filename, v.Format, string(v.Status),
			v.TotalRows, v.ImportedCount, v.DuplicateCount, v.ErrorCount, v.RolledBack, v.ErrorMessage,
			v.Original, v.CreatedAt.Format(time.RFC3339Nano), timeArg(v.CompletedAt)); err != nil {
			return err
		}
	}
	for _, v := range a.importRows {
		row, err := json.Marshal(v.Row)
		if err != nil {
			return fmt.Errorf("encoding import row %d: %w", v.ID, err)
		}
		if err := exec("import row", `INSERT INTO import_rows VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.ImportID, v.RowIndex, string(v.Status), intArg(v.TransactionID),
			intArg(v.DuplicateOfID), v.Confidence, v.Message, string(row)); err != nil {
			return err
		}
	}
	return nil
}

func intArg(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func timeArg(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.Format(time.RFC3339Nano)
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// scanAll runs query and hands each row to scan.
func scanAll(ctx context.Context, db *sql.DB, query string, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func loadMeta(ctx context.Context, db *sql.DB, a *arena) error {
	return scanAll(ctx, db, `SELECT value FROM meta WHERE key = 'next_id'`, func(r *sql.Rows) error {
		return r.Scan(&a.nextID)
	})
}

func loadAccounts(ctx context.Context, db *sql.DB, a *arena) error {
	return scanAll(ctx, db, `SELECT id, user_id, name, opening_balance, opening_balance_date FROM accounts`, func(r *sql.Rows) error {
		var (
			v       model.Account
			opening string
			date    sql.NullString
		)
		if err := r.Scan(&v.ID, &v.UserID, &v.Name, &opening, &date); err != nil {
			return err
		}
		var err error
		if v.OpeningBalance, err = decimal.NewFromString(opening); err != nil {
			return fmt.Errorf("account %d opening balance: %w", v.ID, err)
		}
		if v.OpeningBalanceDate, err = timePtr(date); err != nil {
			return fmt.Errorf("account %d opening date: %w", v.ID, err)
		}
		a.accounts[v.ID] = v
		return nil
	})
}

func loadCategories(ctx context.Context, db *sql.DB, a *arena) error {
	return scanAll(ctx, db, `SELECT id, user_id, name FROM categories`, func(r *sql.Rows) error {
		var v model.Category
		if err := r.Scan(&v.ID, &v.UserID, &v.Name); err != nil {
			return err
		}
		a.categories[v.ID] = v
		return nil
	})
}

func loadPayees(ctx context.Context, db *sql.DB, a *arena) error {
	return scanAll(ctx, db, `SELECT id, user_id, canonical_name, transaction_count, last_used_at, icon_url FROM payees`, func(r *sql.Rows) error {
		var (
			v    model.Payee
			last sql.NullString
		)
		if err := r.Scan(&v.ID, &v.UserID, &v.CanonicalName, &v.TransactionCount, &last, &v.IconURL); err != nil {
			return err
		}
		var err error
		if v.LastUsedAt, err = timePtr(last); err != nil {
			return fmt.Errorf("payee %d last used: %w", v.ID, err)
		}
		a.payees[v.ID] = v
		return nil
	})
}

func loadPatterns(ctx context.Context, db *sql.DB, a *arena) error {
	return scanAll(ctx, db, `SELECT id, user_id, payee_id, pattern_type, value, confidence, match_count, last_matched_at, source FROM payee_patterns`, func(r *sql.Rows) error {
		var (
			v           model.PayeeMatchingPattern
			typ, source string
			last        sql.NullString
		)
		if err := r.Scan(&v.ID, &v.UserID, &v.PayeeID, &typ, &v.Value, &v.Confidence, &v.MatchCount, &last, &source); err != nil {
			return err
		}
		v.Type = model.PatternType(typ)
		v.Source = model.PatternSource(source)
		var err error
		if v.LastMatchedAt, err = timePtr(last); err != nil {
			return fmt.Errorf("pattern %d last matched: %w", v.ID, err)
		}
		a.patterns[v.ID] = v
		return nil
	})
}

func loadRules(ctx context.Context, db *sql.DB, a *arena) error {
	return scanAll(ctx, db, `SELECT id, user_id, name, priority, conditions, actions, match_count, auto_created, confidence FROM rules`, func(r *sql.Rows) error {
		var (
			v         model.CategorizationRule
			cond, act string
		)
		if err := r.Scan(&v.ID, &v.UserID, &v.Name, &v.Priority, &cond, &act, &v.MatchCount, &v.AutoCreated, &v.Confidence); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(cond), &v.Conditions); err != nil {
			return fmt.Errorf("rule %d conditions: %w", v.ID, err)
		}
		if err := json.Unmarshal([]byte(act), &v.Actions); err != nil {
			return fmt.Errorf("rule %d actions: %w", v.ID, err)
		}
		a.rules[v.ID] = v
		return nil
	})
}

func loadTransactions(ctx context.Context, db *sql.DB, a *arena) error {
	const q = `SELECT id, user_id, account_id, date, display_order, type, amount, description,
		payee_id, category_id, transfer_account_id, import_id, notes, metadata FROM transactions`
	return scanAll(ctx, db, q, func(r *sql.Rows) error {
		var (
			v                                    model.Transaction
			date, typ, amount, meta              string
			payee, category, transfer, importRef sql.NullInt64
		)
		if err := r.Scan(&v.ID, &v.UserID, &v.AccountID, &date, &v.DisplayOrder, &typ, &amount, &v.Description,
			&payee, &category, &transfer, &importRef, &v.Notes, &meta); err != nil {
			return err
		}
		var err error
		if v.Date, err = time.Parse(time.RFC3339, date); err != nil {
			return fmt.Errorf("transaction %d date: %w", v.ID, err)
		}
		if v.Amount, err = decimal.NewFromString(amount); err != nil {
			return fmt.Errorf("transaction %d amount: %w", v.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &v.Metadata); err != nil {
			return fmt.Errorf("transaction %d metadata: %w", v.ID, err)
		}
		v.Type = model.TxnType(typ)
		v.PayeeID = intPtr(payee)
		v.CategoryID = intPtr(category)
		v.TransferAccountID = intPtr(transfer)
		v.ImportID = intPtr(importRef)
		a.transactions[v.ID] = v
		return nil
	})
}

func loadImports(ctx context.Context, db *sql.DB, a *arena) error {
	const q = `SELECT id, user_id, account_id, reference, session_id, filename, format, status, total_rows,
		imported_count, duplicate_count, error_count, rolled_back, error_message, original, created_at,
		completed_at FROM imports`
	return scanAll(ctx, db, q, func(r *sql.Rows) error {
		var (
			v               model.ImportHistory
			status, created string
			completed       sql.NullString
		)
		if err := r.Scan(&v.ID, &v.UserID, &v.AccountID, &v.Reference, &v.SessionID, &v.Filename, &v.Format,
			&status, &v.TotalRows, &v.ImportedCount, &v.DuplicateCount, &v.ErrorCount, &v.RolledBack,
			&v.ErrorMessage, &v.Original, &created, &completed); err != nil {
			return err
		}
		v.Status = model.ImportStatus(status)
		var err error
		if v.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return fmt.Errorf("import %d created: %w", v.ID, err)
		}
		if v.CompletedAt, err = timePtr(completed); err != nil {
			return fmt.Errorf("import %d completed: %w", v.ID, err)
		}
		a.imports[v.ID] = v
		return nil
	})
}

func loadImportRows(ctx context.Context, db *sql.DB, a *arena) error {
	const q = `SELECT id, import_id, row_index, status, transaction_id, duplicate_of_id, confidence, message, row FROM import_rows`
	return scanAll(ctx, db, q, func(r *sql.Rows) error {
		var (
			v           model.ImportedTransaction
			status, row string
			txn, dup    sql.NullInt64
		)
		if err := r.Scan(&v.ID, &v.ImportID, &v.RowIndex, &status, &txn, &dup, &v.Confidence, &v.Message, &row); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(row), &v.Row); err != nil {
			return fmt.Errorf("import row %d: %w", v.ID, err)
		}
		v.Status = model.RowStatus(status)
		v.TransactionID = intPtr(txn)
		v.DuplicateOfID = intPtr(dup)
		a.importRows[v.ID] = v
		return nil
	})
}
