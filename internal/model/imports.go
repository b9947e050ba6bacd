package model

import "time"

// ImportStatus is the lifecycle state of an import session.
type ImportStatus string

const (
	ImportPending   ImportStatus = "pending"
	ImportCompleted ImportStatus = "completed"
	ImportFailed    ImportStatus = "failed"
	ImportCancelled ImportStatus = "cancelled"
)

// RowStatus is the terminal state of one imported row.
type RowStatus string

const (
	RowImported  RowStatus = "imported"
	RowDuplicate RowStatus = "duplicate"
	RowError     RowStatus = "error"
	RowSkipped   RowStatus = "skipped"
)

// ImportHistory is one upload session and the unit of rollback.
type ImportHistory struct {
	ID             int64
	UserID         int64
	AccountID      int64
	Reference      string // human-facing, e.g. "imp-20250601-001"
	SessionID      string
	Filename       string
	Format         string
	Status         ImportStatus
	TotalRows      int
	ImportedCount  int
	DuplicateCount int
	ErrorCount     int
	RolledBack     bool
	ErrorMessage   string
	Original       []byte // retained upload, nil unless requested
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// ImportedTransaction links one source row to its outcome. TransactionID is
// nil for skipped, duplicate and error rows, and is nulled when the
// transaction is deleted.
type ImportedTransaction struct {
	ID            int64
	ImportID      int64
	RowIndex      int
	Status        RowStatus
	TransactionID *int64
	DuplicateOfID *int64
	Confidence    float64
	Message       string
	Row           Row
}
