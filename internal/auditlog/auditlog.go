// Package auditlog writes the append-only CSV trail of import events.
package auditlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Event names one step of an import.
type Event string

const (
	EventUploaded     Event = "uploaded"
	EventParsed       Event = "parsed"
	EventRowImported  Event = "row_imported"
	EventRowDuplicate Event = "row_duplicate"
	EventRowError     Event = "row_error"
	EventCompleted    Event = "completed"
	EventFailed       Event = "failed"
	EventRolledBack   Event = "rolled_back"
)

// Entry is one row in the audit log. RowIndex is -1 for import-level
// events; TransactionID is 0 when no transaction is involved.
type Entry struct {
	Timestamp     time.Time
	ImportRef     string
	Event         Event
	RowIndex      int
	TransactionID int64
	Details       string
}

// Header is the CSV header for the audit log.
const Header = "timestamp,import_ref,event,row_index,transaction_id,details"

const (
	numFields  = 6
	colTime    = 0
	colRef     = 1
	colEvent   = 2
	colRow     = 3
	colTxnID   = 4
	colDetails = 5
	noRow      = -1
	timeLayout = time.RFC3339Nano
)

// Sink receives audit entries.
type Sink interface {
	Append(entries []Entry) error
}

// Discard drops every entry.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append([]Entry) error { return nil }

// File is a Sink appending to a CSV file.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a Sink writing to path. The file and its directory are
// created on first append.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the log file location.
func (f *File) Path() string { return f.path }

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTime] = e.Timestamp.UTC().Format(timeLayout)
	row[colRef] = e.ImportRef
	row[colEvent] = string(e.Event)
	row[colRow] = ""
	if e.RowIndex >= 0 {
		row[colRow] = strconv.Itoa(e.RowIndex)
	}
	row[colTxnID] = ""
	if e.TransactionID != 0 {
		row[colTxnID] = strconv.FormatInt(e.TransactionID, 10)
	}
	row[colDetails] = e.Details
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(timeLayout, record[colTime])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTime], err)
	}

	e := Entry{
		Timestamp: ts,
		ImportRef: record[colRef],
		Event:     Event(record[colEvent]),
		RowIndex:  noRow,
		Details:   record[colDetails],
	}
	if s := record[colRow]; s != "" {
		if e.RowIndex, err = strconv.Atoi(s); err != nil {
			return Entry{}, fmt.Errorf("parsing row_index %q: %w", s, err)
		}
	}
	if s := record[colTxnID]; s != "" {
		if e.TransactionID, err = strconv.ParseInt(s, 10, 64); err != nil {
			return Entry{}, fmt.Errorf("parsing transaction_id %q: %w", s, err)
		}
	}
	return e, nil
}

// Append writes entries to the log, creating the file and header if needed.
func (f *File) Append(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating audit log dir: %w", err)
	}

	needsHeader := false
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		needsHeader = true
	}

	out, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer out.Close()

	cw := csv.NewWriter(out)

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Read returns all entries from the log at path, or nil if it does not
// exist.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

// ForImport returns the entries belonging to one import reference.
func ForImport(entries []Entry, ref string) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.ImportRef == ref {
			out = append(out, e)
		}
	}
	return out
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading audit log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
