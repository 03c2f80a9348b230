// Package sink implements the SqlSink contract: append-only
// per-connection tables with dynamically discovered columns, the
// diagnostics and configuration tables, and dialect-specific
// identifier quoting. Concrete dialects live in sqlite.go, maria.go,
// and monet.go; dummy.go is the in-memory test double.
package sink

import (
	"context"
	"time"

	"github.com/ilguido/jidl/internal/datatype"
)

// DiagnosticsTable and ConfigurationTable are the two fixed, non-user
// table names every sink carries alongside one table per connection.
const (
	DiagnosticsTable  = "JIDL Diagnostics"
	ConfigurationTable = "JIDL Configuration"
)

// Column is one user-table column: a reader name typed per DataType.
type Column struct {
	Name string
	Type datatype.DataType
	Size int // meaningful only for Text
}

// ConfigSection is one parsed INI-style section persisted as a row of
// the configuration table.
type ConfigSection struct {
	ID   string
	Data string // the section, serialized back to INI text
}

// SqlSink is the capability the scheduler, the diagnostics logger, and
// the archiver all consume. Concrete variants differ only in
// identifier quoting, case folding, and driver wiring.
type SqlSink interface {
	// Open acquires the underlying store handle and discovers the
	// existing header (column set and order) of every user table.
	Open(ctx context.Context) error
	// Close releases the underlying store handle. Safe to call more
	// than once.
	Close() error

	// EnsureTable creates the named user table if absent, or adds any
	// column present in columns but missing from the existing table.
	// The TIMESTAMP column always comes first.
	EnsureTable(ctx context.Context, table string, columns []Column) error

	// GetConfiguration returns the persisted configuration sections, in
	// insertion order. Returns an empty slice if none have been stored.
	GetConfiguration(ctx context.Context) ([]ConfigSection, error)
	// SetConfiguration replaces the configuration table's rows with sections.
	SetConfiguration(ctx context.Context, sections []ConfigSection) error

	// AddEntry inserts one row into table. Keys in row absent from the
	// table's header are ignored; header columns absent from row are
	// left NULL. Fails with apperror.CodeSinkUnavailable if the insert
	// itself is rejected for a reason other than a malformed row.
	AddEntry(ctx context.Context, table string, timestamp time.Time, row map[string]string) error

	// Log inserts one diagnostics row. When isError is set, embedded
	// single quotes in message are doubled before the insert, so the
	// stored text carries them doubled. A failed insert is reported as
	// apperror.CodeSinkUnavailable whatever isError is.
	Log(ctx context.Context, message string, isError bool) error

	// IsArchiver reports whether this sink supports Snapshot.
	IsArchiver() bool
	// Snapshot copies the store to path, which the caller stamps with
	// the date. Only meaningful when IsArchiver() is true.
	Snapshot(ctx context.Context, path string) error
	// DeleteOlderThan removes rows of table (or of all user tables and
	// the diagnostics table when table == "") whose TIMESTAMP predates
	// horizon.
	DeleteOlderThan(ctx context.Context, table string, horizon time.Time) error

	// Headers returns the discovered column order for table, or nil if
	// the table is unknown.
	Headers(table string) []string
}
