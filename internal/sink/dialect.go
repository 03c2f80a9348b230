package sink

import (
	"context"
	"database/sql"

	"github.com/ilguido/jidl/internal/datatype"
)

// Dialect captures everything that varies between concrete SqlSink
// backends: identifier quoting, case folding, column typing, table
// introspection, duplicate-key detection, and snapshot support.
type Dialect interface {
	Name() string
	// Quote renders identifier as a dialect-quoted SQL identifier.
	Quote(identifier string) string
	// FoldCase normalizes identifier the way this dialect stores it
	// (lowercase-folding dialects must apply the same fold on both
	// write and read paths).
	FoldCase(identifier string) string
	// ColumnType renders the SQL column type for a logical DataType,
	// honoring a dialect's own sizing conventions for Text.
	ColumnType(dt datatype.DataType, size int) string
	// ListTables returns the existing user table names (excluding the
	// diagnostics and configuration tables).
	ListTables(ctx context.Context, db *sql.DB) ([]string, error)
	// IsDuplicateKeyError reports whether err is this driver's signal
	// for a primary-key collision.
	IsDuplicateKeyError(err error) bool
	// SupportsSnapshot reports whether this dialect can produce a
	// file-level backup copy of the store.
	SupportsSnapshot() bool
}
