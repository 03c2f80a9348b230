package sink

import (
	"context"
	"database/sql"
	"io"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/datatype"
)

type sqliteDialect struct {
	path string
}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// sqlite is case-sensitive for quoted identifiers, so no folding is
// applied beyond what the caller already passes in.
func (sqliteDialect) FoldCase(identifier string) string { return identifier }

func (sqliteDialect) ColumnType(dt datatype.DataType, size int) string {
	switch dt {
	case datatype.Boolean, datatype.Integer, datatype.DoubleInteger, datatype.Byte, datatype.Word, datatype.DoubleWord:
		return "INTEGER"
	case datatype.Float, datatype.Real:
		return "REAL"
	default:
		return "TEXT"
	}
}

func (sqliteDialect) ListTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT IN (?, ?)`,
		DiagnosticsTable, ConfigurationTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (sqliteDialect) IsDuplicateKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (sqliteDialect) SupportsSnapshot() bool { return true }

// NewSQLite builds a SqlSink backed by a file-based sqlite database at
// path. The file is created on first Open if absent.
func NewSQLite(path string) SqlSink {
	dialect := sqliteDialect{path: path}
	open := func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1) // sqlite serializes writers anyway
		return db, nil
	}
	s := newGenericSink(dialect, open)
	s.snapshot = sqliteSnapshot(path)
	return s
}

func sqliteSnapshot(path string) func(ctx context.Context, dst string) error {
	return func(ctx context.Context, dst string) error {
		src, err := os.Open(path)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeSinkUnavailable, "open sqlite file for snapshot")
		}
		defer src.Close()

		out, err := os.Create(dst)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeSinkUnavailable, "create snapshot file")
		}
		defer out.Close()

		if _, err := io.Copy(out, src); err != nil {
			return apperror.Wrap(err, apperror.CodeSinkUnavailable, "copy snapshot")
		}
		return nil
	}
}
