package sink

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/MonetDB/MonetDB-Go"

	"github.com/ilguido/jidl/internal/datatype"
)

type monetDialect struct{}

func (monetDialect) Name() string { return "monetdb" }

func (monetDialect) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// MonetDB folds unquoted identifiers to lowercase internally; store
// everything lowercase so introspection and writes agree.
func (monetDialect) FoldCase(identifier string) string { return strings.ToLower(identifier) }

func (monetDialect) ColumnType(dt datatype.DataType, size int) string {
	switch dt {
	case datatype.Boolean:
		return "BOOLEAN"
	case datatype.Integer, datatype.DoubleInteger, datatype.Byte, datatype.Word, datatype.DoubleWord:
		return "BIGINT"
	case datatype.Float, datatype.Real:
		return "DOUBLE"
	default:
		return "CLOB"
	}
}

func (monetDialect) ListTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sys.tables WHERE system = false AND name NOT IN (?, ?)`,
		strings.ToLower(DiagnosticsTable), strings.ToLower(ConfigurationTable))
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

func (monetDialect) IsDuplicateKeyError(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "DUPLICATE")
}

// MonetDB backs the analytical archive, not the file-snapshot path.
func (monetDialect) SupportsSnapshot() bool { return false }

// NewMonet builds a SqlSink backed by MonetDB over dsn, a
// MonetDB-Go data source name.
func NewMonet(dsn string) SqlSink {
	open := func(ctx context.Context) (*sql.DB, error) {
		return sql.Open("monetdb", dsn)
	}
	return newGenericSink(monetDialect{}, open)
}
