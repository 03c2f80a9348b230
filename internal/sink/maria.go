package sink

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/ilguido/jidl/internal/datatype"
)

type mariaDialect struct{}

func (mariaDialect) Name() string { return "mariadb" }

func (mariaDialect) Quote(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

// MariaDB table and column names are case-insensitive on the common
// lower_case_table_names=1 setup this sink targets, so fold to lower.
func (mariaDialect) FoldCase(identifier string) string { return strings.ToLower(identifier) }

func (mariaDialect) ColumnType(dt datatype.DataType, size int) string {
	switch dt {
	case datatype.Boolean:
		return "TINYINT"
	case datatype.Integer, datatype.DoubleInteger, datatype.Byte, datatype.Word, datatype.DoubleWord:
		return "BIGINT"
	case datatype.Float, datatype.Real:
		return "DOUBLE"
	default:
		if size > 0 {
			return "VARCHAR(255)"
		}
		return "TEXT"
	}
}

func (mariaDialect) ListTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name NOT IN (?, ?)`,
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

func (mariaDialect) IsDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if me, ok := err.(*mysql.MySQLError); ok {
		mysqlErr = me
	}
	return mysqlErr != nil && mysqlErr.Number == 1062 // ER_DUP_ENTRY
}

// MariaDB backs the live logger only; snapshots are the sqlite
// archiver's job (see DESIGN.md for the rationale).
func (mariaDialect) SupportsSnapshot() bool { return false }

// NewMaria builds a SqlSink backed by MariaDB/MySQL over dsn, a
// standard go-sql-driver/mysql data source name.
func NewMaria(dsn string) SqlSink {
	open := func(ctx context.Context) (*sql.DB, error) {
		return sql.Open("mysql", dsn)
	}
	return newGenericSink(mariaDialect{}, open)
}
