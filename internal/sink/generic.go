package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ilguido/jidl/internal/apperror"
)

// genericSink implements SqlSink against any database/sql driver,
// parameterized by a Dialect for the parts that vary by backend.
type genericSink struct {
	openFn   func(ctx context.Context) (*sql.DB, error)
	dialect  Dialect
	snapshot func(ctx context.Context, path string) error

	mu      sync.Mutex
	db      *sql.DB
	headers map[string][]string
}

func newGenericSink(dialect Dialect, openFn func(ctx context.Context) (*sql.DB, error)) *genericSink {
	return &genericSink{dialect: dialect, openFn: openFn, headers: make(map[string][]string)}
}

func (s *genericSink) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.openFn(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeSinkUnavailable, "open sink")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return apperror.Wrap(err, apperror.CodeSinkUnavailable, "ping sink")
	}
	s.db = db

	if err := s.ensureSystemTables(ctx); err != nil {
		db.Close()
		return err
	}

	tables, err := s.dialect.ListTables(ctx, db)
	if err != nil {
		db.Close()
		return apperror.Wrap(err, apperror.CodeSinkUnavailable, "list tables")
	}
	for _, table := range tables {
		cols, err := s.discoverColumns(ctx, table)
		if err != nil {
			db.Close()
			return err
		}
		s.headers[table] = cols
	}

	return nil
}

func (s *genericSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *genericSink) ensureSystemTables(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY, %s TEXT)",
			s.dialect.Quote(s.dialect.FoldCase(DiagnosticsTable)),
			s.dialect.Quote(s.dialect.FoldCase("TIMESTAMP")),
			s.dialect.Quote(s.dialect.FoldCase("MESSAGE"))),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY, %s TEXT)",
			s.dialect.Quote(s.dialect.FoldCase(ConfigurationTable)),
			s.dialect.Quote(s.dialect.FoldCase("ID")),
			s.dialect.Quote(s.dialect.FoldCase("DATA"))),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperror.Wrap(err, apperror.CodeSinkUnavailable, "create system table")
		}
	}
	return nil
}

func (s *genericSink) discoverColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1=0", s.dialect.Quote(table)))
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeSinkUnavailable, "discover header of "+table)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeSinkUnavailable, "discover header of "+table)
	}
	return cols, nil
}

func (s *genericSink) EnsureTable(ctx context.Context, table string, columns []Column) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	foldedTable := s.dialect.FoldCase(table)
	existing, known := s.headers[foldedTable]

	if !known {
		var sb strings.Builder
		sb.WriteString("CREATE TABLE ")
		sb.WriteString(s.dialect.Quote(foldedTable))
		sb.WriteString(" (")
		sb.WriteString(s.dialect.Quote(s.dialect.FoldCase("TIMESTAMP")))
		sb.WriteString(" TEXT")
		header := []string{s.dialect.FoldCase("TIMESTAMP")}
		for _, col := range columns {
			name := s.dialect.FoldCase(col.Name)
			sb.WriteString(", ")
			sb.WriteString(s.dialect.Quote(name))
			sb.WriteString(" ")
			sb.WriteString(s.dialect.ColumnType(col.Type, col.Size))
			header = append(header, name)
		}
		sb.WriteString(")")

		if _, err := s.db.ExecContext(ctx, sb.String()); err != nil {
			return apperror.Wrap(err, apperror.CodeSinkUnavailable, "create table "+table)
		}
		s.headers[foldedTable] = header
		return nil
	}

	present := make(map[string]bool, len(existing))
	for _, c := range existing {
		present[c] = true
	}

	for _, col := range columns {
		name := s.dialect.FoldCase(col.Name)
		if present[name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			s.dialect.Quote(foldedTable), s.dialect.Quote(name), s.dialect.ColumnType(col.Type, col.Size))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperror.Wrap(err, apperror.CodeSinkUnavailable, "alter table "+table)
		}
		s.headers[foldedTable] = append(s.headers[foldedTable], name)
	}

	return nil
}

func (s *genericSink) Headers(table string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.headers[s.dialect.FoldCase(table)]...)
}

func (s *genericSink) GetConfiguration(ctx context.Context) ([]ConfigSection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf("SELECT %s, %s FROM %s",
		s.dialect.Quote(s.dialect.FoldCase("ID")),
		s.dialect.Quote(s.dialect.FoldCase("DATA")),
		s.dialect.Quote(s.dialect.FoldCase(ConfigurationTable)))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeSinkUnavailable, "read configuration")
	}
	defer rows.Close()

	var sections []ConfigSection
	for rows.Next() {
		var sec ConfigSection
		if err := rows.Scan(&sec.ID, &sec.Data); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeSinkUnavailable, "scan configuration row")
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

func (s *genericSink) SetConfiguration(ctx context.Context, sections []ConfigSection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeSinkUnavailable, "begin configuration transaction")
	}

	table := s.dialect.Quote(s.dialect.FoldCase(ConfigurationTable))
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		_ = tx.Rollback()
		return apperror.Wrap(err, apperror.CodeSinkUnavailable, "clear configuration")
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)", table,
		s.dialect.Quote(s.dialect.FoldCase("ID")), s.dialect.Quote(s.dialect.FoldCase("DATA")))
	for _, sec := range sections {
		if _, err := tx.ExecContext(ctx, insert, sec.ID, sec.Data); err != nil {
			_ = tx.Rollback()
			return apperror.Wrap(err, apperror.CodeSinkUnavailable, "write configuration section "+sec.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperror.Wrap(err, apperror.CodeSinkUnavailable, "commit configuration")
	}
	return nil
}

func (s *genericSink) AddEntry(ctx context.Context, table string, timestamp time.Time, row map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	foldedTable := s.dialect.FoldCase(table)
	header, ok := s.headers[foldedTable]
	if !ok {
		return apperror.Newf(apperror.CodeBadArgument, "unknown table %q", table)
	}

	var cols []string
	var placeholders []string
	var args []any

	for _, col := range header {
		if col == s.dialect.FoldCase("TIMESTAMP") {
			cols = append(cols, s.dialect.Quote(col))
			placeholders = append(placeholders, "?")
			args = append(args, timestamp.UTC().Format(time.RFC3339Nano))
			continue
		}
		v, present := row[col]
		if !present {
			continue // absent value: column omitted, defaults to NULL
		}
		cols = append(cols, s.dialect.Quote(col))
		placeholders = append(placeholders, "?")
		args = append(args, v)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.Quote(foldedTable), strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return apperror.Wrap(err, apperror.CodeSinkUnavailable, "insert row into "+table)
	}
	return nil
}

func (s *genericSink) Log(ctx context.Context, message string, isError bool) error {
	if isError {
		message = strings.ReplaceAll(message, "'", "''")
	}

	ts := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.insertDiagnostics(ctx, ts, message); err == nil {
		return nil
	} else if !s.dialect.IsDuplicateKeyError(err) {
		return apperror.Wrap(err, apperror.CodeSinkUnavailable, "insert diagnostics row")
	}

	// Two log calls landed within the TIMESTAMP column's resolution;
	// disambiguate with a short uuid suffix and retry once.
	ts = ts + "-" + uuid.NewString()[:8]
	if err := s.insertDiagnostics(ctx, ts, message); err != nil {
		return apperror.Wrap(err, apperror.CodeSinkUnavailable, "insert diagnostics row after disambiguation")
	}
	return nil
}

func (s *genericSink) insertDiagnostics(ctx context.Context, ts, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)",
		s.dialect.Quote(s.dialect.FoldCase(DiagnosticsTable)),
		s.dialect.Quote(s.dialect.FoldCase("TIMESTAMP")),
		s.dialect.Quote(s.dialect.FoldCase("MESSAGE")))
	_, err := s.db.ExecContext(ctx, stmt, ts, message)
	return err
}

func (s *genericSink) IsArchiver() bool { return s.dialect.SupportsSnapshot() }

func (s *genericSink) Snapshot(ctx context.Context, path string) error {
	if !s.dialect.SupportsSnapshot() || s.snapshot == nil {
		return apperror.Newf(apperror.CodeBadArgument, "%s sink does not support snapshots", s.dialect.Name())
	}
	return s.snapshot(ctx, path)
}

func (s *genericSink) DeleteOlderThan(ctx context.Context, table string, horizon time.Time) error {
	s.mu.Lock()
	tables := []string{table}
	if table == "" {
		tables = tables[:0]
		for t := range s.headers {
			tables = append(tables, t)
		}
		tables = append(tables, s.dialect.FoldCase(DiagnosticsTable))
	}
	db := s.db
	s.mu.Unlock()

	cutoff := horizon.UTC().Format(time.RFC3339Nano)
	for _, t := range tables {
		stmt := fmt.Sprintf("DELETE FROM %s WHERE %s < ?",
			s.dialect.Quote(s.dialect.FoldCase(t)), s.dialect.Quote(s.dialect.FoldCase("TIMESTAMP")))
		if _, err := db.ExecContext(ctx, stmt, cutoff); err != nil {
			return apperror.Wrap(err, apperror.CodeSinkUnavailable, "delete from "+t)
		}
	}
	return nil
}
