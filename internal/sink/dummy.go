package sink

import (
	"context"
	"sync"
	"time"
)

// Entry is one recorded AddEntry call, captured verbatim by DummySink.
type Entry struct {
	Table     string
	Timestamp time.Time
	Row       map[string]string
}

// DummySink is an in-memory SqlSink used for tests and for the
// interactive "no sink configured" mode: it never hits real storage,
// just records everything it is asked to do.
type DummySink struct {
	mu sync.Mutex

	opened  bool
	tables  map[string][]Column
	config  []ConfigSection
	entries []Entry
	logs    []string

	OpenErr    error
	AddEntryErr error
}

// NewDummySink returns a ready-to-use DummySink.
func NewDummySink() *DummySink {
	return &DummySink{tables: make(map[string][]Column)}
}

func (d *DummySink) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return d.OpenErr
	}
	d.opened = true
	return nil
}

func (d *DummySink) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	return nil
}

func (d *DummySink) EnsureTable(ctx context.Context, table string, columns []Column) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[table] = columns
	return nil
}

func (d *DummySink) Headers(table string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	cols, ok := d.tables[table]
	if !ok {
		return nil
	}
	headers := make([]string, 0, len(cols)+1)
	headers = append(headers, "TIMESTAMP")
	for _, c := range cols {
		headers = append(headers, c.Name)
	}
	return headers
}

func (d *DummySink) GetConfiguration(ctx context.Context) ([]ConfigSection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ConfigSection(nil), d.config...), nil
}

func (d *DummySink) SetConfiguration(ctx context.Context, sections []ConfigSection) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = append([]ConfigSection(nil), sections...)
	return nil
}

func (d *DummySink) AddEntry(ctx context.Context, table string, timestamp time.Time, row map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.AddEntryErr != nil {
		return d.AddEntryErr
	}
	copied := make(map[string]string, len(row))
	for k, v := range row {
		copied[k] = v
	}
	d.entries = append(d.entries, Entry{Table: table, Timestamp: timestamp, Row: copied})
	return nil
}

func (d *DummySink) Log(ctx context.Context, message string, isError bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logs = append(d.logs, message)
	return nil
}

func (d *DummySink) IsArchiver() bool { return false }

func (d *DummySink) Snapshot(ctx context.Context, path string) error { return nil }

func (d *DummySink) DeleteOlderThan(ctx context.Context, table string, horizon time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var kept []Entry
	for _, e := range d.entries {
		if (table == "" || e.Table == table) && e.Timestamp.Before(horizon) {
			continue
		}
		kept = append(kept, e)
	}
	d.entries = kept
	return nil
}

// Entries returns every recorded AddEntry call, in order.
func (d *DummySink) Entries() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Entry(nil), d.entries...)
}

// Logs returns every recorded Log message, in order.
func (d *DummySink) Logs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.logs...)
}

// IsOpen reports whether Open has succeeded and Close has not since
// been called.
func (d *DummySink) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}
