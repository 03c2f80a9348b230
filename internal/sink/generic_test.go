package sink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilguido/jidl/internal/datatype"
)

func openTestSink(t *testing.T) SqlSink {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jidl.db")
	s := NewSQLite(path)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureTableCreatesThenAddsColumns(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureTable(ctx, "plc1", []Column{{Name: "temp", Type: datatype.Float}}))
	assert.Equal(t, []string{"TIMESTAMP", "temp"}, s.Headers("plc1"))

	require.NoError(t, s.EnsureTable(ctx, "plc1", []Column{
		{Name: "temp", Type: datatype.Float},
		{Name: "pressure", Type: datatype.Float},
	}))
	assert.Equal(t, []string{"TIMESTAMP", "temp", "pressure"}, s.Headers("plc1"))
}

func TestAddEntryRoundTrip(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureTable(ctx, "plc1", []Column{{Name: "temp", Type: datatype.Float}}))

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.AddEntry(ctx, "plc1", ts, map[string]string{"temp": "42.5"}))

	require.NoError(t, s.(*genericSink).Close())
	require.NoError(t, s.Open(ctx)) // reopen, discover header again
	assert.Equal(t, []string{"TIMESTAMP", "temp"}, s.Headers("plc1"))
}

func TestAddEntryUnknownTable(t *testing.T) {
	s := openTestSink(t)
	err := s.AddEntry(context.Background(), "missing", time.Now(), nil)
	require.Error(t, err)
}

func TestConfigurationRoundTrip(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	sections := []ConfigSection{{ID: "datalogger", Data: "k=v"}, {ID: "connA", Data: "type=json"}}
	require.NoError(t, s.SetConfiguration(ctx, sections))

	got, err := s.GetConfiguration(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, sections, got)

	require.NoError(t, s.SetConfiguration(ctx, []ConfigSection{{ID: "only", Data: "x"}}))
	got, err = s.GetConfiguration(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ConfigSection{{ID: "only", Data: "x"}}, got)
}

func TestLogEscapesQuotesOnlyWhenError(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	require.NoError(t, s.Log(ctx, "plain message", false))
	require.NoError(t, s.Log(ctx, "it's broken", true))

	db := s.(*genericSink).db
	count := func(message string) int {
		var n int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM "`+DiagnosticsTable+`" WHERE "MESSAGE" = ?`, message).Scan(&n))
		return n
	}
	assert.Equal(t, 1, count("plain message"))
	assert.Equal(t, 1, count("it''s broken"))
	assert.Equal(t, 0, count("it's broken"))
}

func TestDeleteOlderThan(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureTable(ctx, "plc1", []Column{{Name: "temp", Type: datatype.Float}}))

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.AddEntry(ctx, "plc1", old, map[string]string{"temp": "1"}))
	require.NoError(t, s.AddEntry(ctx, "plc1", recent, map[string]string{"temp": "2"}))

	require.NoError(t, s.DeleteOlderThan(ctx, "plc1", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSQLiteIsArchiver(t *testing.T) {
	s := openTestSink(t)
	assert.True(t, s.IsArchiver())
}
