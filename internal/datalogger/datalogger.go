// Package datalogger implements the tick-driven polling scheduler: it
// owns the connection list, drives each connection's read/write
// pipeline at its configured period, and funnels the results into a
// sink.SqlSink.
package datalogger

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/applog"
	"github.com/ilguido/jidl/internal/archiver"
	"github.com/ilguido/jidl/internal/connection"
	"github.com/ilguido/jidl/internal/metrics"
	"github.com/ilguido/jidl/internal/sink"
	"github.com/ilguido/jidl/internal/telemetry"
	"github.com/ilguido/jidl/internal/valuecache"
)

// FatalHandler is notified once when a SinkUnavailable error forces the
// logger to stop. It is a type alias (not a defined type) so *Logger
// satisfies ipc.LoggerControl's unnamed func(error) parameter.
type FatalHandler = func(error)

// Logger owns one connection set, one sink, and an optional archiver.
// At most one scheduler goroutine runs per Logger at a time.
type Logger struct {
	Name        string
	WorkingDir  string
	Connections []*connection.Connection
	Sink        sink.SqlSink
	Archiver    *archiver.Archiver // nil if none configured

	mu           sync.Mutex
	running      bool
	tickStep     time.Duration
	counter      int64
	stopCh       chan struct{}
	wg           sync.WaitGroup
	fatalHandler FatalHandler

	cache valuecache.Cache // nil means fall back to reading Connections directly
}

// Option configures an optional Logger dependency not required for a
// minimal logger. WithValueCache is the only Option provided.
type Option func(*Logger)

// WithValueCache makes the logger publish every tick's decoded rows to
// cache and answer Value lookups from it instead of walking Connections.
func WithValueCache(cache valuecache.Cache) Option {
	return func(l *Logger) { l.cache = cache }
}

// New validates workingDir and the connection name set and constructs
// a Logger. The sink is not opened yet; Start does that.
func New(name, workingDir string, connections []*connection.Connection, s sink.SqlSink, arch *archiver.Archiver, opts ...Option) (*Logger, error) {
	info, err := os.Stat(workingDir)
	if err != nil || !info.IsDir() {
		return nil, apperror.Newf(apperror.CodeConfigInvalid, "working directory %q does not exist", workingDir)
	}

	seen := make(map[string]bool, len(connections))
	for _, c := range connections {
		if seen[c.Name] {
			return nil, apperror.Newf(apperror.CodeBadArgument, "duplicate connection name %q", c.Name)
		}
		seen[c.Name] = true
	}

	l := &Logger{Name: name, WorkingDir: workingDir, Connections: connections, Sink: s, Archiver: arch}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Start opens the sink, ensures every connection's table exists,
// selects the tick resolution, and begins ticking. Idempotent while
// already running.
func (l *Logger) Start(fatalHandler FatalHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}

	ctx := context.Background()
	if err := l.Sink.Open(ctx); err != nil {
		return apperror.Wrap(err, apperror.CodeSinkUnavailable, "logger not ready: sink unavailable")
	}

	for _, c := range l.Connections {
		columns := make([]sink.Column, 0, len(c.Readers))
		for _, r := range c.Readers {
			columns = append(columns, sink.Column{Name: r.Name, Type: r.Type, Size: r.Size})
		}
		if err := l.Sink.EnsureTable(ctx, c.Name, columns); err != nil {
			return err
		}
	}

	l.tickStep = tickResolution(l.Connections)
	l.counter = 0
	l.fatalHandler = fatalHandler
	l.stopCh = make(chan struct{})
	l.running = true

	if l.Archiver != nil {
		if err := l.Archiver.Start(); err != nil {
			applog.Log.Warn("archiver failed to start", "error", err)
		}
	}

	l.wg.Add(1)
	go l.run()
	return nil
}

// Stop requests orderly shutdown, waits up to a 3 s grace period for
// in-flight tasks, disconnects every connection, and stops the
// archiver. Idempotent.
func (l *Logger) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	close(l.stopCh)
	l.running = false
	l.mu.Unlock()

	if l.Archiver != nil {
		l.Archiver.Stop()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
	}

	for _, c := range l.Connections {
		c.Disconnect()
	}
}

// Status reports whether the ticker is armed.
func (l *Logger) Status() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Value looks up the latest value of varName on the named connection,
// satisfying ipc.ValueSource. When a value cache is configured it is
// consulted first; a miss there still falls back to walking
// Connections, so Value keeps working before the cache has seen a tick.
func (l *Logger) Value(connectionName, varName string) (any, bool) {
	if l.cache != nil {
		if v, ok := l.cache.Value(context.Background(), connectionName, varName); ok {
			return v, true
		}
	}
	for _, c := range l.Connections {
		if c.Name == connectionName {
			return c.Value(varName)
		}
	}
	return nil, false
}

func tickResolution(conns []*connection.Connection) time.Duration {
	for _, c := range conns {
		if c.SampleTicks < 10 {
			return 100 * time.Millisecond
		}
	}
	return time.Second
}

func (l *Logger) run() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.tickStep)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.tick(context.Background())
		}
	}
}

// tick dispatches one round of read tasks behind a completion barrier,
// then fires write tasks without waiting for them.
func (l *Logger) tick(ctx context.Context) {
	metrics.Get().TicksTotal.Inc()
	for _, c := range l.Connections {
		if ts := c.LastTimestamp(); !ts.IsZero() {
			metrics.Get().LastReadAge.WithLabelValues(c.Name).Set(time.Since(ts).Seconds())
		}
	}
	ctx, span := telemetry.StartTick(ctx, l.Name, l.counter)
	defer telemetry.End(span, nil)

	var due []*connection.Connection
	for _, c := range l.Connections {
		if l.counter%int64(c.SampleTicks) == 0 {
			due = append(due, c)
		}
	}
	l.counter += int64(l.tickStep / (100 * time.Millisecond))

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range due {
		if len(c.Readers) == 0 {
			continue
		}
		c := c
		g.Go(func() error {
			l.readTask(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range due {
		if !c.IsWriteable() {
			continue
		}
		c := c
		go l.writeTask(context.Background(), c)
	}
}

// readTask advances one connection's state machine by exactly one
// step: read if already CONNECTED, else attempt the single next
// transition (connect or initialize) and defer reading to a later tick.
func (l *Logger) readTask(ctx context.Context, c *connection.Connection) {
	ctx, span := telemetry.StartRead(ctx, c.Name)
	defer func() { telemetry.End(span, nil) }()

	switch c.Status() {
	case connection.Connected:
		// fall through to the read below
	case connection.Initialized, connection.Disconnected:
		if err := c.ConnectDevice(ctx); err != nil {
			l.logDiagnostic(ctx, fmt.Sprintf("connect failed for %s: %v", c.Name, err), true)
		}
		return
	case connection.Uninitialized:
		if err := c.Initialize(); err != nil {
			l.logDiagnostic(ctx, fmt.Sprintf("initialize failed for %s: %v", c.Name, err), true)
		}
		return
	default:
		return
	}

	m := metrics.Get()
	started := time.Now()
	row, err := c.Read(ctx)
	m.ReadDuration.WithLabelValues(c.Name).Observe(time.Since(started).Seconds())
	if err != nil {
		m.ReadsTotal.WithLabelValues(c.Name, "error").Inc()
		m.ConnectionStatus.WithLabelValues(c.Name).Set(0)
		c.Disconnect()
		l.logDiagnostic(ctx, fmt.Sprintf("read failed for %s: %v", c.Name, err), true)
		return
	}
	m.ReadsTotal.WithLabelValues(c.Name, "ok").Inc()
	m.ConnectionStatus.WithLabelValues(c.Name).Set(1)
	m.LastReadAge.WithLabelValues(c.Name).Set(0)

	if l.cache != nil {
		if err := l.cache.Publish(ctx, c.Name, c.ValueRow()); err != nil {
			applog.Log.Warn("failed to publish value cache row", "connection", c.Name, "error", err)
		}
	}

	if err := l.Sink.AddEntry(ctx, c.Name, time.Now(), row); err != nil {
		m.SinkInserts.WithLabelValues(c.Name, "error").Inc()
		if apperror.Code(err) == apperror.CodeSinkUnavailable {
			l.triggerFatal(err)
			return
		}
		l.logDiagnostic(ctx, fmt.Sprintf("addEntry failed for %s: %v", c.Name, err), true)
		return
	}
	m.SinkInserts.WithLabelValues(c.Name, "ok").Inc()
}

func (l *Logger) writeTask(ctx context.Context, c *connection.Connection) {
	m := metrics.Get()
	errs := c.Write(ctx)
	if len(errs) == 0 {
		m.WritesTotal.WithLabelValues(c.Name, "ok").Inc()
		return
	}
	for _, err := range errs {
		m.WritesTotal.WithLabelValues(c.Name, "error").Inc()
		l.logDiagnostic(ctx, fmt.Sprintf("write failed for %s: %v", c.Name, err), true)
	}
}

func (l *Logger) logDiagnostic(ctx context.Context, message string, isError bool) {
	if err := l.Sink.Log(ctx, message, isError); err != nil {
		if apperror.Code(err) == apperror.CodeSinkUnavailable {
			l.triggerFatal(err)
			return
		}
		applog.Log.Warn("failed to write diagnostics row", "error", err)
	}
}

// triggerFatal notifies the fatal handler and stops the logger
// asynchronously: synchronous Stop would deadlock readTask's caller,
// which is blocked on the same tick's completion barrier.
func (l *Logger) triggerFatal(err error) {
	if l.fatalHandler != nil {
		l.fatalHandler(err)
	}
	go l.Stop()
}
