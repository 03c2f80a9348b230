// Package archiver implements the calendar-driven retention service: on
// a weekly or monthly cadence it snapshots the sink (when the sink
// supports it) and deletes rows older than a retention horizon.
package archiver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ilguido/jidl/internal/apperror"
	"github.com/ilguido/jidl/internal/applog"
	"github.com/ilguido/jidl/internal/metrics"
	"github.com/ilguido/jidl/internal/sink"
)

const week = 7 * 24 * time.Hour

// DayOfWeek is the 1..7 (Monday..Sunday) numbering used by the
// dataarchiver configuration section.
type DayOfWeek int

const (
	Monday DayOfWeek = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// ParseDayOfWeek accepts the configuration file's MONDAY..SUNDAY names.
func ParseDayOfWeek(name string) (DayOfWeek, error) {
	switch name {
	case "MONDAY":
		return Monday, nil
	case "TUESDAY":
		return Tuesday, nil
	case "WEDNESDAY":
		return Wednesday, nil
	case "THURSDAY":
		return Thursday, nil
	case "FRIDAY":
		return Friday, nil
	case "SATURDAY":
		return Saturday, nil
	case "SUNDAY":
		return Sunday, nil
	default:
		return 0, apperror.Newf(apperror.CodeConfigInvalid, "unknown day of week %q", name)
	}
}

func (d DayOfWeek) timeWeekday() time.Weekday {
	if d == Sunday {
		return time.Sunday
	}
	return time.Weekday(int(d))
}

// Schedule is one archiving cadence.
type Schedule struct {
	Day       DayOfWeek
	Interval  int // weeks between runs, 1..maxRange; a monthly schedule range-checks it (1..12) but runs in the first week of every month
	UseMonths bool
}

func (s Schedule) maxRange() int {
	if s.UseMonths {
		return 12
	}
	return 52
}

func (s Schedule) validate() error {
	if s.Day < Monday || s.Day > Sunday {
		return apperror.Newf(apperror.CodeConfigInvalid, "invalid day of week %d", s.Day)
	}
	if s.Interval < 1 || s.Interval > s.maxRange() {
		return apperror.Newf(apperror.CodeConfigInvalid, "interval %d out of range [1,%d]", s.Interval, s.maxRange())
	}
	return nil
}

// Archiver runs one Schedule against a sink.SqlSink.
type Archiver struct {
	sink         sink.SqlSink
	snapshotPath string
	clock        func() time.Time

	mu       sync.Mutex
	schedule Schedule
	started  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds an Archiver over s, writing snapshots under snapshotPath
// (a dash and the run date are appended, e.g. "/data/jidl-2026-07-31").
func New(s sink.SqlSink, snapshotPath string) *Archiver {
	return &Archiver{sink: s, snapshotPath: snapshotPath, clock: time.Now}
}

// SetArchivingService installs sched, overwriting any existing one. It
// does not itself start the background loop; call Start for that.
func (a *Archiver) SetArchivingService(sched Schedule) error {
	if err := sched.validate(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.schedule = sched
	return nil
}

// Start launches the background loop. A sink that does not advertise
// IsArchiver() disables the archiver entirely: Start becomes a no-op.
// Idempotent while already running.
func (a *Archiver) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil
	}
	if !a.sink.IsArchiver() {
		return nil
	}

	a.stopCh = make(chan struct{})
	a.started = true
	a.wg.Add(1)
	go a.run(a.schedule, a.stopCh)
	return nil
}

// Stop requests orderly shutdown and waits up to 5 seconds for the
// background loop to exit. Idempotent.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	close(a.stopCh)
	a.started = false
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}
}

// IsRunning reports whether the background loop is active.
func (a *Archiver) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

func (a *Archiver) run(sched Schedule, stopCh chan struct{}) {
	defer a.wg.Done()

	now := a.clock()
	timer := time.NewTimer(firstFireTime(now, sched).Sub(now))
	defer timer.Stop()

	period := time.Duration(sched.Interval) * week
	if sched.UseMonths {
		period = week
	}

	for {
		select {
		case <-stopCh:
			return
		case fired := <-timer.C:
			outcome := "ok"
			if err := a.fire(context.Background(), sched, fired); err != nil {
				applog.Log.Warn("archiver run failed", "error", err)
				outcome = "error"
			}
			metrics.Get().ArchiverRunsTotal.WithLabelValues(outcome).Inc()
			timer.Reset(period)
		}
	}
}

func (a *Archiver) fire(ctx context.Context, sched Schedule, now time.Time) error {
	if sched.UseMonths && now.Day() > 7 {
		return nil
	}

	path := fmt.Sprintf("%s-%s", a.snapshotPath, now.Format("2006-01-02"))
	if err := a.sink.Snapshot(ctx, path); err != nil {
		return err
	}

	return a.sink.DeleteOlderThan(ctx, "", retentionHorizon(now, sched.UseMonths))
}

// firstFireTime returns the next occurrence of sched.Day at hour 0. For
// monthly schedules the result is further shifted to the first such
// occurrence on or after the 1st of the following month, which always
// lands within that month's first week.
func firstFireTime(now time.Time, sched Schedule) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	delta := (int(sched.Day.timeWeekday()) - int(now.Weekday()) + 7) % 7
	next := midnight.AddDate(0, 0, delta)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}

	if !sched.UseMonths {
		return next
	}

	nextMonthStart := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
	for next.Before(nextMonthStart) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// retentionHorizon returns the cutoff below which rows are deleted:
// now-7d for weekly schedules, now-(30+day-of-month)d for monthly ones.
func retentionHorizon(now time.Time, useMonths bool) time.Time {
	if !useMonths {
		return now.Add(-7 * 24 * time.Hour)
	}
	days := 30 + now.Day()
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}
