// Package cron schedules the wall-clock-exact daily booking attempts a
// Schedule job describes: a primary shot at a configured
// hour:minute:second, an optional warm-up shot fired slightly earlier so
// the HTTP client and session are already hot, and, when start_hours is
// configured, one additional parallel shot per listed hour instead of
// only the first.
//
// Grounded on threefoldtech-0-OS_research's pkg/provision/engine.go,
// which drives its reconciliation sweep off a robfig/cron/v3 schedule
// rather than a hand-rolled ticker; that library is adopted here for the
// same reason — wall-clock-exact daily firing in the local timezone is
// what a cron expression is for, and the teacher's own session/manager.go
// ticker loop is a worse fit for this than for its own "poll until
// done" use case.
package cron

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Shot is one scheduled booking attempt: the hour/minute/second it fires
// at and whether it is the warm-up shot (fired warmupOffsetSeconds
// early) rather than a primary attempt.
type Shot struct {
	Hour      int
	Minute    int
	Second    int
	IsWarmup  bool
	EntryID   cron.EntryID
}

// Runner schedules and fires Shots for a single Schedule job.
type Runner struct {
	cron    *cron.Cron
	fire    func(ctx context.Context, shot Shot)
	entries []Shot
}

// New builds a Runner. fire is invoked once per scheduled shot; the
// caller is responsible for resolving slots and submitting orders.
func New(fire func(ctx context.Context, shot Shot)) *Runner {
	return &Runner{
		cron: cron.New(cron.WithSeconds()),
		fire: fire,
	}
}

// Schedule registers one cron entry per hour in hours (or a single entry
// at hour if hours is empty), each an independent parallel shot against
// the same target, plus a warm-up entry offset warmupOffsetSeconds
// earlier than the earliest configured hour when warmupOffsetSeconds is
// positive. With debug set, no cron entry is registered: the warm-up (when
// warmupOffsetSeconds is positive) and then each shot fire once,
// synchronously, before Schedule returns, so a deployment can verify
// wiring without waiting for the real time to arrive.
func (r *Runner) Schedule(hour, minute, second int, hours []int, warmupOffsetSeconds int, debug bool) error {
	if len(hours) == 0 {
		hours = []int{hour}
	}
	earliest := hours[0]
	for _, h := range hours {
		if h < earliest {
			earliest = h
		}
	}

	hasWarmup := warmupOffsetSeconds > 0
	var warmup Shot
	if hasWarmup {
		wHour, wMinute, wSecond := offsetEarlier(earliest, minute, second, warmupOffsetSeconds)
		warmup = Shot{Hour: wHour, Minute: wMinute, Second: wSecond, IsWarmup: true}
	}

	if debug {
		// debug mode bypasses the scheduler entirely: fire exactly once,
		// warmup then each primary shot, synchronously, rather than
		// registering a recurring cron entry that would fire every minute.
		if hasWarmup {
			r.entries = append(r.entries, warmup)
			r.fire(context.Background(), warmup)
		}
		for _, h := range hours {
			shot := Shot{Hour: h, Minute: minute, Second: second}
			r.entries = append(r.entries, shot)
			r.fire(context.Background(), shot)
		}
		return nil
	}

	for _, h := range hours {
		shot := Shot{Hour: h, Minute: minute, Second: second}
		expr := cronExpr(h, minute, second)
		id, err := r.cron.AddFunc(expr, r.fireFunc(shot))
		if err != nil {
			return fmt.Errorf("cron: register shot for hour %d: %w", h, err)
		}
		shot.EntryID = id
		r.entries = append(r.entries, shot)
	}

	if hasWarmup {
		expr := cronExpr(warmup.Hour, warmup.Minute, warmup.Second)
		id, err := r.cron.AddFunc(expr, r.fireFunc(warmup))
		if err != nil {
			return fmt.Errorf("cron: register warm-up shot: %w", err)
		}
		warmup.EntryID = id
		r.entries = append(r.entries, warmup)
	}
	return nil
}

// Entries returns the shots registered by the most recent Schedule call.
func (r *Runner) Entries() []Shot { return append([]Shot(nil), r.entries...) }

func (r *Runner) fireFunc(shot Shot) func() {
	return func() {
		r.fire(context.Background(), shot)
	}
}

// cronExpr builds a 6-field (seconds-enabled) cron expression for a
// fixed daily hour:minute:second.
func cronExpr(hour, minute, second int) string {
	return fmt.Sprintf("%d %d %d * * *", second, minute, hour)
}

// offsetEarlier subtracts offsetSeconds from hour:minute:second,
// wrapping at day boundaries (a warm-up shot scheduled before midnight
// wraps to the previous day's hour, which is immaterial since only the
// time-of-day components are used to build a daily cron expression).
func offsetEarlier(hour, minute, second, offsetSeconds int) (int, int, int) {
	total := hour*3600 + minute*60 + second - offsetSeconds
	const day = 24 * 3600
	total = ((total % day) + day) % day
	return total / 3600, (total % 3600) / 60, total % 60
}

// Start begins firing scheduled shots in the background.
func (r *Runner) Start() { r.cron.Start() }

// Stop halts the scheduler and waits for any in-flight shot to return.
func (r *Runner) Stop() context.Context { return r.cron.Stop() }
