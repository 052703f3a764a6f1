package cron

import (
	"context"
	"sync"
	"testing"
)

func TestCronExprDailyFixedTime(t *testing.T) {
	got := cronExpr(7, 30, 15)
	want := "15 30 7 * * *"
	if got != want {
		t.Fatalf("cronExpr(7,30,15) = %q, want %q", got, want)
	}
}

func TestOffsetEarlierWithinSameDay(t *testing.T) {
	hour, minute, second := offsetEarlier(7, 0, 0, 90)
	if hour != 6 || minute != 58 || second != 30 {
		t.Fatalf("expected 06:58:30, got %02d:%02d:%02d", hour, minute, second)
	}
}

func TestOffsetEarlierWrapsPastMidnight(t *testing.T) {
	hour, minute, second := offsetEarlier(0, 0, 30, 60)
	if hour != 23 || minute != 59 || second != 30 {
		t.Fatalf("expected wrap to 23:59:30, got %02d:%02d:%02d", hour, minute, second)
	}
}

func TestScheduleRegistersOneEntryPerStartHour(t *testing.T) {
	r := New(func(context.Context, Shot) {})
	if err := r.Schedule(7, 0, 0, []int{7, 8, 9}, 0, false); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	entries := r.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries for 3 start hours, got %d", len(entries))
	}
}

func TestScheduleAddsWarmupEntryBeforeEarliestHour(t *testing.T) {
	r := New(func(context.Context, Shot) {})
	if err := r.Schedule(7, 0, 0, []int{8, 7, 9}, 120, false); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	entries := r.Entries()
	if len(entries) != 4 {
		t.Fatalf("expected 3 shots + 1 warm-up entry, got %d", len(entries))
	}
	var warmups int
	for _, e := range entries {
		if e.IsWarmup {
			warmups++
			if e.Hour != 6 || e.Minute != 58 {
				t.Fatalf("expected warm-up at 06:58:00, got %02d:%02d:%02d", e.Hour, e.Minute, e.Second)
			}
		}
	}
	if warmups != 1 {
		t.Fatalf("expected exactly one warm-up entry, got %d", warmups)
	}
}

func TestScheduleWithoutStartHoursUsesSingleHour(t *testing.T) {
	r := New(func(context.Context, Shot) {})
	if err := r.Schedule(9, 15, 0, nil, 0, false); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(r.Entries()) != 1 {
		t.Fatalf("expected a single entry when start_hours is empty, got %d", len(r.Entries()))
	}
}

func TestDebugModeFiresWithoutWaitingADay(t *testing.T) {
	var mu sync.Mutex
	fired := 0
	r := New(func(context.Context, Shot) {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	if err := r.Schedule(7, 0, 0, nil, 0, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	entries := r.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected a single debug entry, got %d", len(entries))
	}
	if fired != 1 {
		t.Fatalf("expected debug mode to fire synchronously exactly once, got %d", fired)
	}
	if len(r.cron.Entries()) != 0 {
		t.Fatalf("expected debug mode to never register a recurring cron entry, got %d", len(r.cron.Entries()))
	}
}

func TestDebugModeFiresWarmupThenPrimaryShot(t *testing.T) {
	var mu sync.Mutex
	var order []bool
	r := New(func(_ context.Context, shot Shot) {
		mu.Lock()
		order = append(order, shot.IsWarmup)
		mu.Unlock()
	})
	if err := r.Schedule(7, 0, 0, nil, 120, true); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("expected exactly one warmup and one primary shot, got %d fires", len(order))
	}
	if !order[0] || order[1] {
		t.Fatalf("expected warmup to fire before the primary shot, got %+v", order)
	}
}
