package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/catalog"
	"github.com/courtrace/agent/internal/model"
)

func TestResolveDatesPrefersFixedDates(t *testing.T) {
	target := model.BookingTarget{FixedDates: []string{"2026-08-01"}, DateOffsets: []int{1, 2}}
	got := resolveDates(target, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))
	if len(got) != 1 || got[0] != "2026-08-01" {
		t.Fatalf("unexpected dates: %v", got)
	}
}

func TestResolveDatesExpandsOffsets(t *testing.T) {
	target := model.BookingTarget{DateOffsets: []int{0, 1, 2}}
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	got := resolveDates(target, now)
	want := []string{"2026-07-31", "2026-08-01", "2026-08-02"}
	if len(got) != len(want) {
		t.Fatalf("unexpected dates: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("date %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestResolveDatesUseAllDatesReturnsEmpty(t *testing.T) {
	target := model.BookingTarget{UseAllDates: true, DateOffsets: []int{1}}
	got := resolveDates(target, time.Now())
	if got != nil {
		t.Fatalf("expected nil dates for use_all_dates, got %v", got)
	}
}

func TestResolveWithNoSelectorIsConfigError(t *testing.T) {
	r := New(nil, catalog.New(nil, time.Minute))
	_, err := r.Resolve(context.Background(), model.BookingTarget{}, time.Now())
	if err == nil {
		t.Fatal("expected error for target with no selector")
	}
	if !errors.Is(err, bookingerr.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
