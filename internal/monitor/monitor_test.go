package monitor

import (
	"testing"
	"time"

	"github.com/courtrace/agent/internal/model"
)

func TestWithinOperatingWindowNoWindowAlwaysActive(t *testing.T) {
	state := &model.MonitorState{}
	if !withinOperatingWindow(state, time.Date(2026, 7, 31, 3, 0, 0, 0, time.UTC)) {
		t.Fatal("expected no configured window to always be active")
	}
}

func TestWithinOperatingWindowSimpleRange(t *testing.T) {
	state := &model.MonitorState{OperatingWindowStart: 6, OperatingWindowEnd: 22}
	if !withinOperatingWindow(state, time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)) {
		t.Fatal("expected noon to fall within a 6-22 window")
	}
	if withinOperatingWindow(state, time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC)) {
		t.Fatal("expected 23:00 to fall outside a 6-22 window")
	}
}

func TestWithinOperatingWindowWrapsMidnight(t *testing.T) {
	state := &model.MonitorState{OperatingWindowStart: 22, OperatingWindowEnd: 6}
	if !withinOperatingWindow(state, time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC)) {
		t.Fatal("expected 23:00 to fall within a wrapping 22-6 window")
	}
	if !withinOperatingWindow(state, time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC)) {
		t.Fatal("expected 02:00 to fall within a wrapping 22-6 window")
	}
	if withinOperatingWindow(state, time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)) {
		t.Fatal("expected noon to fall outside a wrapping 22-6 window")
	}
}

func TestFilterByPreferredHours(t *testing.T) {
	slots := []model.Slot{{Start: "19:00"}, {Start: "20:00"}, {Start: "21:00"}}
	out := filterByPreferredHours(slots, []int{20})
	if len(out) != 1 || out[0].Start != "20:00" {
		t.Fatalf("expected only the 20:00 slot, got %+v", out)
	}
}

func TestFilterByPreferredHoursEmptyMeansNoFilter(t *testing.T) {
	slots := []model.Slot{{Start: "19:00"}, {Start: "20:00"}}
	out := filterByPreferredHours(slots, nil)
	if len(out) != 2 {
		t.Fatalf("expected no filtering with empty preferred hours, got %+v", out)
	}
}

func TestFilterDatesByPreferredDays(t *testing.T) {
	// 2026-08-01 is a Saturday.
	dates := []string{"2026-08-01", "2026-08-03"}
	out := filterDatesByPreferredDays(dates, []int{6})
	if len(out) != 1 || out[0] != "2026-08-01" {
		t.Fatalf("expected only the Saturday date, got %+v", out)
	}
}

func TestEligibleUsersFiltersByTargetAndExclude(t *testing.T) {
	r := New([]UserSession{{Key: "alice"}, {Key: "bob"}, {Key: "carol"}}, nil)
	target := model.BookingTarget{TargetUsers: []string{"alice", "bob"}, ExcludeUsers: []string{"bob"}}
	got := r.eligibleUsers(target)
	if len(got) != 1 || got[0].Key != "alice" {
		t.Fatalf("expected only alice to remain eligible, got %+v", got)
	}
}

func TestEligibleUsersNoFiltersReturnsAll(t *testing.T) {
	r := New([]UserSession{{Key: "alice"}, {Key: "bob"}}, nil)
	got := r.eligibleUsers(model.BookingTarget{})
	if len(got) != 2 {
		t.Fatalf("expected all users eligible with no filters, got %+v", got)
	}
}
