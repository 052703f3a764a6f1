package facade

import (
	"testing"
	"time"

	"github.com/courtrace/agent/internal/model"
)

func TestToConfigFromConfigRoundTrip(t *testing.T) {
	state := model.MonitorState{
		Target:          model.BookingTarget{VenueID: "v1"},
		IntervalSeconds: 45,
		AutoBook:        true,
	}
	cfg, err := toConfig(state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := fromConfig[model.MonitorState](cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Target.VenueID != "v1" || got.IntervalSeconds != 45 || !got.AutoBook {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestNextDailyRunTodayNotYetPassed(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	next := nextDailyRun(now, 9, 0, 0)
	want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestNextDailyRunAlreadyPassedRollsToTomorrow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	next := nextDailyRun(now, 9, 0, 0)
	want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}
