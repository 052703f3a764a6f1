package jobrunner

import (
	"testing"

	"github.com/courtrace/agent/internal/model"
)

func TestDecodeConfigRoundTrip(t *testing.T) {
	raw := map[string]any{
		"target":           map[string]any{"venue_id": "v9"},
		"interval_seconds": float64(60),
		"auto_book":        true,
	}
	state, err := decodeConfig[model.MonitorState](raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Target.VenueID != "v9" || state.IntervalSeconds != 60 || !state.AutoBook {
		t.Fatalf("unexpected decode: %+v", state)
	}
}

func TestLoadJobMissingFile(t *testing.T) {
	if _, err := LoadJob(t.TempDir(), "missing-job"); err == nil {
		t.Fatal("expected error for missing jobs file")
	}
}

func TestMatchesHour(t *testing.T) {
	if !matchesHour("09:30", 9) {
		t.Fatal("expected 09:30 to match hour 9")
	}
	if matchesHour("10:00", 9) {
		t.Fatal("expected 10:00 to not match hour 9")
	}
	if matchesHour("not-a-time", 9) {
		t.Fatal("expected unparseable time to not match")
	}
}

func TestFilterSlotsByHours(t *testing.T) {
	slots := []model.Slot{
		{Start: "09:00"},
		{Start: "10:00"},
		{Start: "11:00"},
	}
	out := filterSlotsByHours(slots, []int{9, 11})
	if len(out) != 2 {
		t.Fatalf("expected 2 matching slots, got %d", len(out))
	}
}
