package facade

import (
	"testing"
	"time"

	"github.com/courtrace/agent/internal/model"
)

func TestParseOrderDateOffset(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	date, err := parseOrderDate("1", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if date != "2026-03-02" {
		t.Fatalf("expected 2026-03-02, got %s", date)
	}
}

func TestParseOrderDateExplicit(t *testing.T) {
	date, err := parseOrderDate("2026-05-20", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if date != "2026-05-20" {
		t.Fatalf("expected passthrough, got %s", date)
	}
}

func TestParseOrderDateInvalid(t *testing.T) {
	if _, err := parseOrderDate("not-a-date", time.Now()); err == nil {
		t.Fatal("expected error for invalid date")
	}
}

func TestParseOrderTimeVariants(t *testing.T) {
	cases := map[string]struct {
		want     string
		wantHour int
	}{
		"9":     {"09:00", 9},
		"18":    {"18:00", 18},
		"09:30": {"09:30", 9},
	}
	for in, want := range cases {
		got, hour, err := parseOrderTime(in)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", in, err)
		}
		if got != want.want || hour != want.wantHour {
			t.Fatalf("%s: expected (%s, %d), got (%s, %d)", in, want.want, want.wantHour, got, hour)
		}
	}
}

func TestParseOrderTimeInvalid(t *testing.T) {
	if _, _, err := parseOrderTime("25:00"); err == nil {
		t.Fatal("expected error for out-of-range hour")
	}
	if _, _, err := parseOrderTime(""); err == nil {
		t.Fatal("expected error for empty time")
	}
}

func TestMergeTargetOverlaysSelector(t *testing.T) {
	base := &model.BookingTarget{PresetIndex: 1, TargetUsers: []string{"alice"}}
	merged := mergeTarget(base, 0, "venue-2", "field-3")
	if merged.PresetIndex != 1 {
		t.Fatalf("expected base preset index preserved, got %d", merged.PresetIndex)
	}
	if merged.VenueID != "venue-2" || merged.FieldTypeID != "field-3" {
		t.Fatalf("expected overlay applied, got %+v", merged)
	}
	if len(merged.TargetUsers) != 1 || merged.TargetUsers[0] != "alice" {
		t.Fatalf("expected base target users preserved, got %+v", merged.TargetUsers)
	}
}

func TestMergeTargetNilBase(t *testing.T) {
	merged := mergeTarget(nil, 2, "", "")
	if merged.PresetIndex != 2 {
		t.Fatalf("expected preset index 2, got %d", merged.PresetIndex)
	}
}
