package monitor

import (
	"testing"

	"github.com/courtrace/agent/internal/model"
)

func slot(start string) model.Slot {
	return model.Slot{Start: start, End: start, Available: true}
}

func TestFindAssignmentWithinGapRequireAll(t *testing.T) {
	perUser := map[string][]model.Slot{
		"alice": {slot("19:00")},
		"bob":   {slot("19:30")},
	}
	assignment, ok := FindAssignment(perUser, 60, true)
	if !ok {
		t.Fatal("expected assignment within 60-minute gap")
	}
	if assignment["alice"].Start != "19:00" || assignment["bob"].Start != "19:30" {
		t.Fatalf("unexpected assignment: %+v", assignment)
	}
}

func TestFindAssignmentExceedsGapRequireAll(t *testing.T) {
	perUser := map[string][]model.Slot{
		"alice": {slot("07:00")},
		"bob":   {slot("21:00")},
	}
	_, ok := FindAssignment(perUser, 60, true)
	if ok {
		t.Fatal("expected no assignment: gap too large")
	}
}

func TestFindAssignmentPicksSmallestSpread(t *testing.T) {
	perUser := map[string][]model.Slot{
		"alice": {slot("19:00"), slot("20:00")},
		"bob":   {slot("19:10")},
	}
	assignment, ok := FindAssignment(perUser, 120, true)
	if !ok {
		t.Fatal("expected assignment")
	}
	if assignment["alice"].Start != "19:00" {
		t.Fatalf("expected the closer slot (19:00) to be chosen, got %+v", assignment)
	}
}

func TestFindAssignmentNotRequireAllAllowsPartial(t *testing.T) {
	perUser := map[string][]model.Slot{
		"alice": {slot("07:00")},
		"bob":   {slot("21:00")},
	}
	assignment, ok := FindAssignment(perUser, 60, false)
	if !ok {
		t.Fatal("expected a partial assignment when require_all is false")
	}
	if len(assignment) != 1 {
		t.Fatalf("expected single-user assignment, got %+v", assignment)
	}
}

func TestFindAssignmentNoAvailableSlots(t *testing.T) {
	unavailable := model.Slot{Start: "19:00", Available: false}
	perUser := map[string][]model.Slot{"alice": {unavailable}}
	_, ok := FindAssignment(perUser, 60, true)
	if ok {
		t.Fatal("expected no assignment when no slots are available")
	}
}
