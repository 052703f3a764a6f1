package monitor

import (
	"sort"
	"strconv"
	"strings"

	"github.com/courtrace/agent/internal/model"
)

// candidate is one (user, slot) pairing considered by the assignment
// search, with the slot's start time normalized to minutes-since-midnight
// for spread comparison.
type candidate struct {
	user      string
	slot      model.Slot
	startMins int
}

// Assignment maps each participating user to the slot selected for them.
type Assignment map[string]model.Slot

// startMinutes parses a "HH:MM" start time into minutes since midnight.
// Unparseable times are excluded from the search entirely.
func startMinutes(start string) (int, bool) {
	hourStr, minStr, ok := strings.Cut(start, ":")
	if !ok {
		return 0, false
	}
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return 0, false
	}
	min, err := strconv.Atoi(minStr)
	if err != nil {
		return 0, false
	}
	return hour*60 + min, true
}

// FindAssignment searches for a selection of one available slot per user
// in perUserSlots such that every selected slot's start time falls
// within maxGapMinutes of every other selected slot's start time.
// Implements spec's "require_all_users_success + max_time_gap_hours"
// multi-user assignment search (§4.8.1): group candidates by user, then
// find an assignment whose pairwise start-time spread is within the
// configured gap.
//
// Returns the assignment with the smallest spread found, and whether any
// valid assignment exists at all. When requireAll is false, any
// non-empty subset assignment covering at least one user is acceptable
// and the largest-covered, smallest-spread assignment is returned.
func FindAssignment(perUserSlots map[string][]model.Slot, maxGapMinutes int, requireAll bool) (Assignment, bool) {
	var candidates []candidate
	for user, slots := range perUserSlots {
		for _, slot := range slots {
			if !slot.Available {
				continue
			}
			mins, ok := startMinutes(slot.Start)
			if !ok {
				continue
			}
			candidates = append(candidates, candidate{user: user, slot: slot, startMins: mins})
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].startMins < candidates[j].startMins })

	totalUsers := len(perUserSlots)
	var best Assignment
	bestSpread := -1
	bestCoverage := 0

	for lo := 0; lo < len(candidates); lo++ {
		seen := map[string]candidate{}
		for hi := lo; hi < len(candidates); hi++ {
			c := candidates[hi]
			if _, exists := seen[c.user]; !exists {
				seen[c.user] = c
			}
			coverage := len(seen)
			if requireAll && coverage < totalUsers {
				continue
			}
			if coverage == 0 {
				continue
			}
			spread := candidates[hi].startMins - candidates[lo].startMins
			if spread > maxGapMinutes {
				break
			}
			if coverage > bestCoverage || (coverage == bestCoverage && (bestSpread == -1 || spread < bestSpread)) {
				bestCoverage = coverage
				bestSpread = spread
				best = make(Assignment, len(seen))
				for u, c := range seen {
					best[u] = c.slot
				}
			}
		}
	}

	if best == nil {
		return nil, false
	}
	if requireAll && bestCoverage < totalUsers {
		return nil, false
	}
	return best, true
}
