package jobrunner

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/courtrace/agent/internal/model"
	"github.com/courtrace/agent/internal/monitor"
)

// autoBookingConfig is job.Config for a JobAutoBooking job: a
// priority-ordered set of fallback targets, per spec.md's
// AutoBookingTarget ("set processed in ascending priority").
type autoBookingConfig struct {
	Targets         []model.AutoBookingTarget `json:"targets"`
	IntervalSeconds int                       `json:"interval_seconds"`
}

// runAutoBooking ticks through every enabled target in ascending
// priority order. Each tick makes one booking attempt per target,
// falling through to the next target on failure and stopping at the
// first success; MaxAttempts (when positive) caps a target's attempts
// across all ticks, after which it is skipped.
func runAutoBooking(ctx context.Context, deps Deps, job model.Job) error {
	cfg, err := decodeConfig[autoBookingConfig](job.Config)
	if err != nil {
		return err
	}
	targets := append([]model.AutoBookingTarget(nil), cfg.Targets...)
	sort.Slice(targets, func(i, j int) bool { return targets[i].Priority < targets[j].Priority })

	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attemptCounts := make(map[int]int, len(targets))

	for {
		for i, t := range targets {
			if !t.Enabled {
				continue
			}
			if t.MaxAttempts > 0 && attemptCounts[i] >= t.MaxAttempts {
				continue
			}
			target := model.BookingTarget{
				PresetIndex: t.Preset.Index,
				StartHour:   firstOrZero(t.TimeSlots),
				UseAllDates: true,
			}
			attemptCounts[i]++
			ok, err := attemptAutoBooking(ctx, deps, target, t.TimeSlots)
			if err != nil {
				fmt.Fprintf(os.Stdout, "auto-booking target %d (%s) error: %v\n", i, t.Description, err)
				continue
			}
			if ok {
				fmt.Fprintf(os.Stdout, "auto-booking target %d (%s) succeeded\n", i, t.Description)
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func firstOrZero(xs []int) int {
	if len(xs) == 0 {
		return 0
	}
	return xs[0]
}

// attemptAutoBooking runs one resolve-query-assign-book cycle for a
// single AutoBookingTarget's preset, filtering candidate slots to its
// preferred hours when any are configured.
func attemptAutoBooking(ctx context.Context, deps Deps, target model.BookingTarget, preferredHours []int) (bool, error) {
	sessions, err := buildSessions(deps, target)
	if err != nil {
		return false, err
	}
	now := time.Now()
	resolved, err := sessions[0].Resolver.Resolve(ctx, target, now)
	if err != nil {
		return false, err
	}
	dates := resolved.Dates
	if len(dates) == 0 {
		dates = []string{now.Format("2006-01-02")}
	}

	perUserSlots := make(map[string][]model.Slot, len(sessions))
	for _, s := range sessions {
		var collected []model.Slot
		for _, date := range dates {
			slots, err := s.API.QuerySlots(ctx, resolved.VenueID, resolved.FieldTypeID, date, "", &resolved.FieldType)
			if err != nil {
				continue
			}
			collected = append(collected, slots...)
		}
		if len(preferredHours) > 0 {
			collected = filterSlotsByHours(collected, preferredHours)
		}
		perUserSlots[s.Key] = collected
	}

	assignment, ok := monitor.FindAssignment(perUserSlots, 0, false)
	if !ok {
		return false, nil
	}

	byUser := make(map[string]monitor.UserSession, len(sessions))
	for _, s := range sessions {
		byUser[s.Key] = s
	}
	succeededAny := false
	for userKey, slot := range assignment {
		u, ok := byUser[userKey]
		if !ok {
			continue
		}
		intent := model.OrderIntent{
			VenueID:      resolved.VenueID,
			VenueName:    resolved.VenueName,
			FieldTypeID:  resolved.FieldTypeID,
			FieldType:    resolved.FieldType.Name,
			Date:         dates[0],
			SlotID:       slot.SlotID,
			Start:        slot.Start,
			End:          slot.End,
			Price:        slot.Price,
			Sign:         slot.Sign,
			SubSiteID:    slot.SubSiteID,
			FieldName:    slot.FieldName,
			UserNickname: u.Nickname,
		}
		result, err := u.API.PlaceOrder(ctx, intent, u.Order)
		if err != nil {
			continue
		}
		if result.Success {
			succeededAny = true
		}
		if deps.Notify != nil {
			_ = deps.Notify.NotifyBookingResult(ctx, intent, result)
		}
		if deps.Audit != nil {
			_, _ = deps.Audit.InsertBookingRecord(ctx, model.BookingRecord{
				OrderID:       result.OrderID,
				PresetIndex:   target.PresetIndex,
				VenueName:     resolved.VenueName,
				FieldTypeName: resolved.FieldType.Name,
				Date:          dates[0],
				Start:         intent.Start,
				End:           intent.End,
				Status:        statusLabelFor(result.Success),
				Message:       result.Message,
				CreatedAt:     time.Now(),
			})
		}
	}
	return succeededAny, nil
}

func filterSlotsByHours(slots []model.Slot, hours []int) []model.Slot {
	allowed := make(map[int]struct{}, len(hours))
	for _, h := range hours {
		allowed[h] = struct{}{}
	}
	var out []model.Slot
	for _, s := range slots {
		t, err := time.Parse("15:04", s.Start)
		if err != nil {
			continue
		}
		if _, ok := allowed[t.Hour()]; ok {
			out = append(out, s)
		}
	}
	return out
}
