package jobrunner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/courtrace/agent/internal/cron"
	"github.com/courtrace/agent/internal/model"
	"github.com/courtrace/agent/internal/monitor"
)

// runSchedule decodes job.Config into a model.ScheduleState and fires a
// single multi-user booking attempt at each configured wall-clock shot,
// per spec.md §4.9's daily-exact-time booking attempt.
func runSchedule(ctx context.Context, deps Deps, job model.Job) error {
	state, err := decodeConfig[model.ScheduleState](job.Config)
	if err != nil {
		return err
	}
	sessions, err := buildSessions(deps, state.Target)
	if err != nil {
		return err
	}

	runner := cron.New(func(shotCtx context.Context, shot cron.Shot) {
		if shot.IsWarmup {
			warmUp(shotCtx, sessions, state.Target)
			return
		}
		if err := fireSchedule(shotCtx, deps, sessions, &state, shot); err != nil {
			fmt.Fprintf(os.Stdout, "schedule shot error: %v\n", err)
		}
	})

	warmupOffsetSeconds := state.WarmupOffsetSeconds
	if warmupOffsetSeconds <= 0 {
		warmupOffsetSeconds = model.DefaultWarmupOffsetSeconds
	}
	if err := runner.Schedule(state.Hour, state.Minute, state.Second, state.StartHours, warmupOffsetSeconds, deps.Cfg.CronDebug); err != nil {
		return err
	}
	runner.Start()
	<-ctx.Done()
	select {
	case <-runner.Stop().Done():
	case <-time.After(5 * time.Second):
	}
	return nil
}

// warmUp issues a harmless Ping slightly ahead of the real shot so the
// HTTP client and cookie jar are already warmed up when the real
// attempt fires, per cron.Shot's IsWarmup field.
func warmUp(ctx context.Context, sessions []monitor.UserSession, _ model.BookingTarget) {
	for _, s := range sessions {
		s.API.Ping(ctx)
	}
}

// fireSchedule runs one booking attempt for a single configured shot
// hour: find the best multi-user assignment across preferred start hour
// matches and place one order per assigned user, recording results.
func fireSchedule(ctx context.Context, deps Deps, sessions []monitor.UserSession, state *model.ScheduleState, shot cron.Shot) error {
	now := time.Now()
	date := now.AddDate(0, 0, state.DateOffset).Format("2006-01-02")

	resolved, err := sessions[0].Resolver.Resolve(ctx, state.Target, now)
	if err != nil {
		return err
	}

	perUserSlots := make(map[string][]model.Slot, len(sessions))
	for _, s := range sessions {
		slots, err := s.API.QuerySlots(ctx, resolved.VenueID, resolved.FieldTypeID, date, "", &resolved.FieldType)
		if err != nil {
			continue
		}
		var matched []model.Slot
		for _, slot := range slots {
			if matchesHour(slot.Start, shot.Hour) {
				matched = append(matched, slot)
			}
		}
		perUserSlots[s.Key] = matched
	}

	state.RunCount++
	maxGapMinutes := int(state.MaxTimeGapHours * 60)
	assignment, ok := monitor.FindAssignment(perUserSlots, maxGapMinutes, state.RequireAllUsersSuccess)
	if !ok {
		return nil
	}

	byUser := make(map[string]monitor.UserSession, len(sessions))
	for _, s := range sessions {
		byUser[s.Key] = s
	}
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
			Date:         date,
			SlotID:       slot.SlotID,
			Start:        slot.Start,
			End:          slot.End,
			Price:        slot.Price,
			Sign:         slot.Sign,
			SubSiteID:    slot.SubSiteID,
			FieldName:    slot.FieldName,
			UserNickname: u.Nickname,
		}
		result, err := u.API.PlaceOrderWithRetry(ctx, intent, u.Order, 3, func(ctx context.Context) (model.OrderIntent, bool) {
			return intent, true
		})
		if err != nil {
			continue
		}
		if result.Success {
			state.SuccessCount++
		}
		if deps.Audit != nil {
			_, _ = deps.Audit.InsertBookingRecord(ctx, model.BookingRecord{
				OrderID:       result.OrderID,
				PresetIndex:   state.Target.PresetIndex,
				VenueName:     resolved.VenueName,
				FieldTypeName: resolved.FieldType.Name,
				Date:          date,
				Start:         intent.Start,
				End:           intent.End,
				Status:        statusLabelFor(result.Success),
				Message:       result.Message,
				CreatedAt:     time.Now(),
			})
		}
		if deps.Notify != nil {
			_ = deps.Notify.NotifyBookingResult(ctx, intent, result)
		}
	}
	state.LastRun = now
	return nil
}

func matchesHour(start string, hour int) bool {
	t, err := time.Parse("15:04", start)
	if err != nil {
		return false
	}
	return t.Hour() == hour
}

func statusLabelFor(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
