// Package monitor runs the recurring "watch a venue for an opening"
// loop: per tick, query slots for every eligible user in parallel,
// respecting an optional operating window and preferred hours/days, and
// when auto-booking is enabled, search for a multi-user slot assignment
// and place orders.
//
// Grounded on spec.md §4.8/§4.8.1 and on original_source's rate-limit
// phrase detection driving a mid-tick user failover
// (`请求过于频繁`/`频率` in sja_booking, surfaced here via
// bookingerr.IsRateLimitMessage). Per-tick fan-out uses
// golang.org/x/sync/errgroup bounded to the eligible-user count, per
// spec.md §5's "cooperative event loop with bounded concurrency".
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/courtrace/agent/internal/bookingapi"
	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/model"
	"github.com/courtrace/agent/internal/resolver"
)

// UserSession is one eligible user's authenticated API handle.
type UserSession struct {
	Key      string
	Nickname string
	API      *bookingapi.Client
	Resolver *resolver.Resolver
	Order    bookingapi.OrderConfig
}

// Notifier is the minimal surface the monitor needs from the
// notification fan-out; internal/notifier.Notifier satisfies it.
type Notifier interface {
	NotifySlotsFound(ctx context.Context, target model.BookingTarget, slots []model.Slot) error
	NotifyBookingResult(ctx context.Context, intent model.OrderIntent, result bookingapi.OrderResult) error
}

// Runtime executes monitor ticks against a fixed pool of user sessions.
type Runtime struct {
	users    []UserSession
	notifier Notifier
}

// New builds a Runtime over the given user sessions.
func New(users []UserSession, notifier Notifier) *Runtime {
	return &Runtime{users: users, notifier: notifier}
}

func (r *Runtime) eligibleUsers(target model.BookingTarget) []UserSession {
	if len(target.TargetUsers) == 0 && len(target.ExcludeUsers) == 0 {
		return r.users
	}
	targetSet := toSet(target.TargetUsers)
	excludeSet := toSet(target.ExcludeUsers)
	var out []UserSession
	for _, u := range r.users {
		if len(targetSet) > 0 {
			if _, ok := targetSet[u.Key]; !ok {
				continue
			}
		}
		if _, excluded := excludeSet[u.Key]; excluded {
			continue
		}
		out = append(out, u)
	}
	return out
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// withinOperatingWindow reports whether now's hour falls inside the
// state's configured operating window. A window that wraps past
// midnight (start > end) is treated as spanning two days.
func withinOperatingWindow(state *model.MonitorState, now time.Time) bool {
	if !state.HasOperatingWindow() {
		return true
	}
	hour := now.Hour()
	if state.OperatingWindowStart <= state.OperatingWindowEnd {
		return hour >= state.OperatingWindowStart && hour < state.OperatingWindowEnd
	}
	return hour >= state.OperatingWindowStart || hour < state.OperatingWindowEnd
}

func filterByPreferredHours(slots []model.Slot, hours []int) []model.Slot {
	if len(hours) == 0 {
		return slots
	}
	allowed := make(map[int]struct{}, len(hours))
	for _, h := range hours {
		allowed[h] = struct{}{}
	}
	var out []model.Slot
	for _, s := range slots {
		mins, ok := startMinutes(s.Start)
		if !ok {
			continue
		}
		if _, ok := allowed[mins/60]; ok {
			out = append(out, s)
		}
	}
	return out
}

func filterDatesByPreferredDays(dates []string, days []int) []string {
	if len(days) == 0 {
		return dates
	}
	allowed := make(map[int]struct{}, len(days))
	for _, d := range days {
		allowed[d] = struct{}{}
	}
	var out []string
	for _, d := range dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		if _, ok := allowed[int(t.Weekday())]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Tick runs one poll cycle, mutating state in place.
func (r *Runtime) Tick(ctx context.Context, state *model.MonitorState, now time.Time) error {
	if !withinOperatingWindow(state, now) {
		state.WindowActive = false
		return nil
	}
	state.WindowActive = true

	users := r.eligibleUsers(state.Target)
	if len(users) == 0 {
		return bookingerr.New(bookingerr.ErrConfig, 0, "no eligible users for monitor target")
	}

	resolved, err := users[0].Resolver.Resolve(ctx, state.Target, now)
	if err != nil {
		return err
	}
	dates := resolved.Dates
	if len(dates) == 0 {
		upstreamDates, _ := users[0].API.ListAvailableDates(ctx, resolved.VenueID, resolved.FieldTypeID)
		for _, d := range upstreamDates {
			dates = append(dates, d.Date)
		}
	}
	dates = filterDatesByPreferredDays(dates, state.PreferredDays)
	if len(dates) == 0 {
		state.LastCheck = now
		return nil
	}

	perUserSlots := make(map[string][]model.Slot, len(users))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, u := range users {
		u := u
		g.Go(func() error {
			var collected []model.Slot
			for _, date := range dates {
				slots, err := u.API.QuerySlots(gctx, resolved.VenueID, resolved.FieldTypeID, date, "", &resolved.FieldType)
				if err != nil {
					if isFailoverSignal(err) {
						return nil // drop this user for the tick, let the others proceed
					}
					return nil // per-user query failures never fail the whole tick
				}
				collected = append(collected, slots...)
			}
			collected = filterByPreferredHours(collected, state.PreferredHours)
			mu.Lock()
			perUserSlots[u.Key] = collected
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	state.LastCheck = now
	var foundAny []model.Slot
	for _, slots := range perUserSlots {
		foundAny = append(foundAny, slots...)
	}
	state.FoundSlots = foundAny
	if len(foundAny) == 0 {
		return nil
	}

	if r.notifier != nil {
		_ = r.notifier.NotifySlotsFound(ctx, state.Target, foundAny)
	}

	if !state.AutoBook {
		return nil
	}

	maxGapMinutes := int(state.MaxTimeGapHours * 60)
	assignment, ok := FindAssignment(perUserSlots, maxGapMinutes, state.RequireAllUsersSuccess)
	if !ok {
		return nil
	}

	state.BookingAttempts++
	byUser := make(map[string]UserSession, len(users))
	for _, u := range users {
		byUser[u.Key] = u
	}
	for userKey, slot := range assignment {
		u, ok := byUser[userKey]
		if !ok {
			continue
		}
		intent := model.OrderIntent{
			VenueID:     resolved.VenueID,
			FieldTypeID: resolved.FieldTypeID,
			FieldType:   resolved.FieldType.Name,
			Date:        dates[0],
			SlotID:      slot.SlotID,
			Start:       slot.Start,
			End:         slot.End,
			Price:       slot.Price,
			Sign:        slot.Sign,
			SubSiteID:   slot.SubSiteID,
			FieldName:   slot.FieldName,
		}
		result, err := u.API.PlaceOrder(ctx, intent, u.Order)
		if err != nil {
			continue
		}
		if result.Success {
			state.SuccessfulBookings++
		}
		if r.notifier != nil {
			_ = r.notifier.NotifyBookingResult(ctx, intent, result)
		}
	}
	return nil
}

// isFailoverSignal reports whether err indicates the caller should drop
// this user for the remainder of the tick rather than treat it as a hard
// failure: rate limiting or a transient upstream 500.
func isFailoverSignal(err error) bool {
	return errors.Is(err, bookingerr.ErrRateLimited) || errors.Is(err, bookingerr.ErrUpstream)
}
