package facade

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// ListSlots resolves a target (preset, or raw venue/field-type selector)
// and returns every matching slot across its expanded dates, optionally
// filtered to a single start hour. Per spec.md §4.12.
func (f *Facade) ListSlots(ctx context.Context, req ListSlotsRequest) (SlotListResult, error) {
	user, err := f.resolveUser(req.User)
	if err != nil {
		return SlotListResult{}, err
	}
	api, res, err := f.clientFor(user)
	if err != nil {
		return SlotListResult{}, err
	}

	target := mergeTarget(req.BaseTarget, req.PresetIndex, req.VenueID, req.FieldTypeID)
	if req.Date != "" {
		target.FixedDates = []string{req.Date}
	}
	if req.StartHour != 0 {
		target.StartHour = req.StartHour
	}

	return runBlocking(ctx, f.pool, func(ctx context.Context) (SlotListResult, error) {
		resolved, err := res.Resolve(ctx, target, time.Now())
		if err != nil {
			return SlotListResult{}, err
		}

		dates := resolved.Dates
		if len(dates) == 0 {
			upstream, _ := api.ListAvailableDates(ctx, resolved.VenueID, resolved.FieldTypeID)
			for _, d := range upstream {
				dates = append(dates, d.Date)
			}
		}
		if len(dates) == 0 {
			dates = []string{time.Now().Format("2006-01-02")}
		}

		var out []DatedSlot
		for _, date := range dates {
			slots, err := api.QuerySlots(ctx, resolved.VenueID, resolved.FieldTypeID, date, "", &resolved.FieldType)
			if err != nil {
				return SlotListResult{}, err
			}
			for _, s := range slots {
				if !req.ShowFull && !s.Available {
					continue
				}
				if target.StartHour != 0 && !matchesStartHour(s.Start, target.StartHour) {
					continue
				}
				out = append(out, DatedSlot{Date: date, Slot: s})
			}
		}

		return SlotListResult{
			Resolved: ResolvedTarget{
				VenueID:       resolved.VenueID,
				VenueName:     resolved.VenueName,
				FieldTypeID:   resolved.FieldTypeID,
				FieldTypeName: resolved.FieldType.Name,
			},
			Slots: out,
		}, nil
	})
}

// matchesStartHour reports whether a "HH:MM" start string's hour
// component equals hour.
func matchesStartHour(start string, hour int) bool {
	parts := strings.SplitN(start, ":", 2)
	if len(parts) == 0 {
		return false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	return h == hour
}
