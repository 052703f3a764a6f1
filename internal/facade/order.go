package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/courtrace/agent/internal/bookingapi"
	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/model"
)

// orderMaxRetries matches spec.md §4.4.1's default retry budget.
const orderMaxRetries = 3

// OrderOnce resolves a single slot matching the request and submits one
// order for it, retrying up to orderMaxRetries times with a freshly
// re-fetched sign between attempts. Per spec.md §4.12.
func (f *Facade) OrderOnce(ctx context.Context, req OrderOnceRequest) (OrderResult, error) {
	user, err := f.resolveUser(req.User)
	if err != nil {
		return OrderResult{}, err
	}
	api, res, err := f.clientFor(user)
	if err != nil {
		return OrderResult{}, err
	}

	now := time.Now()
	date, err := parseOrderDate(req.Date, now)
	if err != nil {
		return OrderResult{}, err
	}
	startStr, startHour, err := parseOrderTime(req.StartTime)
	if err != nil {
		return OrderResult{}, err
	}

	target := mergeTarget(req.BaseTarget, req.PresetIndex, req.VenueID, req.FieldTypeID)
	target.FixedDates = []string{date}
	target.StartHour = startHour
	durationHours := req.DurationHours
	if durationHours <= 0 {
		durationHours = target.DurationHours
	}
	if durationHours <= 0 {
		durationHours = 1
	}

	endStr := req.EndTime
	if endStr == "" {
		endStr = fmt.Sprintf("%02d:00", (startHour+durationHours)%24)
	} else {
		endStr, _, err = parseOrderTime(endStr)
		if err != nil {
			return OrderResult{}, err
		}
	}

	return runBlocking(ctx, f.pool, func(ctx context.Context) (OrderResult, error) {
		resolved, err := res.Resolve(ctx, target, now)
		if err != nil {
			return OrderResult{}, err
		}

		fetchIntent := func(ctx context.Context) (model.OrderIntent, bool) {
			slots, err := api.QuerySlots(ctx, resolved.VenueID, resolved.FieldTypeID, date, "", &resolved.FieldType)
			if err != nil {
				return model.OrderIntent{}, false
			}
			slot := bookingapi.PickSlot(slots, startHour)
			if slot == nil {
				return model.OrderIntent{}, false
			}
			end := slot.End
			if endStr != "" {
				end = endStr
			}
			return model.OrderIntent{
				VenueID:      resolved.VenueID,
				VenueName:    resolved.VenueName,
				FieldTypeID:  resolved.FieldTypeID,
				FieldType:    resolved.FieldType.Name,
				Date:         date,
				SlotID:       slot.SlotID,
				Start:        slot.Start,
				End:          end,
				Price:        slot.Price,
				Sign:         slot.Sign,
				SubSiteID:    slot.SubSiteID,
				FieldName:    slot.FieldName,
				UserNickname: user.Nickname,
			}, true
		}

		intent, ok := fetchIntent(ctx)
		if !ok {
			return OrderResult{}, bookingerr.New(bookingerr.ErrBusiness, 0, fmt.Sprintf("未找到 %s %s 可预订场地", date, startStr))
		}

		result, err := api.PlaceOrderWithRetry(ctx, intent, f.orderConfig(), orderMaxRetries, func(ctx context.Context) (model.OrderIntent, bool) {
			return fetchIntent(ctx)
		})
		if err != nil {
			return OrderResult{}, err
		}

		out := OrderResult{Success: result.Success, Message: result.Message, OrderID: result.OrderID}
		if !result.Success {
			out.Message = fmt.Sprintf("下单失败，已重试%d次", orderMaxRetries)
		}

		rec := model.BookingRecord{
			OrderID:       result.OrderID,
			PresetIndex:   target.PresetIndex,
			VenueName:     resolved.VenueName,
			FieldTypeName: resolved.FieldType.Name,
			Date:          date,
			Start:         intent.Start,
			End:           intent.End,
			Status:        statusLabel(result.Success),
			Message:       out.Message,
			CreatedAt:     time.Now(),
		}
		if f.audit != nil {
			_, _ = f.audit.InsertBookingRecord(ctx, rec)
		}
		if f.notify != nil {
			_ = f.notify.NotifyBookingResult(ctx, intent, result)
		}

		return out, nil
	})
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
