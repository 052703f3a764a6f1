// Package resolver turns a BookingTarget (a preset shortcut or a raw
// venue/field-type selector) into concrete venue and field-type IDs,
// then fetches the bookable slots for each resolved date.
//
// Grounded on original_source/sja_booking/order.py's place_order_by_preset
// (preset lookup, date-token resolution, slot query) and api.py's
// find_venue/get_field_type keyword search, using internal/catalog's
// cache so repeated ticks against the same venue don't refetch its
// static metadata.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/courtrace/agent/internal/bookingapi"
	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/catalog"
	"github.com/courtrace/agent/internal/model"
)

// Resolver resolves BookingTargets against one user's Booking API client.
type Resolver struct {
	api     *bookingapi.Client
	catalog *catalog.Catalog
}

// New builds a Resolver.
func New(api *bookingapi.Client, c *catalog.Catalog) *Resolver {
	return &Resolver{api: api, catalog: c}
}

// Resolved is a BookingTarget fully resolved to concrete IDs.
type Resolved struct {
	VenueID     string
	VenueName   string
	FieldTypeID string
	FieldType   model.FieldType
	Dates       []string
}

// Resolve validates the target carries a selector, then resolves it to
// concrete venue/field-type IDs and a list of candidate dates.
//
// Per design decision: a target with neither a preset index, an explicit
// venue ID, nor a venue keyword is a configuration error, returned
// immediately before any HTTP call.
func (r *Resolver) Resolve(ctx context.Context, target model.BookingTarget, now time.Time) (Resolved, error) {
	if !target.HasSelector() {
		return Resolved{}, bookingerr.New(bookingerr.ErrConfig, 0, "booking target has no preset, venue_id, or venue_keyword")
	}

	venueID, venueName, fieldTypeID, fieldTypeKeyword := target.VenueID, "", target.FieldTypeID, target.FieldTypeKeyword
	if target.PresetIndex != 0 {
		preset, ok := r.catalog.Preset(target.PresetIndex)
		if !ok {
			return Resolved{}, bookingerr.New(bookingerr.ErrConfig, 0, fmt.Sprintf("no preset registered for index %d", target.PresetIndex))
		}
		venueID = preset.VenueID
		venueName = preset.VenueName
		if fieldTypeID == "" {
			fieldTypeID = preset.FieldTypeID
		}
	}

	if venueID == "" && target.VenueKeyword != "" {
		venue, err := r.findVenue(ctx, target.VenueKeyword)
		if err != nil {
			return Resolved{}, err
		}
		if venue == nil {
			return Resolved{}, bookingerr.New(bookingerr.ErrBusiness, 0, fmt.Sprintf("no venue matched keyword %q", target.VenueKeyword))
		}
		venueID = venue.ID
		venueName = venue.Name
	}
	if venueID == "" {
		return Resolved{}, bookingerr.New(bookingerr.ErrConfig, 0, "could not resolve a venue id")
	}

	var fieldType model.FieldType
	if fieldTypeID != "" {
		fieldTypes, err := r.fieldTypes(ctx, venueID)
		if err != nil {
			return Resolved{}, err
		}
		for _, ft := range fieldTypes {
			if ft.ID == fieldTypeID {
				fieldType = ft
				break
			}
		}
	} else {
		ft, err := r.findFieldType(ctx, venueID, fieldTypeKeyword)
		if err != nil {
			return Resolved{}, err
		}
		if ft == nil {
			return Resolved{}, bookingerr.New(bookingerr.ErrBusiness, 0, "could not resolve a field type")
		}
		fieldType = *ft
		fieldTypeID = ft.ID
	}

	dates := resolveDates(target, now)
	return Resolved{VenueID: venueID, VenueName: venueName, FieldTypeID: fieldTypeID, FieldType: fieldType, Dates: dates}, nil
}

func (r *Resolver) findVenue(ctx context.Context, keyword string) (*model.Venue, error) {
	if cached, ok := r.catalog.CachedVenueSearch(keyword); ok {
		for _, v := range cached {
			if v.Name != "" {
				return &v, nil
			}
		}
	}
	venue, err := r.api.FindVenue(ctx, keyword, 3, 50)
	if err != nil {
		return nil, err
	}
	if venue != nil {
		r.catalog.CacheVenueSearch(keyword, []model.Venue{*venue})
	}
	return venue, nil
}

func (r *Resolver) fieldTypes(ctx context.Context, venueID string) ([]model.FieldType, error) {
	if cached, ok := r.catalog.CachedVenueDetail(venueID); ok {
		return cached, nil
	}
	detail, err := r.api.VenueDetail(ctx, venueID)
	if err != nil {
		return nil, err
	}
	fieldTypes := bookingapi.ListFieldTypes(detail)
	r.catalog.CacheVenueDetail(venueID, fieldTypes)
	return fieldTypes, nil
}

func (r *Resolver) findFieldType(ctx context.Context, venueID, keyword string) (*model.FieldType, error) {
	fieldTypes, err := r.fieldTypes(ctx, venueID)
	if err != nil {
		return nil, err
	}
	if keyword != "" {
		for _, ft := range fieldTypes {
			if strings.Contains(strings.ToLower(ft.Name), strings.ToLower(keyword)) {
				return &ft, nil
			}
		}
	}
	if len(fieldTypes) == 0 {
		return nil, nil
	}
	return &fieldTypes[0], nil
}

// resolveDates expands a target's date configuration into concrete
// YYYY-MM-DD strings, mirroring resolve_target_dates: fixed dates win,
// "use all dates" defers to the caller (an empty slice signals "ask the
// upstream for its available-dates list instead"), otherwise each
// configured day offset is applied to now.
func resolveDates(target model.BookingTarget, now time.Time) []string {
	if len(target.FixedDates) > 0 {
		return append([]string(nil), target.FixedDates...)
	}
	if target.UseAllDates {
		return nil
	}
	offsets := target.DateOffsets
	if len(offsets) == 0 {
		return nil
	}
	dates := make([]string, 0, len(offsets))
	for _, offset := range offsets {
		dates = append(dates, now.AddDate(0, 0, offset).Format("2006-01-02"))
	}
	return dates
}
