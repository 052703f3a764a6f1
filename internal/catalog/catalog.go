// Package catalog holds the configured preset shortcuts and caches
// slow-changing upstream lookups (venue listings, venue details) so the
// resolver and monitor loops don't refetch them on every tick. Slots
// themselves are never cached here: they carry single-use nonces and
// must always come from a fresh upstream call.
//
// Grounded on threefoldtech-0-OS_research's pkg/provision/engine.go,
// which caches reconciled resource state with patrickmn/go-cache.
package catalog

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/courtrace/agent/internal/model"
)

// Catalog holds the preset list plus upstream response caches.
type Catalog struct {
	presets []model.Preset
	venues  *gocache.Cache
	details *gocache.Cache
}

// New builds a Catalog with the given presets and a shared TTL/cleanup
// interval for its venue and venue-detail caches.
func New(presets []model.Preset, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Catalog{
		presets: presets,
		venues:  gocache.New(ttl, ttl*2),
		details: gocache.New(ttl, ttl*2),
	}
}

// Preset returns the preset registered under index, if any.
func (c *Catalog) Preset(index int) (model.Preset, bool) {
	for _, p := range c.presets {
		if p.Index == index {
			return p, true
		}
	}
	return model.Preset{}, false
}

// Presets returns every configured preset.
func (c *Catalog) Presets() []model.Preset {
	return append([]model.Preset(nil), c.presets...)
}

// CachedVenueSearch returns a cached venue-search result for keyword, if
// still fresh.
func (c *Catalog) CachedVenueSearch(keyword string) ([]model.Venue, bool) {
	v, ok := c.venues.Get(keyword)
	if !ok {
		return nil, false
	}
	venues, ok := v.([]model.Venue)
	return venues, ok
}

// CacheVenueSearch stores a venue-search result under keyword.
func (c *Catalog) CacheVenueSearch(keyword string, venues []model.Venue) {
	c.venues.SetDefault(keyword, venues)
}

// CachedVenueDetail returns a cached venue-detail payload, if still fresh.
func (c *Catalog) CachedVenueDetail(venueID string) ([]model.FieldType, bool) {
	v, ok := c.details.Get(venueID)
	if !ok {
		return nil, false
	}
	fieldTypes, ok := v.([]model.FieldType)
	return fieldTypes, ok
}

// CacheVenueDetail stores a venue's field-type list under venueID.
func (c *Catalog) CacheVenueDetail(venueID string, fieldTypes []model.FieldType) {
	c.details.SetDefault(venueID, fieldTypes)
}
