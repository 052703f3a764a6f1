// Package bookingapi wraps the sports-venue upstream's JSON endpoints:
// venue listing, field-type listing, slot querying, and order
// submission. Every response is parsed tolerantly, since the upstream
// wraps its real payload under one of several possible envelope keys and
// names the same logical field differently across endpoints.
//
// Grounded on original_source/sja_booking/api.py (SportsAPI class, its
// LIST_KEYS-driven envelope unwrapping, and its slot/sign parsing) and
// built on github.com/tidwall/gjson for read access to untyped JSON,
// matching the teacher's own use of gjson for tolerant JSON handling.
package bookingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/codec"
	"github.com/courtrace/agent/internal/httpclient"
	"github.com/courtrace/agent/internal/model"
)

// Client talks to one configured deployment of the upstream system on
// behalf of a single authenticated user.
type Client struct {
	baseURL   string
	endpoints model.EndpointSet
	http      *httpclient.Client
}

// New builds a Client bound to a specific user's httpclient.Client (see
// internal/httpclient.Factory.ForUser).
func New(baseURL string, endpoints model.EndpointSet, hc *httpclient.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), endpoints: endpoints, http: hc}
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// requestJSON issues path with a form or JSON body and returns the
// parsed response body, raising an *bookingerr.Error when the HTTP
// status is unexpected or the envelope carries a business failure.
func (c *Client) requestJSON(ctx context.Context, method, path string, form url.Values, jsonBody any, extraHeaders map[string]string) (gjson.Result, error) {
	var body io.Reader
	contentType := ""
	switch {
	case jsonBody != nil:
		raw, err := json.Marshal(jsonBody)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("bookingapi: marshal request body: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json;charset=UTF-8"
	case form != nil:
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("bookingapi: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return gjson.Result{}, bookingerr.New(bookingerr.ErrTransient, 0, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("bookingapi: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail := string(raw)
		if len(detail) > 400 {
			detail = detail[:400]
		}
		return gjson.Result{}, bookingerr.New(bookingerr.ErrUpstream, resp.StatusCode, detail)
	}

	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, bookingerr.New(bookingerr.ErrUpstream, 0, "non-JSON response body")
	}
	parsed := gjson.ParseBytes(raw)

	if code, ok := firstInt(parsed, "code", "status"); ok && code != 0 {
		msg := firstString(parsed, "msg", "message")
		if classified := bookingerr.ClassifyHTTPStatus(code, msg); classified != nil {
			return parsed, classified
		}
	}
	if msg := firstString(parsed, "msg", "message"); msg != "" && bookingerr.ContainsFailureKeyword(msg) {
		return parsed, bookingerr.New(bookingerr.ErrBusiness, 0, msg)
	}
	return parsed, nil
}

// CheckLogin calls the current-user profile endpoint, returning the raw
// envelope; non-2xx and business failures surface as auth errors.
func (c *Client) CheckLogin(ctx context.Context) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(c.endpoints.CurrentUser), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("bookingapi: build request: %w", err)
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return gjson.Result{}, bookingerr.New(bookingerr.ErrAuthExpired, 0, err.Error())
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("bookingapi: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !gjson.ValidBytes(raw) {
		return gjson.Result{}, bookingerr.New(bookingerr.ErrAuthExpired, resp.StatusCode, "session check failed")
	}
	return gjson.ParseBytes(raw), nil
}

// Ping probes the upstream's keep-alive endpoint, swallowing any error:
// callers use it purely to refresh a session's last-seen time.
func (c *Client) Ping(ctx context.Context) {
	path := c.endpoints.Ping
	if path == "" {
		path = "/"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

// ListVenues searches venues by keyword, paginating in page-sized
// chunks.
func (c *Client) ListVenues(ctx context.Context, keyword string, page, size int) ([]model.Venue, error) {
	form := url.Values{
		"pageSize": {strconv.Itoa(size)},
		"pageNum":  {strconv.Itoa(page)},
		"flag":     {"0"},
	}
	if keyword != "" {
		form.Set("venueName", keyword)
	}
	parsed, err := c.requestJSON(ctx, http.MethodPost, c.endpoints.ListVenues, form, nil, nil)
	if err != nil {
		return nil, err
	}

	items := extractFirstList(parsed)
	var venues []model.Venue
	items.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		id := firstString(item, "id", "venueId", "uuid", "bizId")
		name := firstString(item, "venueName", "name", "title")
		if id == "" || name == "" {
			return true
		}
		venues = append(venues, model.Venue{
			ID:      id,
			Name:    name,
			Address: firstString(item, "address", "addr"),
			Phone:   firstString(item, "phone", "tel"),
			Raw:     item.Value().(map[string]any),
		})
		return true
	})
	return venues, nil
}

// FindVenue pages through ListVenues looking for a name containing
// keyword, matching original_source's find_venue helper.
func (c *Client) FindVenue(ctx context.Context, keyword string, maxPages, pageSize int) (*model.Venue, error) {
	for page := 1; page <= maxPages; page++ {
		venues, err := c.ListVenues(ctx, keyword, page, pageSize)
		if err != nil {
			return nil, err
		}
		for _, v := range venues {
			if strings.Contains(v.Name, keyword) {
				return &v, nil
			}
		}
		if len(venues) == 0 {
			break
		}
	}
	return nil, nil
}

// VenueDetail flattens the "data" envelope field if present, else
// returns the whole response object.
func (c *Client) VenueDetail(ctx context.Context, venueID string) (gjson.Result, error) {
	form := url.Values{"id": {venueID}}
	parsed, err := c.requestJSON(ctx, http.MethodPost, c.endpoints.VenueDetail, form, nil, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	if inner := parsed.Get("data"); inner.Exists() && inner.IsObject() {
		return inner, nil
	}
	return parsed, nil
}

var fieldTypeListKeys = []string{"fieldTypeList", "fieldTypes", "bizFieldTypeList", "data", "motionTypes"}

// ListFieldTypes extracts the bookable field-type categories from a
// venue detail payload.
func ListFieldTypes(venueDetail gjson.Result) []model.FieldType {
	var candidates gjson.Result
	for _, key := range fieldTypeListKeys {
		v := venueDetail.Get(key)
		if v.IsArray() {
			candidates = v
			break
		}
	}
	var out []model.FieldType
	candidates.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		id := firstString(item, "id", "fieldTypeId", "code", "motionId")
		name := firstString(item, "fieldTypeName", "name", "title", "motionName")
		if id == "" || name == "" {
			return true
		}
		out = append(out, model.FieldType{
			ID:       id,
			Name:     name,
			Category: firstString(item, "category", "motionCode", "bizType"),
			Raw:      item.Value().(map[string]any),
		})
		return true
	})
	return out
}

// GetFieldType resolves a venue's field types and returns the first
// whose name contains keyword, or the first field type when keyword is
// empty.
func (c *Client) GetFieldType(ctx context.Context, venueID, keyword string) (*model.FieldType, error) {
	detail, err := c.VenueDetail(ctx, venueID)
	if err != nil {
		return nil, err
	}
	fieldTypes := ListFieldTypes(detail)
	if keyword != "" {
		for _, ft := range fieldTypes {
			if strings.Contains(ft.Name, keyword) {
				return &ft, nil
			}
		}
	}
	if len(fieldTypes) == 0 {
		return nil, nil
	}
	return &fieldTypes[0], nil
}

// DateToken is one entry from ListAvailableDates: a calendar date and
// the upstream's opaque token for it, if the upstream requires one in
// QuerySlots.
type DateToken struct {
	Date  string
	Token string
}

// ListAvailableDates returns the bookable dates for a venue/field-type
// pair. Deployments with no separate slot_summary endpoint (it equals
// field_situation) have no notion of "available dates" distinct from
// querying slots directly, so this returns an empty slice for them.
func (c *Client) ListAvailableDates(ctx context.Context, venueID, fieldTypeID string) ([]DateToken, error) {
	path := c.endpoints.SlotSummary
	if path == "" || path == c.endpoints.FieldSituation {
		return nil, nil
	}
	body := map[string]any{"venueId": venueID, "fieldType": fieldTypeID}
	parsed, err := c.requestJSON(ctx, http.MethodPost, path, nil, body, nil)
	if err != nil {
		return nil, nil
	}
	var dates []DateToken
	for _, key := range []string{"data", "result", "list", "rows"} {
		v := parsed.Get(key)
		if !v.IsArray() {
			continue
		}
		v.ForEach(func(_, item gjson.Result) bool {
			dateStr := firstString(item, "date", "dateStr")
			token := firstString(item, "dateId", "id", "token")
			if dateStr != "" {
				dates = append(dates, DateToken{Date: dateStr, Token: token})
			}
			return true
		})
		break
	}
	return dates, nil
}

// QuerySlots fetches bookable slots for a (venue, field type, date).
// Every returned slot's Sign is a single-use nonce minted for this
// specific call; it must be used in an order immediately or re-fetched.
func (c *Client) QuerySlots(ctx context.Context, venueID, fieldTypeID, date string, dateToken string, fieldType *model.FieldType) ([]model.Slot, error) {
	body := map[string]any{
		"venueId":   venueID,
		"fieldType": fieldTypeID,
		"date":      date,
	}
	if dateToken != "" {
		body["dateId"] = dateToken
	} else if fieldType != nil && fieldType.Raw != nil {
		if v, ok := fieldType.Raw["dateId"]; ok {
			body["dateId"] = v
		} else if v, ok := fieldType.Raw["dateToken"]; ok {
			body["dateId"] = v
		}
	}
	if fieldType != nil && fieldType.Category != "" {
		body["bizMotionType"] = fieldType.Category
	}
	if fieldType != nil && fieldType.Raw != nil {
		for _, key := range []string{"bizMotionType", "motionType", "motionTypeId", "motionId", "bizMotionId"} {
			if _, exists := body[key]; exists {
				break
			}
			if v, ok := fieldType.Raw[key]; ok && v != nil {
				body[key] = v
			}
		}
	}

	parsed, err := c.requestJSON(ctx, http.MethodPost, c.endpoints.FieldSituation, nil, body, nil)
	if err != nil {
		return nil, err
	}

	dataNode := parsed.Get("data")
	if dataNode.IsArray() {
		return parseFieldSlots(dataNode), nil
	}
	items := extractFirstList(parsed)
	return parseFlatSlots(venueID, fieldTypeID, items), nil
}

// parseFieldSlots handles the "data is a list of fields, each with a
// priceList of bookable time slots" shape.
func parseFieldSlots(fields gjson.Result) []model.Slot {
	var slots []model.Slot
	fields.ForEach(func(_, field gjson.Result) bool {
		fieldID := firstString(field, "fieldId", "id")
		fieldName := firstString(field, "fieldName", "name")
		priceList := field.Get("priceList")
		if !priceList.IsArray() {
			return true
		}
		idx := 0
		priceList.ForEach(func(_, entry gjson.Result) bool {
			defer func() { idx++ }()
			if !entry.IsObject() {
				return true
			}
			sign := firstString(entry, "sign")
			decoded, _ := codec.DecodeSign(sign)
			start := firstString(entry, "startTime", "beginTime", "startHour")
			if start == "" {
				start = decoded.Start
			}
			end := firstString(entry, "endTime", "finishTime", "endHour")
			if end == "" {
				end = decoded.End
			}
			slotID := sign
			if slotID == "" {
				slotID = firstString(entry, "id")
			}
			if slotID == "" {
				slotID = fmt.Sprintf("%s:%d", fieldID, idx)
			}
			price, _ := parseFloat(firstString(entry, "price", "amount"))
			remain, hasRemain := firstInt(entry, "count", "remain")
			status := firstString(entry, "status")
			available := hasRemain && remain > 0
			if status != "" {
				available = available || status == "0" || status == "1"
			}
			if start == "" {
				start = fmt.Sprintf("slot-%d", idx)
			}
			if end == "" {
				end = "-"
			}
			slots = append(slots, model.Slot{
				SlotID:    slotID,
				Start:     start,
				End:       end,
				Price:     price,
				Remain:    remain,
				Available: available,
				FieldName: fieldName,
				SubSiteID: fieldID,
				Sign:      sign,
				Raw:       entry.Value().(map[string]any),
			})
			return true
		})
		return true
	})
	return slots
}

// parseFlatSlots handles the flat "each list item is a slot" shape used
// by deployments without a per-field priceList nesting.
func parseFlatSlots(venueID, fieldTypeID string, items gjson.Result) []model.Slot {
	var slots []model.Slot
	idx := 0
	items.ForEach(func(_, item gjson.Result) bool {
		defer func() { idx++ }()
		if !item.IsObject() {
			return true
		}
		slotID := firstString(item, "id", "detailId", "timeId", "siteId")
		start := firstString(item, "startTime", "beginTime", "startHour", "timeStart")
		end := firstString(item, "endTime", "finishTime", "endHour", "timeEnd")
		remain, hasRemain := firstInt(item, "remain", "left", "availableNumber")
		capacity, _ := firstInt(item, "capacity", "total", "maxNumber")
		price, _ := parseFloat(firstString(item, "price", "amount"))
		available := truthy(item.Get("available")) || truthy(item.Get("status")) || (hasRemain && remain > 0)
		if isFull := item.Get("isFull"); isFull.Exists() {
			available = available || !truthy(isFull)
		}
		if slotID == "" {
			slotID = fmt.Sprintf("%s:%s:%s-%s", venueID, fieldTypeID, start, end)
		}
		slots = append(slots, model.Slot{
			SlotID:    slotID,
			Start:     start,
			End:       end,
			Price:     price,
			Remain:    remain,
			Capacity:  capacity,
			Available: available,
			FieldName: firstString(item, "fieldName", "siteName", "name", "courtName"),
			Raw:       item.Value().(map[string]any),
		})
		return true
	})
	return slots
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// PickSlot returns the first available slot starting at startHour.
func PickSlot(slots []model.Slot, startHour int) *model.Slot {
	for i, slot := range slots {
		hourStr, _, found := strings.Cut(slot.Start, ":")
		if !found {
			continue
		}
		hour, err := strconv.Atoi(hourStr)
		if err != nil {
			continue
		}
		if hour == startHour && slot.Available {
			return &slots[i]
		}
	}
	return nil
}
