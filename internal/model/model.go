// Package model holds the plain data types shared across courtrace's
// components: users, catalogue presets, slots, orders, jobs, and their
// job-kind-specific configuration records.
package model

import "time"

// User is a single booking identity: display nickname, stable username,
// an optional stored password, and the session cookie the Booking API
// client authenticates with.
type User struct {
	Nickname        string    `json:"nickname"`
	Username        string    `json:"username,omitempty"`
	Password        string    `json:"password,omitempty"`
	Cookie          string    `json:"cookie"`
	CookieExpiresAt time.Time `json:"expires_at"`
}

// Key returns the credential-store equality key for this user: username
// when known, else nickname, else the default-user sentinel.
func (u User) Key() string {
	switch {
	case u.Username != "":
		return u.Username
	case u.Nickname != "":
		return u.Nickname
	default:
		return DefaultUserKey
	}
}

// Expired reports whether the user's cookie is absent or past its TTL.
func (u User) Expired(now time.Time) bool {
	return u.Cookie == "" || !u.CookieExpiresAt.After(now)
}

// DefaultUserKey is the credential-store key used when a record carries
// neither a username nor a nickname.
const DefaultUserKey = "__default__"

// Preset is an immutable catalogue shortcut binding a small integer index
// to a concrete (venue, field_type) pair, seeded from configuration.
type Preset struct {
	Index           int    `json:"index"`
	VenueID         string `json:"venue_id"`
	VenueName       string `json:"venue_name"`
	FieldTypeID     string `json:"field_type_id"`
	FieldTypeName   string `json:"field_type_name"`
	FieldTypeCode   string `json:"field_type_code,omitempty"`
}

// Venue is a booking location as returned by ListVenues / VenueDetail.
type Venue struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Address string         `json:"address,omitempty"`
	Phone   string         `json:"phone,omitempty"`
	Raw     map[string]any `json:"-"`
}

// FieldType is a bookable field/court category within a venue.
type FieldType struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Category string         `json:"category,omitempty"`
	Raw      map[string]any `json:"-"`
}

// BookingTarget is the resolver's input: either a preset shortcut or a
// raw (venue, field_type) pair, plus the date/time window and the set of
// users the caller wants this target attempted for.
type BookingTarget struct {
	PresetIndex       int      `json:"preset_index,omitempty"`
	VenueID           string   `json:"venue_id,omitempty"`
	VenueKeyword      string   `json:"venue_keyword,omitempty"`
	FieldTypeID       string   `json:"field_type_id,omitempty"`
	FieldTypeKeyword  string   `json:"field_type_keyword,omitempty"`
	FieldTypeCode     string   `json:"field_type_code,omitempty"`
	DateOffsets       []int    `json:"date_offsets,omitempty"`
	FixedDates        []string `json:"fixed_dates,omitempty"`
	UseAllDates       bool     `json:"use_all_dates,omitempty"`
	StartHour         int      `json:"start_hour"`
	DurationHours     int      `json:"duration_hours"`
	TargetUsers       []string `json:"target_users,omitempty"`
	ExcludeUsers      []string `json:"exclude_users,omitempty"`
}

// HasSelector reports whether enough information was given to resolve a
// venue: a preset index, an explicit venue id, or a venue keyword.
func (t BookingTarget) HasSelector() bool {
	return t.PresetIndex != 0 || t.VenueID != "" || t.VenueKeyword != ""
}

// Slot is one bookable (field, day, time-window) tuple. Slots are fetched
// per (venue, field_type, date) request and never cached across
// requests: Sign is a single-use nonce that must be re-fetched
// immediately before ordering.
type Slot struct {
	SlotID     string         `json:"slot_id"`
	Start      string         `json:"start"`
	End        string         `json:"end"`
	Price      float64        `json:"price,omitempty"`
	Remain     int            `json:"remain,omitempty"`
	Capacity   int            `json:"capacity,omitempty"`
	Available  bool           `json:"available"`
	FieldName  string         `json:"field_name,omitempty"`
	SubSiteID  string         `json:"sub_site_id,omitempty"`
	Sign       string         `json:"sign"`
	Raw        map[string]any `json:"-"`
}

// OrderIntent is constructed from a Slot + Preset + concrete time window
// immediately before submitting an order.
type OrderIntent struct {
	VenueID      string
	VenueName    string
	FieldTypeID  string
	FieldType    string
	Date         string
	SlotID       string
	Start        string
	End          string
	Price        float64
	Sign         string
	SubSiteID    string
	FieldName    string
	UserNickname string
}

// JobType enumerates the supervised worker kinds.
type JobType string

const (
	JobMonitor     JobType = "monitor"
	JobSchedule    JobType = "schedule"
	JobAutoBooking JobType = "auto_booking"
	JobKeepAlive   JobType = "keep_alive"
)

// JobStatus is a Job's lifecycle state.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobStopped   JobStatus = "stopped"
	JobFailed    JobStatus = "failed"
	JobCompleted JobStatus = "completed"
)

// Job is one supervised worker's registry record. Running status implies
// a live subprocess owns it; a crash-recovery pass reconciles pid
// liveness on supervisor startup.
type Job struct {
	JobID        string          `json:"job_id"`
	JobType      JobType         `json:"job_type"`
	Name         string          `json:"name"`
	Status       JobStatus       `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	StoppedAt    *time.Time      `json:"stopped_at,omitempty"`
	PID          int             `json:"pid,omitempty"`
	Config       map[string]any  `json:"config"`
	ErrorMessage string          `json:"error_message,omitempty"`
	LogTail      []string        `json:"-"`
}

// MonitorState is job.Config for a Monitor job.
type MonitorState struct {
	Target                 BookingTarget `json:"target"`
	IntervalSeconds        int           `json:"interval_seconds"`
	AutoBook               bool          `json:"auto_book"`
	OperatingWindowStart   int           `json:"operating_window_start,omitempty"`
	OperatingWindowEnd     int           `json:"operating_window_end,omitempty"`
	RequireAllUsersSuccess bool          `json:"require_all_users_success"`
	MaxTimeGapHours        float64       `json:"max_time_gap_hours,omitempty"`
	PreferredHours         []int         `json:"preferred_hours,omitempty"`
	PreferredDays          []int         `json:"preferred_days,omitempty"`
	LastCheck              time.Time     `json:"last_check,omitempty"`
	FoundSlots             []Slot        `json:"found_slots,omitempty"`
	BookingAttempts        int           `json:"booking_attempts"`
	SuccessfulBookings     int           `json:"successful_bookings"`
	WindowActive           bool          `json:"window_active"`
	NextWindowStart        time.Time     `json:"next_window_start,omitempty"`
}

// HasOperatingWindow reports whether an operating window was configured.
func (m MonitorState) HasOperatingWindow() bool {
	return m.OperatingWindowStart != 0 || m.OperatingWindowEnd != 0
}

// DefaultWarmupOffsetSeconds is how early a Schedule job's warm-up shot
// fires ahead of its earliest configured hour when left unspecified.
const DefaultWarmupOffsetSeconds = 3

// ScheduleState is job.Config for a Schedule job.
type ScheduleState struct {
	Target                 BookingTarget `json:"target"`
	Hour                   int           `json:"hour"`
	Minute                 int           `json:"minute"`
	Second                 int           `json:"second"`
	DateOffset             int           `json:"date_offset"`
	StartHours             []int         `json:"start_hours,omitempty"`
	DurationHours          int           `json:"duration_hours"`
	WarmupOffsetSeconds    int           `json:"warmup_offset_seconds,omitempty"`
	RequireAllUsersSuccess bool          `json:"require_all_users_success"`
	MaxTimeGapHours        float64       `json:"max_time_gap_hours,omitempty"`
	LastRun                time.Time     `json:"last_run,omitempty"`
	NextRun                time.Time     `json:"next_run,omitempty"`
	RunCount               int           `json:"run_count"`
	SuccessCount            int          `json:"success_count"`
}

// AutoBookingTarget is one entry in a priority-ordered auto-booking set.
type AutoBookingTarget struct {
	Preset      Preset `json:"preset"`
	Priority    int    `json:"priority"`
	Enabled     bool   `json:"enabled"`
	TimeSlots   []int  `json:"time_slots,omitempty"`
	MaxAttempts int    `json:"max_attempts"`
	Description string `json:"description,omitempty"`
}

// EndpointSet is the full collection of upstream paths a deployment must
// configure. Not every deployment configures every endpoint: FieldSituation
// equal to SlotSummary means the upstream has no separate "available
// dates" endpoint and ListAvailableDates returns an empty result.
type EndpointSet struct {
	LoginPrepare  string `mapstructure:"login_prepare"`
	LoginSubmit   string `mapstructure:"login_submit"`
	LoginCaptcha  string `mapstructure:"login_captcha"`
	ListVenues    string `mapstructure:"list_venues"`
	VenueDetail   string `mapstructure:"venue_detail"`
	SlotSummary   string `mapstructure:"slot_summary"`
	FieldSituation string `mapstructure:"field_situation"`
	FieldReserve  string `mapstructure:"field_reserve"`
	OrderConfirm  string `mapstructure:"order_confirm"`
	OrderSubmit   string `mapstructure:"order_submit"`
	CurrentUser   string `mapstructure:"current_user"`
	Ping          string `mapstructure:"ping"`
}

// BookingRecord is an append-only audit entry for one booking outcome.
type BookingRecord struct {
	OrderID       string    `json:"order_id,omitempty"`
	PresetIndex   int       `json:"preset_index"`
	VenueName     string    `json:"venue_name"`
	FieldTypeName string    `json:"field_type_name"`
	Date          string    `json:"date"`
	Start         string    `json:"start"`
	End           string    `json:"end"`
	Status        string    `json:"status"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}
