package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/model"
)

// toConfig round-trips a typed job-kind config through JSON into the
// map[string]any shape model.Job.Config carries, since the supervisor's
// registry is kind-agnostic.
func toConfig(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("facade: marshal job config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("facade: unmarshal job config: %w", err)
	}
	return m, nil
}

func fromConfig[T any](m map[string]any) (T, error) {
	var out T
	data, err := json.Marshal(m)
	if err != nil {
		return out, fmt.Errorf("facade: marshal stored config: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("facade: unmarshal stored config: %w", err)
	}
	return out, nil
}

// StartMonitorRequest configures a new Monitor job. Per spec.md §3's
// MonitorState.
type StartMonitorRequest struct {
	Name                   string
	Target                 model.BookingTarget
	IntervalSeconds        int
	AutoBook               bool
	OperatingWindowStart   int
	OperatingWindowEnd     int
	RequireAllUsersSuccess bool
	MaxTimeGapHours        float64
	PreferredHours         []int
	PreferredDays          []int
}

// StartMonitor registers and starts a new Monitor job.
func (f *Facade) StartMonitor(ctx context.Context, req StartMonitorRequest) (model.Job, error) {
	if !req.Target.HasSelector() {
		return model.Job{}, bookingerr.New(bookingerr.ErrConfig, 0, "monitor target has no preset, venue_id, or venue_keyword")
	}
	interval := req.IntervalSeconds
	if interval <= 0 {
		interval = 30
	}
	state := model.MonitorState{
		Target:                 req.Target,
		IntervalSeconds:        interval,
		AutoBook:               req.AutoBook,
		OperatingWindowStart:   req.OperatingWindowStart,
		OperatingWindowEnd:     req.OperatingWindowEnd,
		RequireAllUsersSuccess: req.RequireAllUsersSuccess,
		MaxTimeGapHours:        req.MaxTimeGapHours,
		PreferredHours:         req.PreferredHours,
		PreferredDays:          req.PreferredDays,
	}
	cfg, err := toConfig(state)
	if err != nil {
		return model.Job{}, err
	}
	name := req.Name
	if name == "" {
		name = fmt.Sprintf("monitor-%s", req.Target.VenueID)
	}
	return f.supervisor.CreateJob(ctx, model.JobMonitor, name, cfg, true)
}

// StopMonitor stops a running Monitor job, leaving its registry entry
// (and last-seen state) intact.
func (f *Facade) StopMonitor(ctx context.Context, jobID string) error {
	return f.supervisor.StopJob(ctx, jobID)
}

// PauseMonitor is an alias for StopMonitor: spec.md §4.12 distinguishes
// Pause/Resume from Stop only at the bot-command-naming layer, not in
// job-registry semantics — both leave the job's persisted state in
// place for a later Resume/Start.
func (f *Facade) PauseMonitor(ctx context.Context, jobID string) error {
	return f.StopMonitor(ctx, jobID)
}

// ResumeMonitor restarts a previously stopped Monitor job's worker.
func (f *Facade) ResumeMonitor(ctx context.Context, jobID string) error {
	return f.supervisor.StartJob(ctx, jobID)
}

// MonitorStatusResult is MonitorStatus's return value: the job's
// lifecycle status plus its decoded MonitorState.
type MonitorStatusResult struct {
	Job   model.Job          `json:"job"`
	State model.MonitorState `json:"state"`
}

// MonitorStatus returns a Monitor job's current lifecycle and state.
func (f *Facade) MonitorStatus(jobID string) (MonitorStatusResult, error) {
	job, ok := f.supervisor.GetJob(jobID)
	if !ok {
		return MonitorStatusResult{}, fmt.Errorf("facade: job %s not found", jobID)
	}
	state, err := fromConfig[model.MonitorState](job.Config)
	if err != nil {
		return MonitorStatusResult{}, err
	}
	return MonitorStatusResult{Job: job, State: state}, nil
}

// ScheduleDailyJobRequest configures a new Schedule job. Per spec.md
// §3's ScheduleState; StartHours drives one parallel shot per entry
// (REDESIGN FLAG: the source only honored the first entry).
type ScheduleDailyJobRequest struct {
	Name                   string
	Target                 model.BookingTarget
	Hour                   int
	Minute                 int
	Second                 int
	DateOffset             int
	StartHours             []int
	DurationHours          int
	WarmupOffsetSeconds    int
	RequireAllUsersSuccess bool
	MaxTimeGapHours        float64
}

// ScheduleDailyJob registers and starts a new Schedule job.
func (f *Facade) ScheduleDailyJob(ctx context.Context, req ScheduleDailyJobRequest) (model.Job, error) {
	if !req.Target.HasSelector() {
		return model.Job{}, bookingerr.New(bookingerr.ErrConfig, 0, "schedule target has no preset, venue_id, or venue_keyword")
	}
	warmup := req.WarmupOffsetSeconds
	if warmup <= 0 {
		warmup = model.DefaultWarmupOffsetSeconds
	}
	state := model.ScheduleState{
		Target:                 req.Target,
		Hour:                   req.Hour,
		Minute:                 req.Minute,
		Second:                 req.Second,
		DateOffset:             req.DateOffset,
		StartHours:             req.StartHours,
		DurationHours:          req.DurationHours,
		WarmupOffsetSeconds:    warmup,
		RequireAllUsersSuccess: req.RequireAllUsersSuccess,
		MaxTimeGapHours:        req.MaxTimeGapHours,
		NextRun:                nextDailyRun(time.Now(), req.Hour, req.Minute, req.Second),
	}
	cfg, err := toConfig(state)
	if err != nil {
		return model.Job{}, err
	}
	name := req.Name
	if name == "" {
		name = fmt.Sprintf("schedule-%s-%02d%02d%02d", req.Target.VenueID, req.Hour, req.Minute, req.Second)
	}
	return f.supervisor.CreateJob(ctx, model.JobSchedule, name, cfg, true)
}

// nextDailyRun returns the next wall-clock occurrence of hour:minute:second
// from now, today if it hasn't passed yet, else tomorrow.
func nextDailyRun(now time.Time, hour, minute, second int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, second, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// ListScheduledJobs lists every Schedule job.
func (f *Facade) ListScheduledJobs() []model.Job {
	jobType := model.JobSchedule
	return f.supervisor.ListJobs(&jobType)
}

// CancelScheduledJob deletes a Schedule job (stopping it first if running).
func (f *Facade) CancelScheduledJob(ctx context.Context, jobID string) error {
	return f.supervisor.DeleteJob(ctx, jobID)
}
