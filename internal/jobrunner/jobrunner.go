// Package jobrunner is what the re-exec'd `worker` subprocess runs: it
// loads one job's persisted config from the jobs registry file and
// drives its loop (Monitor tick, Schedule cron shots, AutoBooking
// priority sweep, or KeepAlive) until the process is signaled to stop.
//
// Grounded on the teacher's cmd/claudeworker equivalent — claude-ops
// re-execs itself as a Claude CLI subprocess wrapper in
// internal/session/runner.go, this package is the courtrace analogue:
// the re-exec'd entry point that turns one persisted job record into a
// live loop over internal/monitor, internal/cron, and
// internal/keepalive.
package jobrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/courtrace/agent/internal/auditstore"
	"github.com/courtrace/agent/internal/bookingapi"
	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/catalog"
	"github.com/courtrace/agent/internal/config"
	"github.com/courtrace/agent/internal/credstore"
	"github.com/courtrace/agent/internal/httpclient"
	"github.com/courtrace/agent/internal/model"
	"github.com/courtrace/agent/internal/monitor"
	"github.com/courtrace/agent/internal/notifier"
	"github.com/courtrace/agent/internal/resolver"
)

// Deps is the composition root a worker subprocess needs, mirroring
// facade.New's dependency list minus the supervisor itself (a worker
// never manages other jobs).
type Deps struct {
	Cfg         config.Config
	Creds       *credstore.Store
	HTTPFactory *httpclient.Factory
	Catalog     *catalog.Catalog
	Audit       *auditstore.Store
	Notify      *notifier.Notifier
}

// LoadJob reads a single job record out of <dataDir>/jobs.json without
// constructing a full Supervisor, so a worker subprocess never triggers
// the parent's crash-recovery reconciliation pass a second time.
func LoadJob(dataDir, jobID string) (model.Job, error) {
	path := filepath.Join(dataDir, "jobs.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Job{}, fmt.Errorf("jobrunner: read jobs file: %w", err)
	}
	var doc map[string]*model.Job
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.Job{}, fmt.Errorf("jobrunner: parse jobs file: %w", err)
	}
	job, ok := doc[jobID]
	if !ok || job == nil {
		return model.Job{}, fmt.Errorf("jobrunner: job %s not found in %s", jobID, path)
	}
	return *job, nil
}

// Run dispatches to the loop matching job.JobType and blocks until ctx
// is cancelled (SIGTERM delivered to the process group) or the loop
// exits on its own (KeepAlive never does; Monitor/Schedule/AutoBooking
// run indefinitely too — only a setup error, such as an undecodable job
// config or no eligible logged-in user, returns early).
func Run(ctx context.Context, deps Deps, job model.Job) error {
	switch job.JobType {
	case model.JobMonitor:
		return runMonitor(ctx, deps, job)
	case model.JobSchedule:
		return runSchedule(ctx, deps, job)
	case model.JobAutoBooking:
		return runAutoBooking(ctx, deps, job)
	case model.JobKeepAlive:
		return runKeepAlive(ctx, deps, job)
	default:
		return bookingerr.New(bookingerr.ErrConfig, 0, fmt.Sprintf("jobrunner: unknown job type %q", job.JobType))
	}
}

// buildSessions builds one monitor.UserSession per credential-store user
// eligible for target (or every stored user when target names none),
// skipping any whose cookie is expired.
func buildSessions(deps Deps, target model.BookingTarget) ([]monitor.UserSession, error) {
	users, _, err := deps.Creds.LoadAll(time.Now())
	if err != nil {
		return nil, fmt.Errorf("jobrunner: load credentials: %w", err)
	}
	targetSet := toSet(target.TargetUsers)
	excludeSet := toSet(target.ExcludeUsers)
	orderCfg := bookingapi.OrderConfig{
		RSAPublicKeyPEM: deps.Cfg.RSAPublicKeyPEM,
		ReturnURL:       deps.Cfg.ReturnURL,
		Origin:          deps.Cfg.BaseURL,
		Referer:         deps.Cfg.BaseURL + "/pc/",
	}

	var sessions []monitor.UserSession
	for key, u := range users {
		if len(targetSet) > 0 {
			if _, ok := targetSet[key]; !ok {
				continue
			}
		}
		if _, excluded := excludeSet[key]; excluded {
			continue
		}
		hc, err := deps.HTTPFactory.ForUser(deps.Cfg.BaseURL, u.Cookie)
		if err != nil {
			continue
		}
		api := bookingapi.New(deps.Cfg.BaseURL, deps.Cfg.Endpoints, hc)
		sessions = append(sessions, monitor.UserSession{
			Key:      key,
			Nickname: u.Nickname,
			API:      api,
			Resolver: resolver.New(api, deps.Catalog),
			Order:    orderCfg,
		})
	}
	if len(sessions) == 0 {
		return nil, bookingerr.New(bookingerr.ErrAuthExpired, 0, "no logged-in users eligible for this job's target")
	}
	return sessions, nil
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// runMonitor decodes job.Config into a model.MonitorState and ticks it
// on IntervalSeconds until ctx is cancelled.
func runMonitor(ctx context.Context, deps Deps, job model.Job) error {
	state, err := decodeConfig[model.MonitorState](job.Config)
	if err != nil {
		return err
	}
	sessions, err := buildSessions(deps, state.Target)
	if err != nil {
		return err
	}
	runtime := monitor.New(sessions, deps.Notify)

	interval := time.Duration(state.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := runtime.Tick(ctx, &state, time.Now()); err != nil {
			fmt.Fprintf(os.Stdout, "monitor tick error: %v\n", err)
		} else if n := len(state.FoundSlots); n > 0 {
			fmt.Fprintf(os.Stdout, "monitor tick: %d slot(s) found, %d booking attempt(s) so far\n", n, state.BookingAttempts)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func decodeConfig[T any](m map[string]any) (T, error) {
	var out T
	data, err := json.Marshal(m)
	if err != nil {
		return out, fmt.Errorf("jobrunner: marshal job config: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("jobrunner: unmarshal job config: %w", err)
	}
	return out, nil
}
