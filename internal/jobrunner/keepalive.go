package jobrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/courtrace/agent/internal/bookingapi"
	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/keepalive"
	"github.com/courtrace/agent/internal/model"
)

// keepAliveConfig is job.Config for a JobKeepAlive job: which stored
// user's session to refresh.
type keepAliveConfig struct {
	UserKey string `json:"user_key"`
}

// runKeepAlive decodes job.Config's target user key and runs
// internal/keepalive's ping-and-refresh loop against it until ctx is
// cancelled.
func runKeepAlive(ctx context.Context, deps Deps, job model.Job) error {
	cfg, err := decodeConfig[keepAliveConfig](job.Config)
	if err != nil {
		return err
	}

	users, active, err := deps.Creds.LoadAll(time.Now())
	if err != nil {
		return fmt.Errorf("jobrunner: load credentials: %w", err)
	}
	key := cfg.UserKey
	if key == "" {
		key = active
	}
	user, ok := users[key]
	if !ok {
		return bookingerr.New(bookingerr.ErrAuthExpired, 0, fmt.Sprintf("keep-alive target user %q not found", key))
	}

	hc, err := deps.HTTPFactory.ForUser(deps.Cfg.BaseURL, user.Cookie)
	if err != nil {
		return fmt.Errorf("jobrunner: build http client: %w", err)
	}
	api := bookingapi.New(deps.Cfg.BaseURL, deps.Cfg.Endpoints, hc)

	loop := keepalive.New(keepalive.Config{
		Interval: deps.Cfg.KeepAliveInterval,
		TTL:      keepalive.DefaultConfig().TTL,
	}, api, deps.Creds, user)
	return loop.Run(ctx)
}
