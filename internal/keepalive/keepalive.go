// Package keepalive periodically pings the upstream on behalf of a
// stored user so their session cookie does not silently expire between
// scheduled jobs, and refreshes the credential store's TTL while the
// session remains valid.
//
// Grounded on original_source/sja_booking/job_manager.py's KeepAlive job
// type and api.py's ping() (which swallows transport errors by design:
// a failed keep-alive probe is not itself a login failure).
package keepalive

import (
	"context"
	"time"

	"github.com/courtrace/agent/internal/bookingapi"
	"github.com/courtrace/agent/internal/credstore"
	"github.com/courtrace/agent/internal/model"
)

// Config tunes a Loop's ping cadence and the TTL applied on each
// successful refresh.
type Config struct {
	Interval time.Duration
	TTL      time.Duration
}

// DefaultConfig pings every 10 minutes and refreshes for 8 hours,
// matching the upstream client's default login session TTL.
func DefaultConfig() Config {
	return Config{Interval: 10 * time.Minute, TTL: 8 * time.Hour}
}

// Loop keeps one user's session alive.
type Loop struct {
	cfg   Config
	api   *bookingapi.Client
	store *credstore.Store
	user  model.User
}

// New builds a Loop for a single user, using api (already authenticated
// with that user's cookie) to probe liveness.
func New(cfg Config, api *bookingapi.Client, store *credstore.Store, user model.User) *Loop {
	if cfg.Interval <= 0 {
		cfg = DefaultConfig()
	}
	return &Loop{cfg: cfg, api: api, store: store, user: user}
}

// Run pings on cfg.Interval until ctx is cancelled, refreshing the
// credential store's TTL after each successful check.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	l.api.Ping(ctx)
	if _, err := l.api.CheckLogin(ctx); err != nil {
		return
	}
	now := time.Now()
	l.user.CookieExpiresAt = now.Add(l.cfg.TTL)
	l.store.Save(l.user, now)
}
