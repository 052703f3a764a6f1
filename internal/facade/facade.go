// Package facade is courtrace's single composed entry point (C12):
// every external caller (chat bot, admin API, CLI) goes through these
// methods instead of touching C1–C11 directly. Each method builds
// whatever it needs for one call — an HTTP client for the chosen user,
// a resolver, a booking API client — and returns a plain result
// dataclass with no references to internal state.
//
// Grounded on spec.md §4.12 directly (no teacher file models an
// equivalent composition root — claude-ops calls its subsystems from
// cmd/claudeops/main.go and internal/web handlers instead of a single
// facade type), with non-blocking worker-pool offload grounded on
// github.com/sourcegraph/conc's pool API, promoted here from an
// indirect dependency (carried transitively via mark3labs/mcp-go in
// the teacher's go.mod) to a direct, exercised one.
package facade

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/courtrace/agent/internal/auditstore"
	"github.com/courtrace/agent/internal/auth"
	"github.com/courtrace/agent/internal/bookingapi"
	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/captcha"
	"github.com/courtrace/agent/internal/catalog"
	"github.com/courtrace/agent/internal/config"
	"github.com/courtrace/agent/internal/credstore"
	"github.com/courtrace/agent/internal/httpclient"
	"github.com/courtrace/agent/internal/model"
	"github.com/courtrace/agent/internal/notifier"
	"github.com/courtrace/agent/internal/resolver"
	"github.com/courtrace/agent/internal/supervisor"
)

// Facade composes every subsystem the external callers described in
// spec.md §1 ("Out of scope: the chat-bot command parser, the web
// dashboard... consume the core via the service facade") need.
type Facade struct {
	cfg         config.Config
	creds       *credstore.Store
	httpFactory *httpclient.Factory
	catalog     *catalog.Catalog
	supervisor  *supervisor.Supervisor
	audit       *auditstore.Store
	notify      *notifier.Notifier
	captchaReg  *captcha.Registry
	pool        *pool.Pool
	sessions    *loginSessionManager
}

// New builds a Facade over an already-constructed composition root.
// Every dependency is passed in rather than looked up from a global, per
// spec.md §9's "replace module-level globals with a composition root".
func New(
	cfg config.Config,
	creds *credstore.Store,
	httpFactory *httpclient.Factory,
	cat *catalog.Catalog,
	sup *supervisor.Supervisor,
	audit *auditstore.Store,
	notify *notifier.Notifier,
	captchaReg *captcha.Registry,
) *Facade {
	return &Facade{
		cfg:         cfg,
		creds:       creds,
		httpFactory: httpFactory,
		catalog:     cat,
		supervisor:  sup,
		audit:       audit,
		notify:      notify,
		captchaReg:  captchaReg,
		pool:        pool.New().WithMaxGoroutines(8),
		sessions:    newLoginSessionManager(10 * time.Minute),
	}
}

// resolveUser loads the requested user (the active user when key is
// empty) and rejects an absent or expired cookie with AuthExpired,
// matching the User invariant in spec.md §3.
func (f *Facade) resolveUser(key string) (model.User, error) {
	users, active, err := f.creds.LoadAll(time.Now())
	if err != nil {
		return model.User{}, fmt.Errorf("facade: load credentials: %w", err)
	}
	if key == "" {
		key = active
	}
	if key == "" {
		return model.User{}, bookingerr.New(bookingerr.ErrAuthExpired, 0, "没有已登录的用户")
	}
	user, ok := users[key]
	if !ok {
		return model.User{}, bookingerr.New(bookingerr.ErrAuthExpired, 0, fmt.Sprintf("用户 %q 未登录或会话已过期", key))
	}
	if user.Expired(time.Now()) {
		return model.User{}, bookingerr.New(bookingerr.ErrAuthExpired, 0, fmt.Sprintf("用户 %q 的会话已过期", key))
	}
	return user, nil
}

// eligibleUsers resolves every user the target's TargetUsers/ExcludeUsers
// filters admit, defaulting to every non-expired stored user when both
// filters are empty.
func (f *Facade) eligibleUsers(target model.BookingTarget) ([]model.User, error) {
	users, _, err := f.creds.LoadAll(time.Now())
	if err != nil {
		return nil, fmt.Errorf("facade: load credentials: %w", err)
	}
	targetSet := toSet(target.TargetUsers)
	excludeSet := toSet(target.ExcludeUsers)
	var out []model.User
	for key, u := range users {
		if len(targetSet) > 0 {
			if _, ok := targetSet[key]; !ok {
				continue
			}
		}
		if _, excluded := excludeSet[key]; excluded {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// clientFor builds a booking API client and a resolver scoped to user's
// cookie. The caller owns neither any shared state nor a cleanup
// obligation beyond letting the *httpclient.Client be garbage collected,
// matching spec.md §9's "scope each client to a user value with
// explicit close on end-of-use; do not cache globally" (there is no
// persistent connection to close beyond the pooled transport).
func (f *Facade) clientFor(user model.User) (*bookingapi.Client, *resolver.Resolver, error) {
	hc, err := f.httpFactory.ForUser(f.cfg.BaseURL, user.Cookie)
	if err != nil {
		return nil, nil, fmt.Errorf("facade: build http client: %w", err)
	}
	api := bookingapi.New(f.cfg.BaseURL, f.cfg.Endpoints, hc)
	res := resolver.New(api, f.catalog)
	return api, res, nil
}

// orderConfig builds the deployment-wide order-encryption settings
// shared by every user's order submission.
func (f *Facade) orderConfig() bookingapi.OrderConfig {
	return bookingapi.OrderConfig{
		RSAPublicKeyPEM: f.cfg.RSAPublicKeyPEM,
		ReturnURL:       f.cfg.ReturnURL,
		Origin:          f.cfg.BaseURL,
		Referer:         f.cfg.BaseURL + "/pc/",
	}
}

// authClientFor builds an unauthenticated HTTP client plus a CAS login
// Client for a fresh login attempt.
func (f *Facade) authClientFor() (*httpclient.Client, *auth.Client, error) {
	hc, err := f.httpFactory.ForUser(f.cfg.BaseURL, "")
	if err != nil {
		return nil, nil, fmt.Errorf("facade: build http client: %w", err)
	}
	return hc, auth.New(f.cfg.BaseURL, f.cfg.Endpoints, hc), nil
}

// runBlocking offloads a blocking upstream call to the bounded worker
// pool and waits for its result, matching spec.md §5's "facade methods
// are non-blocking [at the caller boundary]; offload blocking upstream
// calls to a worker pool" — the offload still blocks this goroutine
// (callers already run facade methods from their own goroutine), but
// bounds total concurrent upstream connections regardless of how many
// callers invoke the facade at once.
func runBlocking[T any](ctx context.Context, p *pool.Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	var resultErr error
	done := make(chan struct{})
	p.Go(func() {
		defer close(done)
		result, resultErr = fn(ctx)
	})
	select {
	case <-done:
		return result, resultErr
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Shutdown releases the facade's worker pool and login sessions.
func (f *Facade) Shutdown() {
	f.pool.Wait()
	f.sessions.stopAll()
}
