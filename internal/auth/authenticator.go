package auth

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/captcha"
	"github.com/courtrace/agent/internal/httpclient"
)

// Authenticator runs a full login: prepare, solve captcha (automated
// solver first, human fallback second), submit, follow redirects, and
// extract the resulting session cookie.
type Authenticator struct {
	client             *Client
	httpClient         *httpclient.Client
	solver             captcha.Solver
	fallback           captcha.HumanFallback
	confidenceThreshold float64
	expiresIn          time.Duration
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithSolver sets the automated captcha solver to try first.
func WithSolver(s captcha.Solver) Option {
	return func(a *Authenticator) { a.solver = s }
}

// WithHumanFallback sets the interactive fallback used when the solver
// is unavailable, errors, or returns a low-confidence result whose
// length looks implausible.
func WithHumanFallback(f captcha.HumanFallback) Option {
	return func(a *Authenticator) { a.fallback = f }
}

// WithConfidenceThreshold sets the minimum solver confidence accepted
// without falling back to a human. Default 0.3, matching the upstream
// client.
func WithConfidenceThreshold(t float64) Option {
	return func(a *Authenticator) { a.confidenceThreshold = t }
}

// WithSessionTTL sets how long a freshly obtained cookie is assumed
// valid for. Default 8 hours, matching the upstream client.
func WithSessionTTL(d time.Duration) Option {
	return func(a *Authenticator) { a.expiresIn = d }
}

// NewAuthenticator builds an Authenticator around a login Client and the
// http.Client sharing its cookie jar.
func NewAuthenticator(client *Client, hc *httpclient.Client, opts ...Option) *Authenticator {
	a := &Authenticator{
		client:              client,
		httpClient:          hc,
		confidenceThreshold: 0.3,
		expiresIn:           8 * time.Hour,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// maxCaptchaRetries bounds the total number of captcha submissions Login
// makes, the first one included; each BadCaptcha rejection before that
// bound re-fetches the captcha image and resubmits, per
// spec.md §4.5 "Between submissions on BadCaptcha, the state machine
// re-fetches the captcha image and retries without re-executing
// Prepare" and §7's "retried up to 3 times before surfacing".
const maxCaptchaRetries = 3

// badCaptchaPhrases are substrings of a scraped CAS-host error message
// that indicate the code itself was rejected, as opposed to a bad
// username/password, which should surface as LoginRejected immediately
// rather than spend the captcha retry budget.
var badCaptchaPhrases = []string{"验证码"}

// Login runs the full flow and returns the resulting session cookie.
// Prepare runs exactly once; a BadCaptcha rejection re-fetches the
// captcha image and resubmits against the same State, for at most
// maxCaptchaRetries submissions in total.
func (a *Authenticator) Login(ctx context.Context, username, password string) (Result, error) {
	state, err := a.client.Prepare(ctx)
	if err != nil {
		return Result{}, err
	}

	for attempt := 0; ; attempt++ {
		result, rejected, err := a.attemptSubmit(ctx, state, username, password)
		if err != nil {
			return Result{}, err
		}
		if !rejected {
			return result, nil
		}
		if attempt >= maxCaptchaRetries-1 {
			return Result{}, bookingerr.New(bookingerr.ErrBadCaptcha, 0, "登录失败：验证码连续错误，已重试"+fmt.Sprint(maxCaptchaRetries)+"次")
		}
		// BadCaptcha: fetch a fresh image and resubmit without re-Prepare.
	}
}

// attemptSubmit runs one submit+follow cycle. The bool return reports
// whether the rejection looks like a bad captcha code (worth a retry)
// rather than a terminal failure.
func (a *Authenticator) attemptSubmit(ctx context.Context, state *State, username, password string) (Result, bool, error) {
	captchaText := ""
	var err error
	if state.CaptchaRequired {
		captchaText, err = a.resolveCaptcha(ctx, state)
		if err != nil {
			return Result{}, false, err
		}
	}

	submitResp, err := a.client.Submit(ctx, state, username, password, captchaText)
	if err != nil {
		return Result{}, false, fmt.Errorf("auth: submit login form: %w", err)
	}
	finalResp, err := followRedirects(ctx, a.httpClient, submitResp, 8)
	if err != nil {
		return Result{}, false, err
	}
	defer finalResp.Body.Close()

	if finalResp.StatusCode >= 400 {
		return Result{}, false, bookingerr.New(bookingerr.ErrLoginRejected, finalResp.StatusCode, "登录失败")
	}

	host := ""
	if finalResp.Request != nil && finalResp.Request.URL != nil {
		host = strings.ToLower(finalResp.Request.URL.Host)
	}
	if strings.Contains(host, "jaccount") {
		body, _ := io.ReadAll(finalResp.Body)
		msg := extractErrorMessage(string(body))
		if msg == "" {
			msg = fmt.Sprintf("%d", finalResp.StatusCode)
		}
		if state.CaptchaRequired && containsAny(msg, badCaptchaPhrases) {
			return Result{}, true, nil
		}
		return Result{}, false, bookingerr.New(bookingerr.ErrLoginRejected, finalResp.StatusCode, "登录失败："+msg)
	}

	cookieHeader, err := a.httpClient.CookieHeader(a.client.baseURL)
	if err != nil {
		return Result{}, false, err
	}
	if cookieHeader == "" {
		return Result{}, false, bookingerr.New(bookingerr.ErrLoginRejected, 0, "登录失败：未获得场馆系统会话 Cookie")
	}

	return Result{
		CookieHeader: cookieHeader,
		ExpiresAt:    time.Now().Add(a.expiresIn).Unix(),
	}, false, nil
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// resolveCaptcha fetches the captcha image and solves it, trying the
// automated solver first and falling back to a human when the solver is
// absent, errors, returns an empty result, or a low-confidence result of
// implausible length.
func (a *Authenticator) resolveCaptcha(ctx context.Context, state *State) (string, error) {
	image, err := a.client.FetchCaptcha(ctx, state)
	if err != nil {
		return "", err
	}

	var text string
	var confidence float64
	if a.solver != nil {
		text, confidence, err = a.solver.Solve(ctx, image)
		if err != nil {
			text = ""
		}
	}

	needsFallback := text == ""
	if !needsFallback && confidence < a.confidenceThreshold {
		if len(text) < 4 || len(text) > 6 {
			needsFallback = true
		}
	}

	if needsFallback {
		if a.fallback == nil {
			return "", bookingerr.New(bookingerr.ErrBadCaptcha, 0, "captcha solver unavailable and no human fallback configured")
		}
		return a.fallback.Resolve(ctx, image)
	}
	return text, nil
}

