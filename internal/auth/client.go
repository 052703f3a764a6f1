package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/courtrace/agent/internal/httpclient"
	"github.com/courtrace/agent/internal/model"
)

// Client drives the HTML login form for one deployment.
type Client struct {
	baseURL string
	ep      model.EndpointSet
	http    *httpclient.Client
}

// New builds a Client bound to a per-user httpclient.Client. The same
// cookie jar that accumulates the login session here is reused by
// bookingapi.Client for subsequent API calls.
func New(baseURL string, ep model.EndpointSet, hc *httpclient.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), ep: ep, http: hc}
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

// Prepare fetches the login entry page and extracts its hidden form
// fields, captcha URL, and submit target.
func (c *Client) Prepare(ctx context.Context) (*State, error) {
	entryPath := c.ep.LoginPrepare
	if entryPath == "" {
		entryPath = "/"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(entryPath), nil)
	if err != nil {
		return nil, fmt.Errorf("auth: build prepare request: %w", err)
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("auth: fetch login page: %w", err)
	}
	resp, err = followRedirects(ctx, c.http, resp, 8)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("auth: read login page: %w", err)
	}
	html := string(body)

	hidden := parseHiddenInputs(html)
	captchaSrc, captchaUUID := extractCaptchaInfo(html)
	if captchaUUID != "" {
		if _, exists := hidden["uuid"]; !exists {
			hidden["uuid"] = captchaUUID
		}
	}

	finalURL := resp.Request.URL.String()
	formAction := extractFormAction(html)
	submitURL := c.ep.LoginSubmit
	if formAction != "" {
		submitURL = c.resolveURL(resp.Request.URL, formAction)
	} else if submitURL == "" {
		submitURL = finalURL
	}

	captchaURL := ""
	if captchaSrc != "" {
		captchaURL = c.resolveURL(resp.Request.URL, captchaSrc)
	} else if c.ep.LoginCaptcha != "" {
		captchaURL = c.url(c.ep.LoginCaptcha)
	}

	loginParams := map[string]string{}
	for k, values := range resp.Request.URL.Query() {
		if len(values) > 0 && values[0] != "" {
			loginParams[k] = values[0]
		}
	}

	return &State{
		PrepareURL:      finalURL,
		SubmitURL:       submitURL,
		CaptchaURL:      captchaURL,
		Form:            hidden,
		CaptchaRequired: captchaURL != "",
		Referer:         finalURL,
		CaptchaUUID:     captchaUUID,
		LoginParams:     loginParams,
	}, nil
}

// followRedirects re-issues the request against each redirect location,
// up to maxJumps hops, since the underlying http.Client is configured to
// never follow them automatically (callers need to observe each hop's
// host, e.g. to detect the identity-provider redirect during login).
func followRedirects(ctx context.Context, hc *httpclient.Client, resp *http.Response, maxJumps int) (*http.Response, error) {
	current := resp
	for i := 0; i < maxJumps; i++ {
		if current.StatusCode < 300 || current.StatusCode >= 400 {
			return current, nil
		}
		location := current.Header.Get("Location")
		if location == "" {
			return current, nil
		}
		target := location
		if u, err := url.Parse(location); err == nil && !u.IsAbs() && current.Request != nil {
			target = current.Request.URL.ResolveReference(u).String()
		}
		method := http.MethodGet
		if current.StatusCode == http.StatusTemporaryRedirect || current.StatusCode == http.StatusPermanentRedirect {
			method = current.Request.Method
		}
		current.Body.Close()

		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			return nil, fmt.Errorf("auth: build redirect request: %w", err)
		}
		req.Header.Set("Referer", current.Request.URL.String())
		next, err := hc.Do(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("auth: follow redirect: %w", err)
		}
		current = next
	}
	return current, nil
}

func (c *Client) resolveURL(base *url.URL, target string) string {
	if target == "" {
		return base.String()
	}
	u, err := url.Parse(target)
	if err != nil {
		return base.String()
	}
	if u.IsAbs() {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

// FetchCaptcha downloads the captcha image for the given State.
func (c *Client) FetchCaptcha(ctx context.Context, state *State) ([]byte, error) {
	if state.CaptchaURL == "" {
		return nil, fmt.Errorf("auth: login has no captcha endpoint configured")
	}
	u, err := url.Parse(state.CaptchaURL)
	if err != nil {
		return nil, fmt.Errorf("auth: parse captcha url: %w", err)
	}
	q := u.Query()
	uuid := state.CaptchaUUID
	if uuid == "" {
		uuid = state.Form["uuid"]
	}
	if uuid != "" {
		q.Set("uuid", uuid)
	}
	q.Set("_ts", strconv.FormatInt(time.Now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("auth: build captcha request: %w", err)
	}
	req.Header.Set("Referer", state.Referer)
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("auth: fetch captcha image: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Submit posts the login form with credentials and the solved captcha
// text, returning the raw response for the caller to follow redirects on.
func (c *Client) Submit(ctx context.Context, state *State, username, password, captchaText string) (*http.Response, error) {
	form := mergeForm(state.Form, map[string]string{
		"user":    username,
		"pass":    password,
		"captcha": captchaText,
	})
	form = mergeForm(form, state.LoginParams)

	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, state.SubmitURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("auth: build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", state.Referer)
	if u, err := url.Parse(state.SubmitURL); err == nil && u.Scheme != "" && u.Host != "" {
		req.Header.Set("Origin", u.Scheme+"://"+u.Host)
	}
	return c.http.Do(ctx, req)
}
