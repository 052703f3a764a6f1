// Package auth drives the CAS-style HTML form login flow against the
// booking upstream: fetching the login page, extracting its hidden
// fields and captcha image, submitting credentials, and following
// redirects until a session cookie is established.
//
// Grounded on original_source/sja_booking/auth.py (AuthClient.prepare /
// fetch_captcha / submit / login, and its regex-based HTML field
// extraction) and on the teacher's internal/session trigger-channel
// pattern (manager.go's TriggerAdHoc) for handing an interactively
// solved captcha back to a waiting login call.
package auth

import (
	"regexp"
)

var (
	hiddenInputRE  = regexp.MustCompile(`(?i)<input[^>]+type="hidden"[^>]*name="([^"]+)"[^>]*value="([^"]*)"`)
	formActionRE   = regexp.MustCompile(`(?i)<form[^>]+action="([^"]+)"`)
	captchaImgRE   = regexp.MustCompile(`(?i)<img[^>]+id="captcha-img"[^>]*src="([^"]*)"`)
	captchaUUIDRE  = regexp.MustCompile(`(?i)uuid=([0-9a-f-]{8,})`)
	errorMessageRE = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<span[^>]+id="(?:errmsg|errorMsg)"[^>]*>([^<]+)<`),
		regexp.MustCompile(`(?i)<p[^>]+class="error[^>]*>([^<]+)<`),
		regexp.MustCompile(`(?i)showMessage\(['"]([^'"]+)['"]\)`),
		regexp.MustCompile(`(?i)msg\s*:\s*['"]([^'"]+)['"]`),
	}
)

// parseHiddenInputs extracts every hidden <input> field's name/value pair.
func parseHiddenInputs(html string) map[string]string {
	form := make(map[string]string)
	for _, m := range hiddenInputRE.FindAllStringSubmatch(html, -1) {
		form[m[1]] = m[2]
	}
	return form
}

// extractFormAction returns the login form's action URL, if present.
func extractFormAction(html string) string {
	if m := formActionRE.FindStringSubmatch(html); m != nil {
		return m[1]
	}
	return ""
}

// extractErrorMessage scans known HTML/JS error-surfacing patterns for a
// human-readable login failure message.
func extractErrorMessage(html string) string {
	for _, re := range errorMessageRE {
		if m := re.FindStringSubmatch(html); m != nil {
			return m[1]
		}
	}
	return ""
}

// extractCaptchaInfo locates the captcha image src and its uuid token,
// if the login page embeds one.
func extractCaptchaInfo(html string) (src, uuid string) {
	if m := captchaImgRE.FindStringSubmatch(html); m != nil {
		src = m[1]
		if src == "" || hasSuffix(src, "image/captcha.png") {
			src = ""
		}
	}
	scanTarget := src
	if scanTarget == "" {
		scanTarget = html
	}
	if m := captchaUUIDRE.FindStringSubmatch(scanTarget); m != nil {
		uuid = m[1]
	} else if m := captchaUUIDRE.FindStringSubmatch(html); m != nil {
		uuid = m[1]
	}
	return src, uuid
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// mergeForm overlays updates onto base, skipping empty values, matching
// _merge_form's "updates win, but never with a blank value" semantics.
func mergeForm(base map[string]string, updates map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(updates))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range updates {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}

// State captures one in-progress login attempt between prepare and submit.
type State struct {
	PrepareURL      string
	SubmitURL       string
	CaptchaURL      string
	Form            map[string]string
	CaptchaRequired bool
	Referer         string
	CaptchaUUID     string
	LoginParams     map[string]string
}

// Result is a completed login: the session cookie header and its
// assumed expiry.
type Result struct {
	CookieHeader string
	ExpiresAt    int64 // unix seconds; set by Authenticator from time.Now() plus its configured expiry
}
