package auth

import "testing"

func TestParseHiddenInputs(t *testing.T) {
	html := `<form><input type="hidden" name="sid" value="abc123"/><input type="hidden" name="uuid" value=""/></form>`
	got := parseHiddenInputs(html)
	if got["sid"] != "abc123" {
		t.Fatalf("expected sid=abc123, got %q", got["sid"])
	}
	if v, ok := got["uuid"]; !ok || v != "" {
		t.Fatalf("expected empty uuid field present, got %q ok=%v", v, ok)
	}
}

func TestExtractFormAction(t *testing.T) {
	html := `<form id="loginForm" action="/cas/login?service=abc" method="post">`
	if got := extractFormAction(html); got != "/cas/login?service=abc" {
		t.Fatalf("unexpected form action: %q", got)
	}
}

func TestExtractCaptchaInfo(t *testing.T) {
	html := `<img id="captcha-img" src="/captcha?uuid=1234abcd-5678-90ef"/>`
	src, uuid := extractCaptchaInfo(html)
	if src == "" {
		t.Fatal("expected non-empty captcha src")
	}
	if uuid != "1234abcd-5678-90ef" {
		t.Fatalf("unexpected uuid: %q", uuid)
	}
}

func TestExtractCaptchaInfoIgnoresStaticPlaceholder(t *testing.T) {
	html := `<img id="captcha-img" src="/static/image/captcha.png"/>`
	src, _ := extractCaptchaInfo(html)
	if src != "" {
		t.Fatalf("expected placeholder src to be ignored, got %q", src)
	}
}

func TestMergeFormSkipsEmptyUpdates(t *testing.T) {
	base := map[string]string{"a": "1", "b": "2"}
	updates := map[string]string{"b": "", "c": "3"}
	merged := mergeForm(base, updates)
	if merged["a"] != "1" || merged["b"] != "2" || merged["c"] != "3" {
		t.Fatalf("unexpected merge result: %+v", merged)
	}
}

func TestExtractErrorMessage(t *testing.T) {
	html := `<span id="errmsg">用户名或密码错误</span>`
	if got := extractErrorMessage(html); got != "用户名或密码错误" {
		t.Fatalf("unexpected error message: %q", got)
	}
}
