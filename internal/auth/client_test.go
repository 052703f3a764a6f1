package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/courtrace/agent/internal/httpclient"
	"github.com/courtrace/agent/internal/model"
)

// TestPrepareFollowsRedirectChain exercises a multi-hop 302 chain in front
// of the login page, mirroring a real CAS deployment's entry redirect, to
// confirm Prepare scrapes the final landing page rather than an empty
// redirect body.
func TestPrepareFollowsRedirectChain(t *testing.T) {
	var hops int
	mux := http.NewServeMux()
	mux.HandleFunc("/entry", func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, "/mid", http.StatusFound)
	})
	mux.HandleFunc("/mid", func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, "/cas/login?service=booking", http.StatusFound)
	})
	mux.HandleFunc("/cas/login", func(w http.ResponseWriter, r *http.Request) {
		hops++
		w.Write([]byte(`<html><body>
			<form id="loginForm" action="/cas/submit" method="post">
				<input type="hidden" name="sid" value="s-123"/>
			</form>
			<img id="captcha-img" src="/cas/captcha?uuid=abcd-1234"/>
		</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	factory := httpclient.NewFactory(httpclient.DefaultConfig())
	hc, err := factory.ForUser(srv.URL, "")
	if err != nil {
		t.Fatalf("build client: %v", err)
	}

	client := New(srv.URL, model.EndpointSet{LoginPrepare: "/entry"}, hc)
	state, err := client.Prepare(t.Context())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if hops != 3 {
		t.Fatalf("expected all 3 hops to be hit, got %d", hops)
	}
	if state.Form["sid"] != "s-123" {
		t.Fatalf("expected hidden field scraped from final page, got %+v", state.Form)
	}
	if !strings.HasSuffix(state.SubmitURL, "/cas/submit") {
		t.Fatalf("expected submit url resolved against final page, got %q", state.SubmitURL)
	}
	if !state.CaptchaRequired || !strings.Contains(state.CaptchaURL, "/cas/captcha") {
		t.Fatalf("expected captcha scraped from final page, got %+v", state)
	}
}
