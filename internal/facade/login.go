package facade

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/courtrace/agent/internal/auth"
	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/captcha"
	"github.com/courtrace/agent/internal/model"
)

// loginSession tracks one interactive login attempt: Authenticator.Login
// runs in its own goroutine and blocks on captchaCh whenever it needs a
// human to read an image, bridged here by a captcha.HumanFallback
// adapter that never runs a solver of its own.
type loginSession struct {
	id         string
	username   string
	lastActive time.Time

	mu        sync.Mutex
	image     []byte
	waiting   bool
	codeCh    chan string
	done      chan struct{}
	result    auth.Result
	err       error
	cancelled bool
}

// loginSessionManager tracks in-flight interactive login sessions and
// garbage-collects ones idle past ttl, per spec.md §5's "Login sessions
// have a 10-minute idle timeout after which they are garbage-collected."
type loginSessionManager struct {
	ttl      time.Duration
	mu       sync.Mutex
	sessions map[string]*loginSession
	stop     chan struct{}
	once     sync.Once
}

func newLoginSessionManager(ttl time.Duration) *loginSessionManager {
	m := &loginSessionManager{
		ttl:      ttl,
		sessions: make(map[string]*loginSession),
		stop:     make(chan struct{}),
	}
	go m.gcLoop()
	return m
}

func (m *loginSessionManager) gcLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *loginSessionManager) sweep() {
	now := time.Now()
	m.mu.Lock()
	var expired []*loginSession
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastActive) > m.ttl
		s.mu.Unlock()
		if idle {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range expired {
		s.cancel()
	}
}

func (m *loginSessionManager) add(s *loginSession) {
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
}

func (m *loginSessionManager) get(id string) (*loginSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *loginSessionManager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *loginSessionManager) stopAll() {
	m.once.Do(func() { close(m.stop) })
	m.mu.Lock()
	sessions := make([]*loginSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.cancel()
	}
}

// awaitCaptcha is called from the Login goroutine; it publishes the
// captcha image and blocks until SubmitLoginSessionCode delivers a code
// or the session is cancelled.
func (s *loginSession) awaitCaptcha(ctx context.Context, image []byte) (string, error) {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return "", bookingerr.New(bookingerr.ErrLoginRejected, 0, "login session cancelled")
	}
	s.image = image
	s.waiting = true
	s.lastActive = time.Now()
	s.mu.Unlock()

	select {
	case code, ok := <-s.codeCh:
		if !ok {
			return "", bookingerr.New(bookingerr.ErrLoginRejected, 0, "login session cancelled")
		}
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Resolve implements captcha.HumanFallback by delegating to awaitCaptcha.
type sessionCaptchaFallback struct {
	session *loginSession
}

func (f sessionCaptchaFallback) Resolve(ctx context.Context, image []byte) (string, error) {
	return f.session.awaitCaptcha(ctx, image)
}

var _ captcha.HumanFallback = sessionCaptchaFallback{}

func (s *loginSession) cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.mu.Unlock()
	close(s.codeCh)
}

func (s *loginSession) finish(result auth.Result, err error) {
	s.mu.Lock()
	s.result = result
	s.err = err
	s.waiting = false
	s.mu.Unlock()
	close(s.done)
}

func newSessionID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// LoginSessionView is the externally visible snapshot of a pending or
// finished interactive login.
type LoginSessionView struct {
	SessionID   string `json:"session_id"`
	Status      string `json:"status"` // pending, awaiting_captcha, success, failed
	CaptchaPNG  []byte `json:"captcha_png,omitempty"`
	Message     string `json:"message,omitempty"`
}

// StartLoginSession begins an interactive login for username/password,
// waiting up to 5 seconds and returning a captcha image to solve, the
// final result (when no captcha is required this round), or a "pending"
// status when neither happened in time. Per spec.md §4.12.
func (f *Facade) StartLoginSession(ctx context.Context, username, password string) (LoginSessionView, error) {
	hc, client, err := f.authClientFor()
	if err != nil {
		return LoginSessionView{}, err
	}

	session := &loginSession{
		id:         newSessionID(),
		username:   username,
		lastActive: time.Now(),
		codeCh:     make(chan string),
		done:       make(chan struct{}),
	}

	authenticator := auth.NewAuthenticator(client, hc,
		auth.WithSolver(f.captchaReg.Resolve(f.cfg.CaptchaSolver)),
		auth.WithHumanFallback(sessionCaptchaFallback{session: session}),
		auth.WithConfidenceThreshold(f.cfg.CaptchaConfidenceThreshold),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		result, err := authenticator.Login(runCtx, username, password)
		session.finish(result, err)
	}()

	f.sessions.add(session)

	// Give the Login goroutine a brief window to either hit the captcha
	// step (publishing an image) or finish outright, so the first call
	// can return a useful status instead of always "awaiting_captcha".
	select {
	case <-session.done:
		f.sessions.remove(session.id)
		return f.loginResultView(session), nil
	case <-waitForCaptchaOrTimeout(session, 5*time.Second):
		return f.loginSessionSnapshot(session), nil
	}
}

func waitForCaptchaOrTimeout(s *loginSession, d time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
			s.mu.Lock()
			ready := s.waiting
			s.mu.Unlock()
			if ready {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
		close(ch)
	}()
	return ch
}

func (f *Facade) loginSessionSnapshot(s *loginSession) LoginSessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiting {
		return LoginSessionView{SessionID: s.id, Status: "awaiting_captcha", CaptchaPNG: s.image}
	}
	select {
	case <-s.done:
		return f.loginResultViewLocked(s)
	default:
		return LoginSessionView{SessionID: s.id, Status: "pending"}
	}
}

func (f *Facade) loginResultView(s *loginSession) LoginSessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return f.loginResultViewLocked(s)
}

func (f *Facade) loginResultViewLocked(s *loginSession) LoginSessionView {
	if s.err != nil {
		return LoginSessionView{SessionID: s.id, Status: "failed", Message: s.err.Error()}
	}
	user := model.User{
		Nickname:        s.username,
		Username:        s.username,
		Cookie:          s.result.CookieHeader,
		CookieExpiresAt: time.Unix(s.result.ExpiresAt, 0),
	}
	if err := f.creds.Save(user, time.Now()); err != nil {
		return LoginSessionView{SessionID: s.id, Status: "failed", Message: fmt.Sprintf("save credentials: %v", err)}
	}
	_, _ = f.creds.SetActiveUser(user.Key())
	return LoginSessionView{SessionID: s.id, Status: "success"}
}

// SubmitLoginSessionCode supplies a human-read captcha code for a
// session awaiting one, then waits briefly to see whether the login
// completes or needs another round (a BadCaptcha retry re-publishes a
// fresh image on the same session).
func (f *Facade) SubmitLoginSessionCode(ctx context.Context, sessionID, code string) (LoginSessionView, error) {
	session, ok := f.sessions.get(sessionID)
	if !ok {
		return LoginSessionView{}, bookingerr.New(bookingerr.ErrConfig, 0, fmt.Sprintf("login session %q not found", sessionID))
	}

	session.mu.Lock()
	if !session.waiting {
		session.mu.Unlock()
		return LoginSessionView{}, bookingerr.New(bookingerr.ErrConfig, 0, "login session is not awaiting a code")
	}
	session.waiting = false
	session.lastActive = time.Now()
	session.mu.Unlock()

	select {
	case session.codeCh <- code:
	case <-ctx.Done():
		return LoginSessionView{}, ctx.Err()
	}

	select {
	case <-session.done:
		f.sessions.remove(sessionID)
		return f.loginResultView(session), nil
	case <-waitForCaptchaOrTimeout(session, 5*time.Second):
		return f.loginSessionSnapshot(session), nil
	}
}

// CancelLoginSession aborts a pending interactive login.
func (f *Facade) CancelLoginSession(sessionID string) error {
	session, ok := f.sessions.get(sessionID)
	if !ok {
		return bookingerr.New(bookingerr.ErrConfig, 0, fmt.Sprintf("login session %q not found", sessionID))
	}
	session.cancel()
	f.sessions.remove(sessionID)
	return nil
}

// LoginStatus returns a snapshot of a pending or finished login session.
func (f *Facade) LoginStatus(sessionID string) (LoginSessionView, error) {
	session, ok := f.sessions.get(sessionID)
	if !ok {
		return LoginSessionView{}, bookingerr.New(bookingerr.ErrConfig, 0, fmt.Sprintf("login session %q not found", sessionID))
	}
	return f.loginSessionSnapshot(session), nil
}
