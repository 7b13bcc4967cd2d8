package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"authpipe/internal/sessiond/app"
	"authpipe/internal/sessiond/ports/transport"
	"authpipe/internal/sessiond/ports/ui"
)

const (
	refreshPath = "/api/auth/refresh"
	loginPath   = "/api/auth/login"
	logoutPath  = "/api/auth/logout"
	mePath      = "/api/auth/me"
	loginPage   = "/html/login.html"
	homePage    = "/index.html"
	banDelay    = 3 * time.Second
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type notice struct {
	level   ui.Level
	message string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) Notify(_ context.Context, level ui.Level, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{level: level, message: message})
}

func (n *recordingNotifier) all() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}

type recordingNavigator struct {
	mu      sync.Mutex
	targets []string
}

func (n *recordingNavigator) Navigate(_ context.Context, target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.targets = append(n.targets, target)
}

func (n *recordingNavigator) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.targets...)
}

type scheduled struct {
	delay time.Duration
	fn    func()
}

// manualScheduler откладывает переходы до явного вызова runAll.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []scheduled
}

func (s *manualScheduler) schedule(delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, scheduled{delay: delay, fn: fn})
}

func (s *manualScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, task.delay)
	}
	return out
}

func (s *manualScheduler) runAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, task := range tasks {
		task.fn()
	}
}

// mapCache - кэш профилей в памяти теста.
type mapCache struct {
	mu     sync.Mutex
	values map[string]string
	sets   int
}

func newMapCache() *mapCache {
	return &mapCache{values: make(map[string]string)}
}

func (c *mapCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key], nil
}

func (c *mapCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.sets++
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *mapCache) Close() error { return nil }

func (c *mapCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// harness собирает конвейер поверх тестового сервера.
type harness struct {
	server      *httptest.Server
	clock       *fakeClock
	store       *app.TokenStore
	coordinator *app.RefreshCoordinator
	notifier    *recordingNotifier
	navigator   *recordingNavigator
	scheduler   *manualScheduler
	redirector  *app.Redirector
	transport   *app.AuthenticatedTransport
	api         *app.API
	cache       *mapCache
	gate        *app.SessionGate
}

func newHarness(t *testing.T, handler http.Handler) *harness {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	h := &harness{
		server:    server,
		clock:     newFakeClock(),
		notifier:  &recordingNotifier{},
		navigator: &recordingNavigator{},
		scheduler: &manualScheduler{},
		cache:     newMapCache(),
	}

	sender := transport.SenderFunc(server.Client().Do)

	h.store = app.NewTokenStore(app.WithClock(h.clock.Now))
	h.coordinator = app.NewRefreshCoordinator(h.store, sender, server.URL+refreshPath, 5*time.Second)
	h.redirector = app.NewRedirector(h.navigator, h.scheduler.schedule)

	var err error
	h.transport, err = app.NewAuthenticatedTransport(h.store, h.coordinator, sender, h.notifier, h.redirector, app.TransportConfig{
		BaseURL:          server.URL,
		RefreshPath:      refreshPath,
		LoginPage:        loginPage,
		BanRedirectDelay: banDelay,
	})
	require.NoError(t, err)

	h.api = app.NewAPI(h.transport)
	h.gate = app.NewSessionGate(h.store, h.coordinator, h.api, h.cache, h.redirector, app.GateConfig{
		LoginPage:   loginPage,
		HomePage:    homePage,
		MePath:      mePath,
		IdentityTTL: time.Minute,
	})
	return h
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func grantHandler(token string, expiresIn int64) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"accessToken": token, "expiresIn": expiresIn})
	}
}

func bearer(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(prefix) {
		return ""
	}
	return auth[len(prefix):]
}
