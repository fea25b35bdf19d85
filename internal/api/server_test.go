package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ZZSZ-YCT/customSystem/internal/audit"
	"github.com/ZZSZ-YCT/customSystem/internal/auth"
	"github.com/ZZSZ-YCT/customSystem/internal/infrastructure/config"
	"github.com/ZZSZ-YCT/customSystem/internal/infrastructure/database"
	"github.com/ZZSZ-YCT/customSystem/internal/infrastructure/logging"
	"github.com/ZZSZ-YCT/customSystem/internal/oauth"
	_ "github.com/ZZSZ-YCT/customSystem/migrations"
)

const (
	testSecret       = "test-secret-key-at-least-32-characters-long"
	testUserPassword = "correct-horse-battery"
)

// testPasswordHash is shared so each test pays for one argon2 hash at most.
var testPasswordHash = sync.OnceValue(func() string {
	hash, err := auth.HashPassword(testUserPassword)
	if err != nil {
		panic(err)
	}
	return hash
})

// testEnv is a server wired to memory identity and token stores and a
// temporary SQLite audit log.
type testEnv struct {
	srv        *Server
	router     http.Handler
	identities *auth.MemoryIdentityStore
	tokens     *auth.MemoryTokenStore
	auditRepo  *audit.SQLiteRepository
	metrics    *Metrics
	admin      *auth.BootstrapResult
}

type fakeHealth struct {
	err error
}

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

func newTestEnv(t *testing.T, health HealthChecker) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := testLogger()

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "api.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	env := &testEnv{
		identities: auth.NewMemoryIdentityStore(),
		tokens:     auth.NewMemoryTokenStore(),
		auditRepo:  audit.NewSQLiteRepository(db.DB),
		metrics:    NewMetrics(prometheus.NewRegistry()),
	}
	events := auth.EventRecorders{audit.NewRecorder(env.auditRepo, log.Logger), env.metrics}

	issuer, err := auth.NewTokenIssuer(auth.IssuerConfig{
		Secret:          testSecret,
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}

	env.admin, err = auth.Bootstrap(ctx, env.identities, log.Logger)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	env.addIdentity(t, "ops", auth.RoleAdmin, auth.CapabilityUser)
	env.addIdentity(t, "alice", auth.RoleUser, auth.CapabilityUser)

	env.srv, err = New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:      log,
		Sessions:    auth.NewSessionManager(env.identities, env.tokens, issuer, auth.WithEventRecorder(events)),
		Permissions: auth.NewPermissionService(env.identities, events),
		Registrar:   auth.NewRegistrar(env.identities, auth.WithRegistrationEvents(events)),
		Apps:        oauth.NewService(oauth.NewMemoryStore(), events),
		AuditRepo:   env.auditRepo,
		Health:      health,
		Metrics:     env.metrics,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.router = env.srv.buildRouter()
	return env
}

func (e *testEnv) addIdentity(t *testing.T, username string, role auth.Role, perms ...string) {
	t.Helper()
	err := e.identities.Create(context.Background(), &auth.Identity{
		Username:     username,
		DisplayName:  username,
		Role:         role,
		Permissions:  perms,
		PasswordHash: testPasswordHash(),
		TOTPSecret:   "JBSWY3DPEHPK3PXP",
	})
	if err != nil {
		t.Fatalf("creating %s: %v", username, err)
	}
}

// do sends a request through the router. body is JSON-encoded unless it is nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T, username, password string) auth.TokenPair {
	t.Helper()
	w := e.do(t, http.MethodPost, "/user/login", map[string]string{"username": username, "password": password}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login %s status = %d; body: %s", username, w.Code, w.Body.String())
	}
	var pair auth.TokenPair
	decode(t, w, &pair)
	return pair
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	return e.login(t, auth.SuperAdminUsername, e.admin.Password).AccessToken
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

// expectError checks the status and the code of an error envelope.
func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, status, w.Body.String())
	}
	var e Error
	decode(t, w, &e)
	if e.Code != code || e.Status != status {
		t.Errorf("error = %+v, want status %d code %q", e, status, code)
	}
}

// ─── Health and Middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t, fakeHealth{})

	w := env.do(t, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestHealth_Unhealthy(t *testing.T) {
	env := newTestEnv(t, fakeHealth{err: errors.New("database is locked")})

	w := env.do(t, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", resp["status"])
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/health", nil, "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/user/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	env.srv.cfg.CORS.AllowedOrigins = []string{"https://panel.example.com"}
	env.router = env.srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("ACAO = %q, want empty", got)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	expectError(t, env.do(t, http.MethodGet, "/nonexistent", nil, ""), http.StatusNotFound, auth.CodeNotFound)
}

func TestRecoveryMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)
	h := env.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	expectError(t, w, http.StatusInternalServerError, auth.CodeInternal)
}

func TestBodySizeLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	big := bytes.Repeat([]byte("a"), maxRequestBodySize+1)
	body := fmt.Sprintf(`{"username":"alice","password":%q}`, big)
	req := httptest.NewRequest(http.MethodPost, "/user/login", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	expectError(t, w, http.StatusBadRequest, auth.CodeInvalidRequest)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer  abc ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, ok := bearerToken(req)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRemoteHost(t *testing.T) {
	tests := map[string]string{
		"192.0.2.1:5555":   "192.0.2.1",
		"[2001:db8::1]:80": "2001:db8::1",
		"192.0.2.1":        "192.0.2.1",
	}
	for in, want := range tests {
		if got := remoteHost(in); got != want {
			t.Errorf("remoteHost(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{auth.ErrTokenNotFound, http.StatusUnauthorized},
		{auth.ErrTokenExpired, http.StatusUnauthorized},
		{auth.ErrTokenInvalid, http.StatusUnauthorized},
		{auth.ErrUsernameTaken, http.StatusConflict},
		{auth.ErrInsufficientPermissions, http.StatusForbidden},
		{auth.ErrSelfModificationDenied, http.StatusForbidden},
		{auth.ErrInvalidOperation, http.StatusBadRequest},
		{auth.ErrWeakPassword, http.StatusBadRequest},
		{oauth.ErrInvalidApp, http.StatusBadRequest},
		{auth.ErrIdentityNotFound, http.StatusNotFound},
		{auth.ErrConflict, http.StatusConflict},
		{oauth.ErrAppNameTaken, http.StatusConflict},
		{fmt.Errorf("%w: disk I/O error", auth.ErrStorageFailure), http.StatusInternalServerError},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusForCode(auth.ErrorCode(tt.err)); got != tt.want {
			t.Errorf("status for %v = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteAuthError_HidesStorageDetail(t *testing.T) {
	env := newTestEnv(t, nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	env.srv.writeAuthError(w, r, fmt.Errorf("%w: /var/lib/usercenter.db: disk I/O error", auth.ErrStorageFailure))

	expectError(t, w, http.StatusInternalServerError, auth.CodeStorageFailure)
	if bytes.Contains(w.Body.Bytes(), []byte("disk I/O")) {
		t.Errorf("storage detail leaked: %s", w.Body.String())
	}
}

// ─── Metrics ───────────────────────────────────────────────────────

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/user/login", map[string]string{"username": "alice", "password": "wrong-password"}, "")

	w := env.do(t, http.MethodGet, "/metrics", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`usercenter_http_requests_total{method="POST",route="/user/login",status="401"} 1`,
		`usercenter_auth_events_total{outcome="invalid_credentials",type="login.failed"} 1`,
		"usercenter_http_request_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !bytes.Contains([]byte(body), []byte(want)) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) error = nil, want error")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without session manager error = nil, want error")
	}
}

func TestServer_StartAndClose(t *testing.T) {
	env := newTestEnv(t, nil)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	env.srv.cfg.Port = port

	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := env.srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	addr := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	var resp *http.Response
	for range 50 {
		if resp, err = http.Get(addr); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}
	if err := env.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after Start error = %v", err)
	}

	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if _, err := http.Get(addr); err == nil {
		t.Error("server still responding after Close()")
	}
}
