package api

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ZZSZ-YCT/customSystem/internal/auth"
)

// ─── Login ─────────────────────────────────────────────────────────

func TestLogin_Password(t *testing.T) {
	env := newTestEnv(t, nil)

	pair := env.login(t, "alice", testUserPassword)
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.RefreshTokenUUID == "" {
		t.Errorf("pair = %+v, want every token field set", pair)
	}
	if !pair.ExpiresAt.After(time.Now()) {
		t.Errorf("ExpiresAt = %v, want in the future", pair.ExpiresAt)
	}
	if env.tokens.Len() != 1 {
		t.Errorf("stored refresh tokens = %d, want 1", env.tokens.Len())
	}
}

func TestLogin_TOTP(t *testing.T) {
	env := newTestEnv(t, nil)

	code, err := auth.TOTPCode(env.admin.TOTPSecret, time.Now())
	if err != nil {
		t.Fatalf("TOTPCode() error = %v", err)
	}
	w := env.do(t, http.MethodPost, "/user/login", map[string]string{"username": auth.SuperAdminUsername, "totp": code}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"wrong password", map[string]string{"username": "alice", "password": "not-the-password"}, http.StatusUnauthorized, auth.CodeInvalidCredentials},
		{"unknown user", map[string]string{"username": "nobody", "password": testUserPassword}, http.StatusUnauthorized, auth.CodeInvalidCredentials},
		{"guest cannot log in", map[string]string{"username": auth.GuestUsername, "password": testUserPassword}, http.StatusUnauthorized, auth.CodeInvalidCredentials},
		{"wrong totp", map[string]string{"username": "alice", "totp": "000000"}, http.StatusUnauthorized, auth.CodeInvalidCredentials},
		{"both credentials", map[string]string{"username": "alice", "password": testUserPassword, "totp": "123456"}, http.StatusBadRequest, auth.CodeInvalidRequest},
		{"no credential", map[string]string{"username": "alice"}, http.StatusBadRequest, auth.CodeInvalidRequest},
		{"no username", map[string]string{"password": testUserPassword}, http.StatusBadRequest, auth.CodeInvalidRequest},
		{"not json", "{", http.StatusBadRequest, auth.CodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, env.do(t, http.MethodPost, "/user/login", tt.body, ""), tt.status, tt.code)
		})
	}
}

// ─── Refresh and Logout ────────────────────────────────────────────

func TestGetAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	pair := env.login(t, "alice", testUserPassword)

	w := env.do(t, http.MethodPost, "/user/getAccessToken", map[string]string{"refreshToken": pair.RefreshToken}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp accessTokenResponse
	decode(t, w, &resp)
	if resp.AccessToken == "" {
		t.Error("expected a new access token")
	}
	if resp.RefreshToken != "" {
		t.Errorf("refreshToken = %q, want none without rotation", resp.RefreshToken)
	}

	me := env.do(t, http.MethodGet, "/user/me", nil, resp.AccessToken)
	if me.Code != http.StatusOK {
		t.Errorf("refreshed token rejected: %d %s", me.Code, me.Body.String())
	}
}

func TestGetAccessToken_Failures(t *testing.T) {
	env := newTestEnv(t, nil)

	expectError(t, env.do(t, http.MethodPost, "/user/getAccessToken", map[string]string{"refreshToken": "unknown"}, ""),
		http.StatusUnauthorized, auth.CodeTokenNotFound)
	expectError(t, env.do(t, http.MethodPost, "/user/getAccessToken", map[string]string{}, ""),
		http.StatusBadRequest, auth.CodeInvalidRequest)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	pair := env.login(t, "alice", testUserPassword)

	for i := range 2 {
		w := env.do(t, http.MethodPost, "/user/logout", map[string]string{"refreshToken": pair.RefreshToken}, "")
		if w.Code != http.StatusOK {
			t.Fatalf("logout #%d status = %d; body: %s", i+1, w.Code, w.Body.String())
		}
	}

	expectError(t, env.do(t, http.MethodPost, "/user/getAccessToken", map[string]string{"refreshToken": pair.RefreshToken}, ""),
		http.StatusUnauthorized, auth.CodeTokenNotFound)
}

// ─── Registration ──────────────────────────────────────────────────

func registerBody(username string) map[string]string {
	return map[string]string{"username": username, "nickname": "New " + username, "password": "long-enough-pw"}
}

func openSelfRegistration(t *testing.T, env *testEnv) {
	t.Helper()
	ctx := context.Background()
	guest, err := env.identities.GetByUsername(ctx, auth.GuestUsername)
	if err != nil {
		t.Fatalf("reading guest: %v", err)
	}
	if _, err := env.identities.UpdatePermissions(ctx, auth.GuestUsername, []string{auth.CapabilityRegister}, guest.Version); err != nil {
		t.Fatalf("opening self-registration: %v", err)
	}
}

func TestRegister_ClosedForAnonymous(t *testing.T) {
	env := newTestEnv(t, nil)
	expectError(t, env.do(t, http.MethodPost, "/user/register", registerBody("bob"), ""),
		http.StatusForbidden, auth.CodeInsufficientPermissions)

	userToken := env.login(t, "alice", testUserPassword).AccessToken
	expectError(t, env.do(t, http.MethodPost, "/user/register", registerBody("bob"), userToken),
		http.StatusForbidden, auth.CodeInsufficientPermissions)
}

func TestRegister_SelfRegistrationOpen(t *testing.T) {
	env := newTestEnv(t, nil)
	openSelfRegistration(t, env)

	w := env.do(t, http.MethodPost, "/user/register", registerBody("bob"), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp registerResponse
	decode(t, w, &resp)
	if resp.Username != "bob" || resp.Nickname != "New bob" || resp.Role != auth.RoleUser {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Permissions) != 1 || resp.Permissions[0] != auth.CapabilityUser {
		t.Errorf("permissions = %v, want [user]", resp.Permissions)
	}
	if resp.TOTPSecret == "" {
		t.Fatal("expected the TOTP secret in the registration response")
	}

	code, err := auth.TOTPCode(resp.TOTPSecret, time.Now())
	if err != nil {
		t.Fatalf("TOTPCode() error = %v", err)
	}
	login := env.do(t, http.MethodPost, "/user/login", map[string]string{"username": "bob", "totp": code}, "")
	if login.Code != http.StatusOK {
		t.Errorf("TOTP login for new account status = %d", login.Code)
	}
}

func TestRegister_ByAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(t, "ops", testUserPassword).AccessToken

	w := env.do(t, http.MethodPost, "/user/register", registerBody("carol"), token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	expectError(t, env.do(t, http.MethodPost, "/user/register", registerBody("carol"), token),
		http.StatusConflict, auth.CodeUsernameTaken)

	weak := registerBody("dave")
	weak["password"] = "short"
	expectError(t, env.do(t, http.MethodPost, "/user/register", weak, token),
		http.StatusBadRequest, auth.CodeInvalidRequest)

	bad := registerBody("not a valid name")
	expectError(t, env.do(t, http.MethodPost, "/user/register", bad, token),
		http.StatusBadRequest, auth.CodeInvalidRequest)
}

func TestRegister_InvalidBearer(t *testing.T) {
	env := newTestEnv(t, nil)
	openSelfRegistration(t, env)

	expectError(t, env.do(t, http.MethodPost, "/user/register", registerBody("eve"), "not-a-jwt"),
		http.StatusUnauthorized, auth.CodeTokenInvalid)
}

// ─── Me ────────────────────────────────────────────────────────────

func TestMe(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(t, "alice", testUserPassword).AccessToken

	w := env.do(t, http.MethodGet, "/user/me", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "argon2") || strings.Contains(w.Body.String(), "JBSWY3DPEHPK3PXP") {
		t.Errorf("secret material in response: %s", w.Body.String())
	}

	var me map[string]any
	decode(t, w, &me)
	if me["username"] != "alice" || me["role"] != string(auth.RoleUser) {
		t.Errorf("me = %v", me)
	}
}

func TestMe_RequiresToken(t *testing.T) {
	env := newTestEnv(t, nil)

	expectError(t, env.do(t, http.MethodGet, "/user/me", nil, ""), http.StatusUnauthorized, ErrCodeUnauthorized)
	expectError(t, env.do(t, http.MethodGet, "/user/me", nil, "garbage"), http.StatusUnauthorized, auth.CodeTokenInvalid)
}

// ─── Permissions ───────────────────────────────────────────────────

func permBody(target, capability, op string) map[string]string {
	return map[string]string{"userName": target, "permissionName": capability, "operation": op}
}

func TestModifyPermission(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.adminToken(t)

	w := env.do(t, http.MethodPost, "/user/prem", permBody("alice", "reports", "grant"), token)
	if w.Code != http.StatusOK {
		t.Fatalf("grant status = %d; body: %s", w.Code, w.Body.String())
	}
	var resp permissionResponse
	decode(t, w, &resp)
	if resp.Username != "alice" || len(resp.Permissions) != 2 || resp.Permissions[0] != "reports" {
		t.Errorf("after grant = %+v", resp)
	}

	w = env.do(t, http.MethodPost, "/user/prem", permBody("alice", "reports", "revoke"), token)
	if w.Code != http.StatusOK {
		t.Fatalf("revoke status = %d; body: %s", w.Code, w.Body.String())
	}
	decode(t, w, &resp)
	if len(resp.Permissions) != 1 || resp.Permissions[0] != auth.CapabilityUser {
		t.Errorf("after revoke = %+v", resp)
	}
}

func TestModifyPermission_UsesAuthenticatedOperator(t *testing.T) {
	env := newTestEnv(t, nil)
	userToken := env.login(t, "alice", testUserPassword).AccessToken
	adminToken := env.adminToken(t)
	opsToken := env.login(t, "ops", testUserPassword).AccessToken

	tests := []struct {
		name   string
		token  string
		body   map[string]string
		status int
		code   string
	}{
		{"user cannot grant", userToken, permBody("ops", "user", "grant"), http.StatusForbidden, auth.CodeInsufficientPermissions},
		{"admin grants held capability", opsToken, permBody("alice", auth.CapabilityUser, "grant"), http.StatusOK, ""},
		{"admin cannot grant unheld capability", opsToken, permBody("alice", "reports", "grant"), http.StatusForbidden, auth.CodeInsufficientPermissions},
		{"admin cannot revoke", opsToken, permBody("alice", auth.CapabilityUser, "revoke"), http.StatusForbidden, auth.CodeInsufficientPermissions},
		{"self modification", adminToken, permBody(auth.SuperAdminUsername, "reports", "grant"), http.StatusForbidden, auth.CodeSelfModificationDenied},
		{"unknown operation", adminToken, permBody("alice", "reports", "toggle"), http.StatusBadRequest, auth.CodeInvalidOperation},
		{"empty capability", adminToken, permBody("alice", "", "grant"), http.StatusBadRequest, auth.CodeInvalidRequest},
		{"unknown target", adminToken, permBody("nobody", "reports", "grant"), http.StatusNotFound, auth.CodeNotFound},
		{"missing target", adminToken, permBody("", "reports", "grant"), http.StatusBadRequest, auth.CodeInvalidRequest},
		{"no token", "", permBody("alice", "reports", "grant"), http.StatusUnauthorized, ErrCodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/user/prem", tt.body, tt.token)
			if tt.code == "" {
				if w.Code != tt.status {
					t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.status, w.Body.String())
				}
				return
			}
			expectError(t, w, tt.status, tt.code)
		})
	}
}
