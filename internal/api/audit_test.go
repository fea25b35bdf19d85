package api

import (
	"net/http"
	"testing"

	"github.com/ZZSZ-YCT/customSystem/internal/audit"
	"github.com/ZZSZ-YCT/customSystem/internal/auth"
)

func TestListAuditLogs(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/user/login", map[string]string{"username": "alice", "password": "wrong-password"}, "")
	env.login(t, "alice", testUserPassword)
	token := env.adminToken(t)

	w := env.do(t, http.MethodGet, "/audit?username=alice", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var result audit.ListResult
	decode(t, w, &result)
	if result.Total != 2 || len(result.Logs) != 2 {
		t.Fatalf("alice's logs = %+v, want 2", result)
	}
	if result.Logs[0].Action != string(auth.EventLoginSucceeded) || result.Logs[1].Outcome != auth.CodeInvalidCredentials {
		t.Errorf("logs = %+v, want newest first", result.Logs)
	}
	if result.Logs[0].RemoteAddr == "" {
		t.Error("expected remote address to be recorded")
	}

	w = env.do(t, http.MethodGet, "/audit?action=login.failed&limit=1", nil, token)
	decode(t, w, &result)
	if result.Total != 1 || result.Limit != 1 {
		t.Errorf("filtered result = %+v", result)
	}
}

func TestListAuditLogs_Rejected(t *testing.T) {
	env := newTestEnv(t, nil)
	adminToken := env.adminToken(t)
	opsToken := env.login(t, "ops", testUserPassword).AccessToken

	expectError(t, env.do(t, http.MethodGet, "/audit", nil, opsToken), http.StatusForbidden, auth.CodeInsufficientPermissions)
	expectError(t, env.do(t, http.MethodGet, "/audit", nil, ""), http.StatusUnauthorized, ErrCodeUnauthorized)
	expectError(t, env.do(t, http.MethodGet, "/audit?since=yesterday", nil, adminToken), http.StatusBadRequest, auth.CodeInvalidRequest)
	expectError(t, env.do(t, http.MethodGet, "/audit?limit=ten", nil, adminToken), http.StatusBadRequest, auth.CodeInvalidRequest)
}
