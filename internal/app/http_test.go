package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*HTTPServer, *Service) {
	t.Helper()
	svc := newTestService(t, &fakeGateway{})
	return NewHTTPServer(svc, testConfig(), zap.NewNop()), svc
}

func doJSON(t *testing.T, server *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBuffer(nil)
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func parseBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func login(t *testing.T, server *HTTPServer) string {
	t.Helper()
	rr := doJSON(t, server, http.MethodPost, "/api/login", "", `{"password":"test-secret"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("expected token in login response")
	}
	return token
}

func TestLoginSetsSessionCookie(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doJSON(t, server, http.MethodPost, "/api/login", "", `{"password":"test-secret"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["success"] != true {
		t.Fatalf("expected success true, got %v", payload)
	}

	cookies := rr.Result().Cookies()
	var found *http.Cookie
	for _, c := range cookies {
		if c.Name == sessionCookieName {
			found = c
		}
	}
	if found == nil {
		t.Fatal("expected session cookie to be set")
	}
	if !found.HttpOnly {
		t.Fatal("expected httpOnly cookie")
	}
	if found.SameSite != http.SameSiteStrictMode {
		t.Fatalf("expected SameSite=Strict, got %v", found.SameSite)
	}
	if found.Value != payload["token"] {
		t.Fatal("expected cookie to carry the session token")
	}
}

func TestLoginWrongPasswordUnauthorized(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doJSON(t, server, http.MethodPost, "/api/login", "", `{"password":"nope"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "INVALID_CREDENTIALS" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestLoginRateLimitBlocksSixthAttempt(t *testing.T) {
	server, svc := newTestServer(t)

	for i := 0; i < 5; i++ {
		rr := doJSON(t, server, http.MethodPost, "/api/login", "", `{"password":"nope"}`)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rr.Code)
		}
	}

	rr := doJSON(t, server, http.MethodPost, "/api/login", "", `{"password":"nope"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on 6th attempt, got %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "RATE_LIMITED" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}

	// The throttled attempt never reached password comparison: five failures
	// recorded, then one rate_limited.
	failures, limited := 0, 0
	for _, event := range svc.SecurityEvents(0) {
		switch event.Kind {
		case "login_failure":
			failures++
		case "rate_limited":
			limited++
		}
	}
	if failures != 5 || limited != 1 {
		t.Fatalf("expected 5 failures and 1 rate_limited, got %d and %d", failures, limited)
	}
}

func TestUnauthenticatedAPIRequestsRejected(t *testing.T) {
	server, _ := newTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/sections"},
		{http.MethodGet, "/api/discussions"},
		{http.MethodPost, "/api/discussions"},
		{http.MethodGet, "/api/stats"},
		{http.MethodGet, "/api/notifications/wife"},
		{http.MethodPost, "/api/logout"},
	} {
		rr := doJSON(t, server, route.method, route.path, "", "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", route.method, route.path, rr.Code)
		}
		if parseBody(t, rr)["code"] != "UNAUTHORIZED" {
			t.Fatalf("%s %s: unexpected body %s", route.method, route.path, rr.Body.String())
		}
	}
}

func TestVerifyReportsSessionState(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doJSON(t, server, http.MethodGet, "/api/verify", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if parseBody(t, rr)["valid"] != false {
		t.Fatal("expected valid false without a session")
	}

	token := login(t, server)
	rr = doJSON(t, server, http.MethodGet, "/api/verify", token, "")
	if parseBody(t, rr)["valid"] != true {
		t.Fatal("expected valid true with a session")
	}
}

func TestCookieCarriesSession(t *testing.T) {
	server, _ := newTestServer(t)
	token := login(t, server)

	req := httptest.NewRequest(http.MethodGet, "/api/sections", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected cookie auth to work, got %d", rr.Code)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	server, _ := newTestServer(t)
	token := login(t, server)

	rr := doJSON(t, server, http.MethodPost, "/api/logout", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("logout failed: %d", rr.Code)
	}

	var cleared bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("expected logout to clear the session cookie")
	}

	rr = doJSON(t, server, http.MethodGet, "/api/sections", token, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", rr.Code)
	}
}

func TestSectionEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	token := login(t, server)

	rr := doJSON(t, server, http.MethodGet, "/api/sections", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list sections: %d", rr.Code)
	}
	var sections []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &sections); err != nil {
		t.Fatalf("parse sections: %v", err)
	}
	if len(sections) == 0 {
		t.Fatal("expected seeded sections")
	}

	rr = doJSON(t, server, http.MethodGet, "/api/sections/1", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get section: %d", rr.Code)
	}
	if parseBody(t, rr)["title"] != "Overview" {
		t.Fatalf("unexpected section: %s", rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/api/sections/999", token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing section, got %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodPut, "/api/sections/1", token, `{"title":"Overview v2","content":"rewritten"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update section: %d %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, server, http.MethodGet, "/api/sections/1", token, "")
	payload := parseBody(t, rr)
	if payload["title"] != "Overview v2" || payload["updated_at"] == nil {
		t.Fatalf("expected edit applied with updated_at, got %s", rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPut, "/api/sections/1", token, `{"title":"  ","content":"x"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for blank title, got %d", rr.Code)
	}
}

func TestDiscussionLifecycleOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	token := login(t, server)

	rr := doJSON(t, server, http.MethodPost, "/api/discussions", token, `{"section_id":1,"type":"comment","text":"worth it?","author":"francisco"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("create discussion: %d %s", rr.Code, rr.Body.String())
	}
	created := parseBody(t, rr)
	if created["success"] != true || created["id"] == nil {
		t.Fatalf("unexpected create payload: %v", created)
	}
	discussionID := int(created["id"].(float64))

	rr = doJSON(t, server, http.MethodGet, "/api/discussions", token, "")
	var discussions []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &discussions); err != nil {
		t.Fatalf("parse discussions: %v", err)
	}
	if len(discussions) != 1 || discussions[0]["section_title"] != "Overview" {
		t.Fatalf("unexpected discussions: %s", rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, fmt.Sprintf("/api/discussions/%d/replies", discussionID), token, `{"text":"definitely","author":"wife"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("reply: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/api/notifications/wife", token, "")
	var notifications []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &notifications); err != nil {
		t.Fatalf("parse notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected 1 notification for wife, got %d", len(notifications))
	}
	notificationID := int(notifications[0]["id"].(float64))

	rr = doJSON(t, server, http.MethodPatch, fmt.Sprintf("/api/discussions/%d/resolve", discussionID), token, `{"resolved":true,"resolved_by":"francisco"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("resolve: %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/api/stats", token, "")
	stats := parseBody(t, rr)
	if stats["resolved"].(float64) != 1 || stats["pending"].(float64) != 0 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	rr = doJSON(t, server, http.MethodPatch, fmt.Sprintf("/api/notifications/%d/read", notificationID), token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("mark read: %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodPatch, "/api/notifications/francisco/read-all", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("read-all: %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodDelete, fmt.Sprintf("/api/discussions/%d", discussionID), token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodGet, "/api/discussions", token, "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected empty discussion list, got %s", rr.Body.String())
	}
}

func TestReplyToMissingDiscussionIs404(t *testing.T) {
	server, _ := newTestServer(t)
	token := login(t, server)

	rr := doJSON(t, server, http.MethodPost, "/api/discussions/42/replies", token, `{"text":"hello","author":"wife"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "NOT_FOUND" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}

	// The failed reply must not have produced notifications.
	rr = doJSON(t, server, http.MethodGet, "/api/notifications/francisco", token, "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected no notifications, got %s", rr.Body.String())
	}
}

func TestCreateDiscussionValidationOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	token := login(t, server)

	rr := doJSON(t, server, http.MethodPost, "/api/discussions", token, `{"type":"comment","text":"  ","author":"francisco"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	server, _ := newTestServer(t)
	token := login(t, server)

	big := strings.Repeat("a", 11*1024)
	rr := doJSON(t, server, http.MethodPost, "/api/discussions", token, `{"type":"comment","text":"`+big+`","author":"francisco"}`)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	if parseBody(t, rr)["code"] != "BODY_TOO_LARGE" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestUsersEndpointListsRegistry(t *testing.T) {
	server, _ := newTestServer(t)
	token := login(t, server)

	rr := doJSON(t, server, http.MethodGet, "/api/users", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("users: %d", rr.Code)
	}
	payload := parseBody(t, rr)
	users, _ := payload["users"].([]any)
	if len(users) != 2 || users[0] != "francisco" || users[1] != "wife" {
		t.Fatalf("unexpected users payload: %v", payload)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	server, _ := newTestServer(t)
	token := login(t, server)

	rr := doJSON(t, server, http.MethodGet, "/api/nope", token, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doJSON(t, server, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health: %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("ready: %d body=%s", rr.Code, rr.Body.String())
	}
}
