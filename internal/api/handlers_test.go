// Quill - Editorial Content Platform
// Copyright 2026 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quillhq/quill

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/quillhq/quill/internal/auth"
	"github.com/quillhq/quill/internal/csrf"
	"github.com/quillhq/quill/internal/monitor"
	"github.com/quillhq/quill/internal/pipeline"
	"github.com/quillhq/quill/internal/ratelimit"
	ws "github.com/quillhq/quill/internal/websocket"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	testPassword = "correct-horse-battery"
)

type testServer struct {
	srv     *httptest.Server
	mon     *monitor.Monitor
	guard   *csrf.Guard
	limiter *ratelimit.Limiter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	tokens, err := auth.NewJWTManager(strings.Repeat("j", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	mon := monitor.New(monitor.Config{})
	authn := auth.NewAuthenticator([]auth.Credential{
		{Username: "admin", PasswordHash: string(hash), Role: "admin"},
	}, tokens, mon)

	csrfCfg := csrf.DefaultConfig()
	csrfCfg.Secret = testSecret
	csrfCfg.ExemptPaths = []string{"/api/v1/auth/", "/api/v1/csrf-token"}
	guard, err := csrf.NewGuard(csrfCfg, nil)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}

	defense := pipeline.New(pipeline.DefaultConfig(), limiter, guard, mon)

	handler := NewHandler(HandlerDeps{
		Authenticator: authn,
		Tokens:        tokens,
		Guard:         guard,
		Monitor:       mon,
		Limiter:       limiter,
		Hub:           ws.NewHub(),
	})

	router := NewRouter(handler, authn, defense, nil)
	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, mon: mon, guard: guard, limiter: limiter}
}

// do issues a request with optional session and CSRF tokens and decodes
// the response body into out when out is non-nil.
func (ts *testServer) do(t *testing.T, method, path, session, csrfToken string, body string, out interface{}) *http.Response {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	if csrfToken != "" {
		req.Header.Set("X-CSRF-Token", csrfToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func (ts *testServer) login(t *testing.T) string {
	t.Helper()

	var envelope struct {
		Data struct {
			Token string `json:"token"`
			Role  string `json:"role"`
		} `json:"data"`
	}
	resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", "",
		`{"username":"admin","password":"`+testPassword+`"}`, &envelope)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	if envelope.Data.Token == "" {
		t.Fatal("login returned empty token")
	}
	return envelope.Data.Token
}

func (ts *testServer) csrfToken(t *testing.T) string {
	t.Helper()

	token, err := ts.guard.GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	var envelope struct {
		Status string `json:"status"`
		Data   struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	resp := ts.do(t, http.MethodGet, "/health", "", "", "", &envelope)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if envelope.Status != "ok" || envelope.Data.Status != "ok" {
		t.Errorf("envelope = %+v, want ok", envelope)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	var envelope struct {
		Code string `json:"code"`
	}
	resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", "",
		`{"username":"admin","password":"wrong"}`, &envelope)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if envelope.Code != "AUTH" {
		t.Errorf("code = %q, want AUTH", envelope.Code)
	}

	// The failed attempt is recorded for correlation.
	events := ts.mon.Events(10)
	found := false
	for _, e := range events {
		if e.Type == monitor.EventLoginFailure {
			found = true
		}
	}
	if !found {
		t.Error("expected a login_failure event to be recorded")
	}
}

func TestLoginValidatesRequestBody(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	var envelope struct {
		Code string `json:"code"`
	}
	resp := ts.do(t, http.MethodPost, "/api/v1/auth/login", "", "",
		`{"username":"admin"}`, &envelope)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.Code != "VALIDATION" {
		t.Errorf("code = %q, want VALIDATION", envelope.Code)
	}
}

func TestAdminEndpointsRequireSession(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/v1/alerts", "", "", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAlertsListAndResolve(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	session := ts.login(t)

	// Trip the brute force rule to produce one alert.
	for i := 0; i < 5; i++ {
		ts.mon.LogEvent(context.Background(), monitor.SecurityEvent{
			Type:     monitor.EventLoginFailure,
			SourceIP: "203.0.113.9",
		})
	}

	var listEnvelope struct {
		Data []struct {
			ID       string `json:"id"`
			Severity string `json:"severity"`
		} `json:"data"`
	}
	resp := ts.do(t, http.MethodGet, "/api/v1/alerts", session, "", "", &listEnvelope)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("alerts status = %d, want 200", resp.StatusCode)
	}
	if len(listEnvelope.Data) != 1 {
		t.Fatalf("alerts count = %d, want 1", len(listEnvelope.Data))
	}

	alertID := listEnvelope.Data[0].ID
	csrfToken := ts.csrfToken(t)

	var resolveEnvelope struct {
		Data struct {
			Resolved   bool   `json:"resolved"`
			ResolvedBy string `json:"resolved_by"`
		} `json:"data"`
	}
	resp = ts.do(t, http.MethodPost, "/api/v1/alerts/"+alertID+"/resolve", session, csrfToken, "", &resolveEnvelope)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d, want 200", resp.StatusCode)
	}
	if !resolveEnvelope.Data.Resolved || resolveEnvelope.Data.ResolvedBy != "admin" {
		t.Errorf("resolve data = %+v, want resolved by admin", resolveEnvelope.Data)
	}

	// Resolution is one-way, a second resolve fails.
	resp = ts.do(t, http.MethodPost, "/api/v1/alerts/"+alertID+"/resolve", session, ts.csrfToken(t), "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("second resolve status = %d, want 400", resp.StatusCode)
	}
}

func TestResolveAlertRejectsNonUUID(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	session := ts.login(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/alerts/not-a-uuid/resolve", session, ts.csrfToken(t), "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUnsafeAdminCallsRequireCSRFToken(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	session := ts.login(t)

	var envelope struct {
		Code string `json:"code"`
	}
	resp := ts.do(t, http.MethodDelete, "/api/v1/ratelimit/203.0.113.9", session, "", "", &envelope)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if envelope.Code != "CSRF" {
		t.Errorf("code = %q, want CSRF", envelope.Code)
	}
}

func TestRateLimitResetClearsWindows(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	session := ts.login(t)

	// Consume a few requests for the identifier.
	for i := 0; i < 3; i++ {
		if _, err := ts.limiter.Check(context.Background(), "203.0.113.50", ratelimit.TierGlobal); err != nil {
			t.Fatalf("Check: %v", err)
		}
	}

	resp := ts.do(t, http.MethodDelete, "/api/v1/ratelimit/203.0.113.50", session, ts.csrfToken(t), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d, want 200", resp.StatusCode)
	}

	res, err := ts.limiter.Check(context.Background(), "203.0.113.50", ratelimit.TierGlobal)
	if err != nil {
		t.Fatalf("Check after reset: %v", err)
	}
	if res.Remaining != res.Limit-1 {
		t.Errorf("Remaining = %d, want %d after reset", res.Remaining, res.Limit-1)
	}
}

func TestCSRFTokenEndpointIssuesValidToken(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	var envelope struct {
		Data struct {
			Token  string `json:"token"`
			Header string `json:"header"`
		} `json:"data"`
	}
	resp := ts.do(t, http.MethodGet, "/api/v1/csrf-token", "", "", "", &envelope)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if envelope.Data.Header != "X-CSRF-Token" {
		t.Errorf("header = %q, want X-CSRF-Token", envelope.Data.Header)
	}
	if err := ts.guard.ValidateToken(envelope.Data.Token); err != nil {
		t.Errorf("issued token failed validation: %v", err)
	}

	// The token is also set as a cookie for double-submit clients.
	foundCookie := false
	for _, c := range resp.Cookies() {
		if c.Name == "_csrf" && c.Value == envelope.Data.Token {
			foundCookie = true
		}
	}
	if !foundCookie {
		t.Error("expected _csrf cookie matching the issued token")
	}
}

func TestSecurityMetricsEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	session := ts.login(t)

	ts.mon.LogEvent(context.Background(), monitor.SecurityEvent{
		Type:     monitor.EventThreatMatch,
		SourceIP: "203.0.113.77",
	})

	var envelope struct {
		Data struct {
			TotalEvents int `json:"total_events"`
		} `json:"data"`
	}
	resp := ts.do(t, http.MethodGet, "/api/v1/metrics/security", session, "", "", &envelope)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if envelope.Data.TotalEvents < 1 {
		t.Errorf("total_events = %d, want at least 1", envelope.Data.TotalEvents)
	}
}

func TestEventsEndpointHonorsLimit(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	session := ts.login(t)

	for i := 0; i < 5; i++ {
		ts.mon.LogEvent(context.Background(), monitor.SecurityEvent{
			Type:     monitor.EventFileUpload,
			SourceIP: "203.0.113.88",
		})
	}

	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	resp := ts.do(t, http.MethodGet, "/api/v1/events?limit=2", session, "", "", &envelope)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(envelope.Data) != 2 {
		t.Errorf("events count = %d, want 2", len(envelope.Data))
	}
}
