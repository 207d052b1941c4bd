package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/psyopd/survey/internal/config"
	"github.com/psyopd/survey/internal/domain/dashboard"
	"github.com/psyopd/survey/internal/domain/identity"
	"github.com/psyopd/survey/internal/domain/portal"
	"github.com/psyopd/survey/internal/domain/scoring"
	"github.com/psyopd/survey/internal/domain/survey"
	"github.com/psyopd/survey/internal/platform/auth"
	"github.com/psyopd/survey/internal/platform/reporting"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func testServer(t *testing.T) (http.Handler, *auth.Authenticator) {
	t.Helper()
	return testServerWithLogger(t, zerolog.Nop())
}

func testServerWithLogger(t *testing.T, logger zerolog.Logger) (http.Handler, *auth.Authenticator) {
	t.Helper()
	cfg := &config.Config{
		APIPrefix:             "/api/v1",
		ProjectName:           "Psychiatric Survey API",
		CORSOrigins:           []string{"*"},
		RateLimitRPS:          1000,
		RateLimitBurst:        1000,
		BodyLimit:             "4K",
		RequestTimeoutSeconds: 5,
	}
	authn := auth.NewAuthenticator(auth.JWTConfig{SigningKey: []byte("test-key"), TTL: time.Minute})
	reports := reporting.NewGenerator(nil, logger)
	criteria := scoring.DefaultCriteria()

	// Repositories are never reached by the routes exercised here.
	identitySvc := identity.NewService(nil, authn, "", logger)
	surveySvc := survey.NewService(nil, nil, identitySvc, criteria, reports, logger)

	e := newEcho(cfg, logger, authn, handlers{
		identity:  identity.NewHandler(identitySvc, surveySvc),
		survey:    survey.NewHandler(surveySvc, authn),
		portal:    portal.NewHandler(portal.NewService(nil, nil, reports, logger)),
		dashboard: dashboard.NewHandler(dashboard.NewService(nil, nil, identitySvc, surveySvc, criteria, logger)),
		dbHealth:  okPinger{},
	})
	return e, authn
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func issue(t *testing.T, a *auth.Authenticator, userID, userType string) string {
	t.Helper()
	tok, _, err := a.Issue(userID, userType)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestRoot(t *testing.T) {
	h, _ := testServer(t)
	rec := do(t, h, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"running"`) {
		t.Errorf("unexpected root response %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id")
	}
}

func TestHealth(t *testing.T) {
	h, _ := testServer(t)
	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/health/db", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("/health/db = %d %s", rec.Code, rec.Body.String())
	}
}

func TestBodyLimit(t *testing.T) {
	h, _ := testServer(t)
	body := `{"user_id":"` + strings.Repeat("x", 8<<10) + `","password":"p","user_type":"patient"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413 for an oversized body, got %d", rec.Code)
	}
}

func TestPublicRoutes(t *testing.T) {
	h, _ := testServer(t)
	rec := do(t, h, http.MethodGet, "/api/v1/survey/metadata", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "PSQI") {
		t.Errorf("metadata = %d %s", rec.Code, rec.Body.String())
	}
}

func TestSubmitIsAudited(t *testing.T) {
	var buf bytes.Buffer
	h, authn := testServerWithLogger(t, zerolog.New(&buf))
	patient := issue(t, authn, "MRN-1001", auth.UserTypePatient)

	// Rejected by validation before anything is stored.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/survey/submit",
		strings.NewReader(`{"patient_id":"MRN-1001","survey_type":""}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+patient)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	var audit string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "phi_access") {
			audit = line
		}
	}
	if audit == "" {
		t.Fatalf("expected a phi_access line, got %s", buf.String())
	}
	for _, want := range []string{`"user_id":"MRN-1001"`, `"patient_id":"MRN-1001"`, `"action":"create"`, `"status":400`} {
		if !strings.Contains(audit, want) {
			t.Errorf("audit line %s is missing %s", audit, want)
		}
	}
}

func TestProtectedRoutes(t *testing.T) {
	h, authn := testServer(t)
	patient := issue(t, authn, "MRN-1001", auth.UserTypePatient)
	clinician := issue(t, authn, "doc@example.com", auth.UserTypeClinician)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"dashboard without token", "/api/v1/dashboard/analytics", "", http.StatusUnauthorized},
		{"dashboard with garbage token", "/api/v1/dashboard/analytics", "garbage", http.StatusUnauthorized},
		{"dashboard as patient", "/api/v1/dashboard/analytics", patient, http.StatusForbidden},
		{"portal as clinician", "/api/v1/patient/report", clinician, http.StatusForbidden},
		{"report status without token", "/api/v1/survey/report-status", "", http.StatusUnauthorized},
		{"report status as patient", "/api/v1/survey/report-status", patient, http.StatusOK},
		{"other patient's surveys", "/api/v1/survey/patient/MRN-2002", patient, http.StatusForbidden},
		{"other patient's profile", "/api/v1/user/MRN-2002", patient, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodGet, tt.path, tt.token); rec.Code != tt.want {
				t.Errorf("%s = %d, want %d (%s)", tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestRootCmd(t *testing.T) {
	root := rootCmd()
	want := map[string][]string{
		"serve":   nil,
		"migrate": {"up", "status", "down"},
		"user":    {"create-clinician", "create-patient", "list-patients"},
	}
	for name, subs := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("missing command %q", name)
		}
		for _, sub := range subs {
			if c, _, err := root.Find([]string{name, sub}); err != nil || c.Name() != sub {
				t.Errorf("missing command %q %q", name, sub)
			}
		}
	}
}
