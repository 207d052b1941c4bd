package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(JWTConfig{SigningKey: testSigningKey, TTL: 30 * time.Minute})
}

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestIssueAndVerify(t *testing.T) {
	a := newTestAuthenticator()
	tok, expires, err := a.Issue("MRN-1001", UserTypePatient)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expires) <= 29*time.Minute {
		t.Errorf("unexpected expiry %v", expires)
	}

	id, err := a.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "MRN-1001" || !id.IsPatient() {
		t.Errorf("unexpected identity %+v", id)
	}
}

func TestVerify_Rejects(t *testing.T) {
	a := newTestAuthenticator()
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong key", createTestToken(t, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u", ExpiresAt: exp},
			UserType:         UserTypePatient,
		}, []byte("other-key"))},
		{"expired", createTestToken(t, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
			UserType:         UserTypePatient,
		}, testSigningKey)},
		{"no expiry", createTestToken(t, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u"},
			UserType:         UserTypePatient,
		}, testSigningKey)},
		{"unknown user type", createTestToken(t, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u", ExpiresAt: exp},
			UserType:         "admin",
		}, testSigningKey)},
		{"no subject", createTestToken(t, Claims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
			UserType:         UserTypeClinician,
		}, testSigningKey)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Verify(tt.token); err == nil {
				t.Error("expected verification failure")
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Token abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := JWTMiddleware(newTestAuthenticator())(okHandler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	a := newTestAuthenticator()
	tok, _, _ := a.Issue("doctor@example.com", UserTypeClinician)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen Identity
	h := JWTMiddleware(a)(func(c echo.Context) error {
		seen, _ = IdentityFromContext(c.Request().Context())
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen.UserID != "doctor@example.com" || !seen.IsClinician() {
		t.Errorf("unexpected identity %+v", seen)
	}
}

func TestJWTMiddleware_InvalidToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid.token.value")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := JWTMiddleware(newTestAuthenticator())(okHandler)(c)
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestRequireUserType(t *testing.T) {
	tests := []struct {
		name     string
		caller   string
		required string
		wantCode int
	}{
		{"clinician allowed", UserTypeClinician, UserTypeClinician, http.StatusOK},
		{"patient blocked from clinician route", UserTypePatient, UserTypeClinician, http.StatusForbidden},
		{"patient allowed", UserTypePatient, UserTypePatient, http.StatusOK},
		{"clinician blocked from patient route", UserTypeClinician, UserTypePatient, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: "u1", UserType: tt.caller}))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := RequireUserType(tt.required)(okHandler)(c)
			if tt.wantCode == http.StatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != tt.wantCode {
				t.Fatalf("expected %d, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestRequireUserType_Message(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: "p1", UserType: UserTypePatient}))
	c := e.NewContext(req, httptest.NewRecorder())

	err := RequireUserType(UserTypeClinician)(okHandler)(c)
	httpErr := err.(*echo.HTTPError)
	if httpErr.Message != "Clinician access required" {
		t.Errorf("unexpected message %v", httpErr.Message)
	}
}

func TestCheckPatientAccess(t *testing.T) {
	clinician := WithIdentity(context.Background(), Identity{UserID: "doc@example.com", UserType: UserTypeClinician})
	patient := WithIdentity(context.Background(), Identity{UserID: "P001", UserType: UserTypePatient})

	if err := CheckPatientAccess(clinician, "P999"); err != nil {
		t.Errorf("clinician should access any patient: %v", err)
	}
	if err := CheckPatientAccess(patient, "P001"); err != nil {
		t.Errorf("patient should access self: %v", err)
	}
	if err := CheckPatientAccess(patient, "P002"); err != ErrAccessDenied {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}
	if err := CheckPatientAccess(context.Background(), "P001"); err != ErrAccessDenied {
		t.Errorf("expected ErrAccessDenied for anonymous, got %v", err)
	}
}
