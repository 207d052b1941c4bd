package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserTypeKey contextKey = "user_type"
)

const (
	UserTypePatient   = "patient"
	UserTypeClinician = "clinician"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload of access tokens issued by this service. External
// identity provider tokens must carry the same user_type claim.
type Claims struct {
	jwt.RegisteredClaims
	UserType string `json:"user_type"`
	Email    string `json:"email,omitempty"`
}

// Identity is the authenticated caller.
type Identity struct {
	UserID   string
	UserType string
}

func (i Identity) IsClinician() bool { return i.UserType == UserTypeClinician }
func (i Identity) IsPatient() bool   { return i.UserType == UserTypePatient }

type JWTConfig struct {
	// SigningKey signs and verifies HS256 tokens issued by /auth/login.
	SigningKey []byte
	TTL        time.Duration
	// Optional external identity provider.
	Issuer   string
	Audience string
	JWKSURL  string
}

// Authenticator issues and verifies access tokens.
type Authenticator struct {
	cfg  JWTConfig
	jwks *JWKSCache
	now  func() time.Time
}

func NewAuthenticator(cfg JWTConfig) *Authenticator {
	a := &Authenticator{cfg: cfg, now: time.Now}
	if cfg.JWKSURL != "" {
		a.jwks = NewJWKSCache(cfg.JWKSURL, defaultJWKSCacheTTL)
	}
	return a
}

// Issue signs an HS256 access token for the user.
func (a *Authenticator) Issue(userID, userType string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("user_id is required")
	}
	now := a.now()
	expires := now.Add(a.cfg.TTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		UserType: userType,
	}
	if strings.Contains(userID, "@") {
		claims.Email = userID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses a bearer token. HS256 tokens are checked against the signing
// key and RS256 tokens against the configured JWKS.
func (a *Authenticator) Verify(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		switch t.Method.Alg() {
		case "HS256":
			return a.cfg.SigningKey, nil
		case "RS256":
			if a.jwks == nil {
				return nil, fmt.Errorf("external tokens are not accepted")
			}
			kid, ok := t.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, fmt.Errorf("token has no kid header")
			}
			return a.jwks.GetKey(kid)
		}
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	}, opts...)
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	if token.Method.Alg() == "RS256" {
		if a.cfg.Issuer != "" && claims.Issuer != a.cfg.Issuer {
			return Identity{}, ErrInvalidToken
		}
		if a.cfg.Audience != "" && !containsString(claims.Audience, a.cfg.Audience) {
			return Identity{}, ErrInvalidToken
		}
	}

	if claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	if claims.UserType != UserTypePatient && claims.UserType != UserTypeClinician {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.Subject, UserType: claims.UserType}, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

// JWTMiddleware rejects requests without a valid bearer token and stores the
// caller identity on the request context.
func JWTMiddleware(a *Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			tokenStr, ok := BearerToken(authHeader)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			id, err := a.Verify(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
			c.Set("user_id", id.UserID)
			return next(c)
		}
	}
}

// WithIdentity stores the caller on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.UserID)
	return context.WithValue(ctx, UserTypeKey, id.UserType)
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func UserTypeFromContext(ctx context.Context) string {
	ut, _ := ctx.Value(UserTypeKey).(string)
	return ut
}

// IdentityFromContext returns the caller and whether one is present.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id := Identity{UserID: UserIDFromContext(ctx), UserType: UserTypeFromContext(ctx)}
	return id, id.UserID != ""
}
