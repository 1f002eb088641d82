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

var testSigningKey = []byte("portal-test-signing-key")

func signToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func staffClaims(sub string, roles ...string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "https://idp.hospital.test",
			Audience:  jwt.ClaimStrings{"portal"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Name:  "Test " + sub,
		Roles: roles,
	}
}

// serve runs mw for a request to path and reports the identity the handler
// saw, or the error mw returned.
func serve(mw echo.MiddlewareFunc, path, authorization string) (string, []string, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath(path)

	var uid string
	var roles []string
	err := mw(func(c echo.Context) error {
		uid = UserIDFromContext(c.Request().Context())
		roles = RolesFromContext(c.Request().Context())
		return nil
	})(c)
	return uid, roles, err
}

func expectUnauthorized(t *testing.T, err error) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_RejectsBadHeaders(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	for _, header := range []string{"", "Token abc", "Bearer", "Bearer ", "Basic dXNlcjpwYXNz", "Bearer not.a.jwt"} {
		t.Run(header, func(t *testing.T) {
			_, _, err := serve(mw, "/api/v1/calendar", header)
			expectUnauthorized(t, err)
		})
	}
}

func TestJWTMiddleware_StaffToken(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})
	token := signToken(t, staffClaims("doctor-12", "doctor"), testSigningKey)

	uid, roles, err := serve(mw, "/api/v1/calendar", "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uid != "doctor-12" || len(roles) != 1 || roles[0] != "doctor" {
		t.Errorf("got identity %q %v", uid, roles)
	}

	// The scheme is case-insensitive.
	if _, _, err := serve(mw, "/api/v1/calendar", "bearer "+token); err != nil {
		t.Errorf("lowercase scheme rejected: %v", err)
	}
}

func TestJWTMiddleware_RejectsInvalidTokens(t *testing.T) {
	expired := staffClaims("nurse-4", "nurse")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := []struct {
		name  string
		cfg   JWTConfig
		token string
	}{
		{"expired", JWTConfig{SigningKey: testSigningKey}, signToken(t, expired, testSigningKey)},
		{"wrong key", JWTConfig{SigningKey: testSigningKey}, signToken(t, staffClaims("nurse-4", "nurse"), []byte("other"))},
		{"wrong issuer", JWTConfig{SigningKey: testSigningKey, Issuer: "https://elsewhere.test"}, signToken(t, staffClaims("nurse-4", "nurse"), testSigningKey)},
		{"wrong audience", JWTConfig{SigningKey: testSigningKey, Audience: "billing"}, signToken(t, staffClaims("nurse-4", "nurse"), testSigningKey)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := serve(JWTMiddleware(tt.cfg), "/api/v1/requests", "Bearer "+tt.token)
			expectUnauthorized(t, err)
		})
	}
}

func TestJWTMiddleware_IssuerAndAudienceMatch(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Issuer: "https://idp.hospital.test", Audience: "portal"})
	token := signToken(t, staffClaims("nurse-4", "nurse"), testSigningKey)
	if _, _, err := serve(mw, "/api/v1/requests", "Bearer "+token); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestJWTMiddleware_SkipsPublicPaths(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper})
	for _, path := range []string{"/health", "/health/db", "/metrics"} {
		if _, _, err := serve(mw, path, ""); err != nil {
			t.Errorf("%s: expected no auth, got %v", path, err)
		}
	}
	_, _, err := serve(mw, "/api/v1/requests", "")
	expectUnauthorized(t, err)
}

func TestDevAuthMiddleware(t *testing.T) {
	uid, roles, err := serve(DevAuthMiddleware(), "/api/v1/calendar", "")
	if err != nil || uid != "dev-user" || len(roles) != 1 || roles[0] != "admin" {
		t.Errorf("default dev identity: %q %v %v", uid, roles, err)
	}

	_, roles, _ = serve(DevAuthMiddleware("nurse"), "/api/v1/calendar", "")
	if len(roles) != 1 || roles[0] != "nurse" {
		t.Errorf("custom dev roles: %v", roles)
	}

	// A request that brings its own token is left alone.
	uid, _, _ = serve(DevAuthMiddleware(), "/api/v1/calendar", "Bearer whatever")
	if uid != "" {
		t.Errorf("expected no dev identity with an Authorization header, got %q", uid)
	}
}

func TestWithIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), "cli", []string{"doctor"})
	if UserIDFromContext(ctx) != "cli" {
		t.Errorf("user id = %q", UserIDFromContext(ctx))
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != "doctor" {
		t.Errorf("roles = %v", roles)
	}
	if UserIDFromContext(context.Background()) != "" || RolesFromContext(context.Background()) != nil {
		t.Error("empty context must carry no identity")
	}
}
