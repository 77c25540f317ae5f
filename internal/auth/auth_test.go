package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "unit-test-secret"
	testIssuer = "workouts.identity"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestParseRoundTrip(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":    "user-1",
		"iss":    testIssuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []string{ScopeWorkoutsRead, ScopeWorkoutsWrite},
	})

	claims, err := Parse(token, Config{Secret: testSecret, Issuer: testIssuer})
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.True(t, claims.HasScope(ScopeWorkoutsRead))
	require.True(t, claims.HasScope(ScopeWorkoutsWrite))
	require.False(t, claims.HasScope(ScopeTTSGenerate))
}

func TestParseScopesAsSpaceSeparatedString(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":    "user-1",
		"iss":    testIssuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": ScopeWorkoutsRead + " " + ScopeTTSGenerate,
	})

	claims, err := Parse(token, Config{Secret: testSecret, Issuer: testIssuer})
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopeTTSGenerate))
}

func TestParseRejectsBadTokens(t *testing.T) {
	cfg := Config{Secret: testSecret, Issuer: testIssuer}

	_, err := Parse("", cfg)
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = Parse("not-a-jwt", cfg)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Wrong issuer.
	_, err = Parse(signToken(t, jwt.MapClaims{
		"sub": "user-1", "iss": "someone-else", "exp": time.Now().Add(time.Hour).Unix(),
	}), cfg)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Expired.
	_, err = Parse(signToken(t, jwt.MapClaims{
		"sub": "user-1", "iss": testIssuer, "exp": time.Now().Add(-time.Minute).Unix(),
	}), cfg)
	require.ErrorIs(t, err, ErrInvalidToken)

	// No subject.
	_, err = Parse(signToken(t, jwt.MapClaims{
		"iss": testIssuer, "exp": time.Now().Add(time.Hour).Unix(),
	}), cfg)
	require.ErrorIs(t, err, ErrInvalidToken)

	// No expiry.
	_, err = Parse(signToken(t, jwt.MapClaims{
		"sub": "user-1", "iss": testIssuer,
	}), cfg)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddlewareAttachesClaims(t *testing.T) {
	mw := NewMiddleware(Config{Secret: testSecret, Issuer: testIssuer}, nil, nil)

	var got *Claims
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	token := signToken(t, jwt.MapClaims{
		"sub": "user-1", "iss": testIssuer, "exp": time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/workouts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	require.Equal(t, "user-1", got.Subject)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	mw := NewMiddleware(Config{Secret: testSecret, Issuer: testIssuer}, nil, nil)
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/workouts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAllowsAnonymousReads(t *testing.T) {
	mw := NewMiddleware(Config{Secret: testSecret, Issuer: testIssuer}, nil, func(r *http.Request) bool {
		return r.Method == http.MethodGet
	})

	var sawClaims bool
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawClaims = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/workouts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, sawClaims)

	// Writes still need a token.
	req = httptest.NewRequest(http.MethodPost, "/workouts", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareSkipper(t *testing.T) {
	mw := NewMiddleware(Config{Secret: testSecret, Issuer: testIssuer}, func(r *http.Request) bool {
		return r.URL.Path == "/healthz"
	}, nil)
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
