package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentnest/nest-backend/pkg/auth"
	"github.com/studentnest/nest-backend/pkg/config"
	"github.com/studentnest/nest-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "nest", ExpirationMinutes: 60}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestAuthRejectsMissingOrMalformedHeader(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())
	for _, header := range []string{"", "Bearer", "Bearer   ", "Basic dXNlcjpwYXNz", "token-without-scheme", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/history", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	token, err := auth.MintAccessToken(testJWT, time.Now().Add(-2*time.Hour), auth.AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleStudent})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Auth(testJWT, nil)(okHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestAuthSeedsPrincipal(t *testing.T) {
	userID := uuid.New()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: enums.UserRoleHost})
	require.NoError(t, err)

	var got Principal
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, role, err := CurrentUser(r.Context())
		require.NoError(t, err)
		got = Principal{UserID: id, Role: role}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Principal{UserID: userID, Role: enums.UserRoleHost}, got)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.UserRoleHost, enums.UserRoleAdmin)(okHandler())

	cases := map[enums.UserRole]int{
		enums.UserRoleHost:    http.StatusOK,
		enums.UserRoleAdmin:   http.StatusOK,
		enums.UserRoleStudent: http.StatusForbidden,
	}
	for role, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: uuid.New(), Role: role}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "role %s", role)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no principal")
}

func TestCurrentUserWithoutPrincipal(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, _, err := CurrentUser(req.Context())
	assert.Error(t, err)

	ctx := WithPrincipal(req.Context(), Principal{UserID: uuid.Nil, Role: enums.UserRoleStudent})
	_, _, err = CurrentUser(ctx)
	assert.Error(t, err)
}
