package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentnest/nest-backend/pkg/config"
	"github.com/studentnest/nest-backend/pkg/enums"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "nest", ExpirationMinutes: 30}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	userID := uuid.New()

	raw, err := MintAccessToken(testCfg, now, AccessTokenPayload{UserID: userID, Role: enums.UserRoleHost, JTI: " session-7 "})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testCfg, raw)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, enums.UserRoleHost, claims.Role)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "session-7", claims.ID)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestParseRejects(t *testing.T) {
	valid, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleStudent})
	require.NoError(t, err)
	expired, err := MintAccessToken(testCfg, time.Now().Add(-time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	otherSecret := testCfg
	otherSecret.Secret = "rotated"
	otherIssuer := testCfg
	otherIssuer.Issuer = "someone-else"

	cases := []struct {
		name string
		cfg  config.JWTConfig
		raw  string
		is   error
	}{
		{"tampered signature", testCfg, valid + "x", nil},
		{"wrong secret", otherSecret, valid, jwt.ErrTokenSignatureInvalid},
		{"wrong issuer", otherIssuer, valid, jwt.ErrTokenInvalidIssuer},
		{"expired", testCfg, expired, jwt.ErrTokenExpired},
		{"garbage", testCfg, "not.a.jwt", jwt.ErrTokenMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAccessToken(tc.cfg, tc.raw)
			require.Error(t, err)
			if tc.is != nil {
				assert.ErrorIs(t, err, tc.is)
			}
		})
	}
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	claims := AccessTokenClaims{
		UserID: uuid.New(),
		Role:   enums.UserRoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testCfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	claims.Subject = claims.UserID.String()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(testCfg, raw)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestParseRunsClaimValidation(t *testing.T) {
	claims := AccessTokenClaims{
		UserID: uuid.New(),
		Role:   "landlord",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    testCfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	claims.Subject = claims.UserID.String()
	raw, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(testCfg, raw)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidClaims)
}

func TestMintValidatesInput(t *testing.T) {
	_, err := MintAccessToken(testCfg, time.Now(), AccessTokenPayload{UserID: uuid.New()})
	assert.Error(t, err, "missing role")
	_, err = MintAccessToken(testCfg, time.Now(), AccessTokenPayload{Role: enums.UserRoleStudent})
	assert.Error(t, err, "missing user")

	bad := testCfg
	bad.ExpirationMinutes = 0
	_, err = MintAccessToken(bad, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleStudent})
	assert.Error(t, err)
}
