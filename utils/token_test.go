package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testKey = "test-secret"

func TestGenerateAndCheck(t *testing.T) {
	token, err := GenerateToken("42", false, time.Hour, testKey)
	require.NoError(t, err)

	meta, err := CheckAndExtractTokenMetadata(token, testKey)
	require.NoError(t, err)
	require.Equal(t, "42", meta.ID)
	require.False(t, meta.OTP)
	require.Greater(t, meta.Exp, time.Now().Unix())
}

func TestCheck_Rejects(t *testing.T) {
	valid, err := GenerateToken("42", false, time.Hour, testKey)
	require.NoError(t, err)
	expired, err := GenerateToken("42", false, -time.Minute, testKey)
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "42"}).SignedString([]byte(testKey))
	require.NoError(t, err)
	noID, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}).SignedString([]byte(testKey))
	require.NoError(t, err)

	cases := map[string]struct {
		token, key string
		want       error
	}{
		"missing key":   {valid, "", ErrMissingKey},
		"missing token": {"", testKey, ErrMissingToken},
		"wrong key":     {valid, "other", jwt.ErrTokenSignatureInvalid},
		"expired":       {expired, testKey, jwt.ErrTokenExpired},
		"no exp":        {noExp, testKey, jwt.ErrTokenRequiredClaimMissing},
		"no id":         {noID, testKey, ErrNoIdentity},
		"garbage":       {"not.a.jwt", testKey, jwt.ErrTokenMalformed},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			meta, err := CheckAndExtractTokenMetadata(c.token, c.key)
			require.ErrorIs(t, err, c.want)
			require.Nil(t, meta)
		})
	}
}

func TestMetadataFromClaims(t *testing.T) {
	meta, err := MetadataFromClaims(jwt.MapClaims{"sub": "7", "otp": true})
	require.NoError(t, err)
	require.Equal(t, "7", meta.ID)
	require.True(t, meta.OTP)

	meta, err = MetadataFromClaims(jwt.MapClaims{"id": float64(12)})
	require.NoError(t, err)
	require.Equal(t, "12", meta.ID)

	_, err = MetadataFromClaims(jwt.MapClaims{"id": 1.5})
	require.ErrorIs(t, err, ErrNoIdentity)
}
