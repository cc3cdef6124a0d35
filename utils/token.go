package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingKey   = errors.New("jwt signing key is not configured")
	ErrMissingToken = errors.New("missing token")
	ErrNoIdentity   = errors.New("token carries no user id")
)

// TokenMetadata struct to describe metadata in JWT.
type TokenMetadata struct {
	ID  string
	OTP bool
	Exp int64
}

// GenerateToken signs an access token the way the auth service issues them.
func GenerateToken(id string, otp bool, ttl time.Duration, key string) (string, error) {
	if key == "" {
		return "", ErrMissingKey
	}
	claims := jwt.MapClaims{
		"id":  id,
		"otp": otp,
		"exp": time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(key))
}

// CheckAndExtractTokenMetadata verifies signature and expiry of an HMAC token
// and returns its identity claims.
func CheckAndExtractTokenMetadata(token string, key string) (*TokenMetadata, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	t, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(key), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return MetadataFromClaims(claims)
}

// MetadataFromClaims reads the user id ("id", falling back to "sub"), the
// pending second factor flag and the expiry from verified claims.
func MetadataFromClaims(claims jwt.MapClaims) (*TokenMetadata, error) {
	id := claimString(claims["id"])
	if id == "" {
		id = claimString(claims["sub"])
	}
	if id == "" {
		return nil, ErrNoIdentity
	}

	meta := &TokenMetadata{ID: id}
	meta.OTP, _ = claims["otp"].(bool)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		meta.Exp = exp.Unix()
	}
	return meta, nil
}

func claimString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		if id > 0 && id == float64(uint64(id)) {
			return strconv.FormatUint(uint64(id), 10)
		}
	}
	return ""
}
