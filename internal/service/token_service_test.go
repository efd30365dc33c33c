package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academy-api/internal/models"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := NewTokenService("secret")

	token, err := svc.Issue(models.JWTClaims{UserID: "user-1", AcademyID: "academy-1", Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "academy-1", claims.AcademyID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestTokenServiceRejectsInvalidTokens(t *testing.T) {
	svc := NewTokenService("secret")
	other := NewTokenService("other-secret")

	wrongKey, err := other.Issue(models.JWTClaims{UserID: "user-1", AcademyID: "academy-1", Role: models.RoleOwner}, time.Hour)
	require.NoError(t, err)
	expired, err := svc.Issue(models.JWTClaims{UserID: "user-1", AcademyID: "academy-1", Role: models.RoleOwner}, -time.Hour)
	require.NoError(t, err)
	unscoped, err := svc.Issue(models.JWTClaims{UserID: "user-1", Role: models.RoleOwner}, time.Hour)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, models.JWTClaims{UserID: "user-1", AcademyID: "academy-1", Role: models.RoleOwner}).SignedString([]byte("secret"))
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, models.JWTClaims{
		UserID:           "user-1",
		AcademyID:        "academy-1",
		Role:             models.RoleOwner,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong key": wrongKey,
		"expired":   expired,
		"unscoped":  unscoped,
		"no expiry": noExpiry,
		"unsigned":  unsigned,
		"garbage":   "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
		})
	}
}

func TestTokenServiceRejectsUnknownRole(t *testing.T) {
	svc := NewTokenService("secret")
	token, err := svc.Issue(models.JWTClaims{UserID: "user-1", AcademyID: "academy-1", Role: "STUDENT"}, time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}
