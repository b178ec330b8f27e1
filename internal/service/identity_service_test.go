package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
)

func TestIdentityIssueAndValidate(t *testing.T) {
	svc := NewIdentityService(IdentityConfig{Secret: "secret", Issuer: "campus-idp"}, nil)

	token, err := svc.IssueToken(models.Identity{UserID: "learner-1", Role: models.RoleLearner}, time.Hour)
	require.NoError(t, err)

	identity, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "learner-1", identity.UserID)
	assert.Equal(t, models.RoleLearner, identity.Role)
}

func TestIdentityRejectsForeignTokens(t *testing.T) {
	svc := NewIdentityService(IdentityConfig{Secret: "secret", Issuer: "campus-idp"}, nil)

	other := NewIdentityService(IdentityConfig{Secret: "other", Issuer: "campus-idp"}, nil)
	token, err := other.IssueToken(models.Identity{UserID: "learner-1", Role: models.RoleLearner}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	wrongIssuer := NewIdentityService(IdentityConfig{Secret: "secret", Issuer: "elsewhere"}, nil)
	token, err = wrongIssuer.IssueToken(models.Identity{UserID: "learner-1", Role: models.RoleLearner}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	expired, err := svc.IssueToken(models.Identity{UserID: "learner-1", Role: models.RoleLearner}, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = svc.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestIdentityClaimsFallbacks(t *testing.T) {
	svc := NewIdentityService(IdentityConfig{Secret: "secret"}, nil)

	sign := func(claims *models.JWTClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		return token
	}
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	identity, err := svc.ValidateToken(sign(&models.JWTClaims{Role: models.RoleInstructor, RegisteredClaims: jwt.RegisteredClaims{Subject: "instructor-1", ExpiresAt: future}}))
	require.NoError(t, err)
	assert.Equal(t, "instructor-1", identity.UserID)

	_, err = svc.ValidateToken(sign(&models.JWTClaims{Role: models.RoleLearner, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}))
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = svc.ValidateToken(sign(&models.JWTClaims{UserID: "x", Role: "JANITOR", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestIdentityRejectsOtherAlgorithms(t *testing.T) {
	svc := NewIdentityService(IdentityConfig{Secret: "secret"}, nil)
	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
