package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"github.com/tuinawx/booking-api/config"
)

// TokenClaims is the payload the mini-program login service signs.
type TokenClaims struct {
	UserID       uint   `json:"userId,omitempty"`
	TechnicianID uint   `json:"technicianId,omitempty"`
	Scope        string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// NewClaims returns registered claims valid for an hour for the configured issuer and audience.
func NewClaims(cfg *config.Config) TokenClaims {
	now := time.Now()
	return TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.JWTIssuer,
			Audience:  jwt.ClaimStrings{cfg.JWTAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

// SignToken signs claims with the configured HS256 secret.
func SignToken(t *testing.T, cfg *config.Config, claims TokenClaims) string {
	t.Helper()
	return SignTokenWithSecret(t, cfg.JWTSecret, claims)
}

// SignTokenWithSecret signs claims with an arbitrary secret.
func SignTokenWithSecret(t *testing.T, secret string, claims TokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

// CustomerToken signs a customer token for userID.
func CustomerToken(t *testing.T, cfg *config.Config, userID uint) string {
	t.Helper()
	claims := NewClaims(cfg)
	claims.Subject = "user"
	claims.UserID = userID
	return SignToken(t, cfg, claims)
}

// TechnicianToken signs a technician token for technicianID.
func TechnicianToken(t *testing.T, cfg *config.Config, technicianID uint) string {
	t.Helper()
	claims := NewClaims(cfg)
	claims.Subject = "technician"
	claims.TechnicianID = technicianID
	return SignToken(t, cfg, claims)
}
