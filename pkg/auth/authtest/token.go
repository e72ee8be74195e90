// Package authtest signs access tokens for tests that exercise authenticated routes.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mmararief/dante-propolis/pkg/auth"
	"github.com/mmararief/dante-propolis/pkg/config"
	"github.com/mmararief/dante-propolis/pkg/enums"
)

// Config returns a JWT config suitable for tests.
func Config() config.JWTConfig {
	return config.JWTConfig{Secret: "test-secret", Issuer: "dante-test"}
}

// Token signs a short-lived token for the user and role.
func Token(t testing.TB, cfg config.JWTConfig, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	now := time.Now().UTC()
	claims := auth.AccessTokenClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
			ID:        uuid.NewString(),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	signed, err := jwt.NewWithClaims(auth.SigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
