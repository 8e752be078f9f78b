package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-payouts/pkg/config"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

var (
	jwtSigningMethod = jwt.SigningMethodHS256

	errSecretRequired = errors.New("jwt secret is required")
	errMissingSeller  = errors.New("seller tokens require a seller id")
)

// checkRole enforces the seller/operator split shared by mint and parse.
func checkRole(role enums.ActorRole, sellerID *uuid.UUID) error {
	if !role.IsValid() {
		return fmt.Errorf("invalid actor role %q", role)
	}
	if role == enums.ActorRoleSeller && sellerID == nil {
		return errMissingSeller
	}
	return nil
}

// MintAccessToken signs an HS256 token valid for cfg.ExpirationMinutes.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errSecretRequired
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	}
	if err := checkRole(payload.Role, payload.SellerID); err != nil {
		return "", err
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	claims := AccessTokenClaims{
		SubjectID: payload.SubjectID,
		SellerID:  payload.SellerID,
		Role:      payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.SubjectID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then the role rules.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errSecretRequired
	}
	claims := &AccessTokenClaims{}
	keyFunc := func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil }
	if _, err := jwt.ParseWithClaims(tokenString, claims, keyFunc,
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	); err != nil {
		return nil, err
	}
	if err := checkRole(claims.Role, claims.SellerID); err != nil {
		return nil, err
	}
	return claims, nil
}
