package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-payouts/pkg/config"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "packfinderz",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseSellerToken(t *testing.T) {
	cfg := testJWTConfig()
	subject := uuid.New()
	seller := uuid.New()

	token, err := MintAccessToken(cfg, time.Now().UTC(), AccessTokenPayload{
		SubjectID: subject,
		SellerID:  &seller,
		Role:      enums.ActorRoleSeller,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.SubjectID != subject {
		t.Fatalf("expected subject %s, got %s", subject, claims.SubjectID)
	}
	if claims.SellerID == nil || *claims.SellerID != seller {
		t.Fatalf("seller id not preserved")
	}
	if claims.Role != enums.ActorRoleSeller {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != cfg.Issuer || claims.ID == "" {
		t.Fatalf("registered claims not populated: %+v", claims.RegisteredClaims)
	}
}

func TestMintRejectsSellerTokenWithoutSeller(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig(), time.Now(), AccessTokenPayload{
		SubjectID: uuid.New(),
		Role:      enums.ActorRoleSeller,
	})
	if !errors.Is(err, errMissingSeller) {
		t.Fatalf("expected errMissingSeller, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{
		SubjectID: uuid.New(),
		Role:      enums.ActorRoleOperator,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		SubjectID: uuid.New(),
		Role:      enums.ActorRoleOperator,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	other := cfg
	other.Secret = "other"
	_, err = ParseAccessToken(other, token)
	if err == nil || !strings.Contains(err.Error(), "signature") {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestParseRejectsForeignIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{SubjectID: uuid.New(), Role: enums.ActorRoleOperator})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	other := cfg
	other.Issuer = "someone-else"
	if _, err := ParseAccessToken(other, token); !errors.Is(err, jwt.ErrTokenInvalidIssuer) {
		t.Fatalf("expected issuer error, got %v", err)
	}
}

func TestParseRejectsUnsignedToken(t *testing.T) {
	cfg := testJWTConfig()
	claims := AccessTokenClaims{
		SubjectID: uuid.New(),
		Role:      enums.ActorRoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("build unsigned token: %v", err)
	}
	if _, err := ParseAccessToken(cfg, unsigned); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}
}
