package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	SubjectID uuid.UUID
	SellerID  *uuid.UUID
	Role      enums.ActorRole
	JTI       string
}

// AccessTokenClaims is the typed JWT presented to the payouts API. Seller
// tokens carry the seller they act for; operator tokens carry none.
type AccessTokenClaims struct {
	SubjectID uuid.UUID       `json:"sub_id"`
	SellerID  *uuid.UUID      `json:"seller_id,omitempty"`
	Role      enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}
