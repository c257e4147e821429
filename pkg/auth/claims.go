package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

var (
	errStoreRequired  = errors.New("store-scoped role requires store_id")
	errSystemNotToken = errors.New("system role cannot be carried by an access token")
)

// AccessTokenPayload captures the actor data available when minting a JWT.
type AccessTokenPayload struct {
	ActorID uuid.UUID
	StoreID *uuid.UUID
	Role    enums.ActorRole
	JTI     string
}

// AccessTokenClaims is the typed JWT presented by callers. Role is what the
// lifecycle guards check.
type AccessTokenClaims struct {
	ActorID uuid.UUID       `json:"actor_id"`
	StoreID *uuid.UUID      `json:"store_id,omitempty"`
	Role    enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered-claim checks during parsing.
func (c AccessTokenClaims) Validate() error {
	return checkActor(c.ActorID, c.StoreID, c.Role)
}

func checkActor(actorID uuid.UUID, storeID *uuid.UUID, role enums.ActorRole) error {
	switch {
	case actorID == uuid.Nil:
		return errors.New("actor_id is required")
	case !role.IsValid():
		return fmt.Errorf("invalid actor role %q", role)
	case role == enums.ActorRoleSystem:
		return errSystemNotToken
	case storeScoped(role) && (storeID == nil || *storeID == uuid.Nil):
		return errStoreRequired
	}
	return nil
}

// vendors and customers only ever act on behalf of one store
func storeScoped(role enums.ActorRole) bool {
	return role == enums.ActorRoleVendor || role == enums.ActorRoleCustomer
}
