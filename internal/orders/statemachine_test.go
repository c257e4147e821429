package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

func TestIsTransitionAllowedTable(t *testing.T) {
	cases := []struct {
		from, to enums.OrderStatus
		allowed  []enums.ActorRole
	}{
		{enums.OrderStatusPending, enums.OrderStatusConfirmed, rolesOperator},
		{enums.OrderStatusPending, enums.OrderStatusCancelled, rolesBackHQ},
		{enums.OrderStatusConfirmed, enums.OrderStatusProcessing, rolesOperator},
		{enums.OrderStatusConfirmed, enums.OrderStatusCancelled, rolesBackHQ},
		{enums.OrderStatusProcessing, enums.OrderStatusShipped, rolesOperator},
		{enums.OrderStatusProcessing, enums.OrderStatusCancelled, rolesBackHQ},
		{enums.OrderStatusShipped, enums.OrderStatusOutForDelivery, rolesCourier},
		{enums.OrderStatusShipped, enums.OrderStatusDelivered, rolesCourier},
		{enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered, rolesCourier},
		{enums.OrderStatusDelivered, enums.OrderStatusReturned, rolesReturn},
		{enums.OrderStatusDelivered, enums.OrderStatusRefunded, rolesBackHQ},
		{enums.OrderStatusReturned, enums.OrderStatusRefunded, rolesBackHQ},
	}

	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			for _, role := range enums.ActorRoles() {
				decision := IsTransitionAllowed(tc.from, tc.to, role)
				if contains(tc.allowed, role) {
					require.True(t, decision.Allowed, "role %s", role)
					require.NoError(t, decision.Err)
					require.NotNil(t, decision.Transition)
					continue
				}
				require.False(t, decision.Allowed, "role %s", role)
				assert.Equal(t, pkgerrors.CodePermissionDenied, pkgerrors.CodeOf(decision.Err))
			}
		})
	}
}

func TestIsTransitionAllowedRejectsEveryPairOutsideTable(t *testing.T) {
	for _, from := range enums.OrderStatuses() {
		for _, to := range enums.OrderStatuses() {
			if _, ok := transitionTable[from][to]; ok {
				continue
			}
			for _, role := range enums.ActorRoles() {
				decision := IsTransitionAllowed(from, to, role)
				require.False(t, decision.Allowed, "%s -> %s as %s", from, to, role)
				require.Nil(t, decision.Transition)
				assert.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.CodeOf(decision.Err))
			}
		}
	}
}

func TestTerminalStatusesHaveNoTargets(t *testing.T) {
	assert.Empty(t, AllowedTargets(enums.OrderStatusCancelled))
	assert.Empty(t, AllowedTargets(enums.OrderStatusRefunded))
	assert.Equal(t, []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusCancelled}, AllowedTargets(enums.OrderStatusPending))
}

func TestIsTransitionAllowedUnknownRole(t *testing.T) {
	decision := IsTransitionAllowed(enums.OrderStatusPending, enums.OrderStatusConfirmed, "robot")
	assert.False(t, decision.Allowed)
	assert.Equal(t, pkgerrors.CodePermissionDenied, pkgerrors.CodeOf(decision.Err))
}

func contains(roles []enums.ActorRole, role enums.ActorRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
