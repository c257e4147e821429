package orders

import (
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

// Transition is one allowed edge of the lifecycle and the roles that may take it.
type Transition struct {
	From  enums.OrderStatus
	To    enums.OrderStatus
	Roles []enums.ActorRole
}

// Permits reports whether role may take the transition.
func (t Transition) Permits(role enums.ActorRole) bool {
	for _, candidate := range t.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// Decision is the answer of IsTransitionAllowed. Err is nil exactly when
// Allowed is true.
type Decision struct {
	Allowed    bool
	Transition *Transition
	Err        error
}

var (
	rolesOperator = []enums.ActorRole{enums.ActorRoleAdmin, enums.ActorRoleSystem, enums.ActorRoleVendor}
	rolesBackHQ   = []enums.ActorRole{enums.ActorRoleAdmin, enums.ActorRoleSystem}
	rolesCourier  = []enums.ActorRole{enums.ActorRoleDelivery, enums.ActorRoleSystem}
	rolesReturn   = []enums.ActorRole{enums.ActorRoleAdmin, enums.ActorRoleSystem, enums.ActorRoleCustomer}
)

var transitionTable = map[enums.OrderStatus]map[enums.OrderStatus][]enums.ActorRole{
	enums.OrderStatusPending: {
		enums.OrderStatusConfirmed: rolesOperator,
		enums.OrderStatusCancelled: rolesBackHQ,
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusProcessing: rolesOperator,
		enums.OrderStatusCancelled:  rolesBackHQ,
	},
	enums.OrderStatusProcessing: {
		enums.OrderStatusShipped:   rolesOperator,
		enums.OrderStatusCancelled: rolesBackHQ,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusOutForDelivery: rolesCourier,
		enums.OrderStatusDelivered:      rolesCourier,
	},
	enums.OrderStatusOutForDelivery: {
		enums.OrderStatusDelivered: rolesCourier,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusReturned: rolesReturn,
		enums.OrderStatusRefunded: rolesBackHQ,
	},
	enums.OrderStatusReturned: {
		enums.OrderStatusRefunded: rolesBackHQ,
	},
}

// IsTransitionAllowed decides whether role may move an order from one status
// to another. It performs no I/O; same-status requests are not in the table
// and are handled by the orchestrator.
func IsTransitionAllowed(from, to enums.OrderStatus, role enums.ActorRole) Decision {
	roles, ok := transitionTable[from][to]
	if !ok {
		return Decision{
			Err: pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cannot transition order from %s to %s", from, to).
				WithDetails(map[string]any{
					"from":            from,
					"to":              to,
					"allowed_targets": AllowedTargets(from),
				}),
		}
	}

	transition := &Transition{From: from, To: to, Roles: append([]enums.ActorRole(nil), roles...)}
	if !transition.Permits(role) {
		return Decision{
			Transition: transition,
			Err: pkgerrors.Newf(pkgerrors.CodePermissionDenied, "role %q may not transition order from %s to %s", role, from, to).
				WithDetails(map[string]any{
					"from":          from,
					"to":            to,
					"allowed_roles": transition.Roles,
				}),
		}
	}
	return Decision{Allowed: true, Transition: transition}
}

// AllowedTargets lists the statuses reachable from from, in lifecycle order.
func AllowedTargets(from enums.OrderStatus) []enums.OrderStatus {
	edges := transitionTable[from]
	out := make([]enums.OrderStatus, 0, len(edges))
	for _, status := range enums.OrderStatuses() {
		if _, ok := edges[status]; ok {
			out = append(out, status)
		}
	}
	return out
}
