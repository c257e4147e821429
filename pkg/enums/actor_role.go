package enums

import "fmt"

// ActorRole identifies who is driving an order mutation.
type ActorRole string

const (
	ActorRoleAdmin    ActorRole = "admin"
	ActorRoleSystem   ActorRole = "system"
	ActorRoleVendor   ActorRole = "vendor"
	ActorRoleDelivery ActorRole = "delivery"
	ActorRoleCustomer ActorRole = "customer"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleSystem,
	ActorRoleVendor,
	ActorRoleDelivery,
	ActorRoleCustomer,
}

// ActorRoles returns every known role.
func ActorRoles() []ActorRole {
	out := make([]ActorRole, len(validActorRoles))
	copy(out, validActorRoles)
	return out
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
