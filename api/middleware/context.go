package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

type (
	actorKey struct{}
	storeKey struct{}
)

// principal is the authenticated caller as the auth middleware saw it.
type principal struct {
	id   string
	role enums.ActorRole
}

func principalFrom(ctx context.Context) principal {
	if ctx == nil {
		return principal{}
	}
	p, _ := ctx.Value(actorKey{}).(principal)
	return p
}

func ActorIDFromContext(ctx context.Context) string {
	return principalFrom(ctx).id
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	return principalFrom(ctx).role
}

func StoreIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(storeKey{}).(string)
	return id
}

// StoreUUIDFromContext parses the store claim. Admin and system tokens may
// carry none, in which case nil is returned.
func StoreUUIDFromContext(ctx context.Context) *uuid.UUID {
	id, err := uuid.Parse(StoreIDFromContext(ctx))
	if err != nil {
		return nil
	}
	return &id
}

func WithActor(ctx context.Context, actorID string, role enums.ActorRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, principal{id: actorID, role: role})
}

func WithStoreID(ctx context.Context, storeID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, storeKey{}, storeID)
}

// ActorIDPtr returns the actor id as the optional pointer the services take.
func ActorIDPtr(ctx context.Context) *string {
	if id := ActorIDFromContext(ctx); id != "" {
		return &id
	}
	return nil
}

// IsOperator reports whether the actor may act across stores.
func IsOperator(ctx context.Context) bool {
	switch RoleFromContext(ctx) {
	case enums.ActorRoleAdmin, enums.ActorRoleSystem:
		return true
	default:
		return false
	}
}
