package inventory

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/api/middleware"
	internalinventory "github.com/angelmondragon/packfinderz-fulfillment/internal/inventory"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
)

// resolveStore picks the store an inventory call is scoped to. Store-bound
// tokens may only act on their own store; operators may name any store or none.
func resolveStore(r *http.Request, requested *uuid.UUID) (*uuid.UUID, error) {
	claimed := middleware.StoreUUIDFromContext(r.Context())
	if middleware.IsOperator(r.Context()) {
		if requested != nil {
			return requested, nil
		}
		return claimed, nil
	}
	if claimed == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store context missing")
	}
	if requested != nil && *requested != *claimed {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store does not match token")
	}
	return claimed, nil
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}

func actorFrom(r *http.Request) internalinventory.Actor {
	return internalinventory.Actor{
		Role: middleware.RoleFromContext(r.Context()),
		ID:   middleware.ActorIDPtr(r.Context()),
	}
}
