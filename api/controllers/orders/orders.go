package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/api/middleware"
	"github.com/angelmondragon/packfinderz-fulfillment/api/responses"
	"github.com/angelmondragon/packfinderz-fulfillment/api/validators"
	internalorders "github.com/angelmondragon/packfinderz-fulfillment/internal/orders"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

type transitionRequest struct {
	ToStatus enums.OrderStatus `json:"to_status" validate:"required,order_status"`
	Metadata map[string]any    `json:"metadata"`
}

// Transition moves an order to the requested status as the calling actor.
func Transition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		role := middleware.RoleFromContext(r.Context())
		if !role.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor role missing"))
			return
		}
		storeID, err := storeScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		result, err := svc.TransitionOrder(ctx, internalorders.TransitionInput{
			OrderID:   orderID,
			StoreID:   storeID,
			ToStatus:  req.ToStatus,
			ActorRole: role,
			ActorID:   middleware.ActorIDPtr(r.Context()),
			Metadata:  types.Metadata(req.Metadata),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// History lists the order's recorded transitions, oldest first.
func History(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		storeID, err := storeScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.History(r.Context(), orderID, storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}

// storeScope confines store-bound callers to their own store's orders.
// Operators see every store; couriers are scoped only when their token names one.
func storeScope(r *http.Request) (*uuid.UUID, error) {
	ctx := r.Context()
	if middleware.IsOperator(ctx) {
		return nil, nil
	}
	claimed := middleware.StoreUUIDFromContext(ctx)
	if claimed == nil && middleware.RoleFromContext(ctx) != enums.ActorRoleDelivery {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store context missing")
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
