package inventory

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/api/responses"
	"github.com/angelmondragon/packfinderz-fulfillment/api/validators"
	internalinventory "github.com/angelmondragon/packfinderz-fulfillment/internal/inventory"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

type reserveRequest struct {
	StoreID    *uuid.UUID                      `json:"store_id"`
	OrderID    uuid.UUID                       `json:"order_id" validate:"required"`
	Items      []internalinventory.ReserveItem `json:"items" validate:"required,min=1,dive"`
	TTLMinutes int                             `json:"ttl_minutes" validate:"omitempty,min=1,max=10080"`
	Deferred   bool                            `json:"deferred"`
	Metadata   map[string]any                  `json:"metadata"`
}

type releaseRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=64"`
}

// Reserve holds stock for every line of an order or for none of them.
func Reserve(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		var req reserveRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		storeID, err := resolveStore(r, req.StoreID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if storeID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "store_id is required"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, req.OrderID.String())
		}
		result, err := svc.ReserveInventory(ctx, internalinventory.ReserveInput{
			StoreID:    *storeID,
			OrderID:    req.OrderID,
			Items:      req.Items,
			TTLMinutes: req.TTLMinutes,
			Deferred:   req.Deferred,
			Metadata:   types.Metadata(req.Metadata),
		}, actorFrom(r))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Release returns an order's active holds to available stock.
func Release(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req releaseRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		storeID, err := resolveStore(r, nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ReleaseInventory(r.Context(), orderID, storeID, req.Reason, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Consume converts an order's active holds into shipped stock.
func Consume(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		storeID, err := resolveStore(r, nil)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ConsumeInventory(r.Context(), orderID, storeID, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
