package inventory

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/api/responses"
	"github.com/angelmondragon/packfinderz-fulfillment/api/validators"
	"github.com/angelmondragon/packfinderz-fulfillment/internal/cron"
	internalinventory "github.com/angelmondragon/packfinderz-fulfillment/internal/inventory"
	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

// Sweeper is the on-demand face of the reservation expiry job.
type Sweeper interface {
	Cleanup(ctx context.Context, storeID *uuid.UUID, batchSize int) cron.SweepReport
}

type setStockRequest struct {
	StoreID    uuid.UUID `json:"store_id" validate:"required"`
	SupplierID uuid.UUID `json:"supplier_id" validate:"required"`
	OriginID   uuid.UUID `json:"origin_id"`
	VariantID  uuid.UUID `json:"variant_id" validate:"required"`
	Available  int       `json:"available" validate:"min=0"`
}

type sweepRequest struct {
	StoreID   *uuid.UUID `json:"store_id"`
	BatchSize int        `json:"batch_size" validate:"omitempty,min=1,max=1000"`
}

// SetStock overwrites a counter's available quantity.
func SetStock(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		var req setStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		counter, err := svc.SetStock(r.Context(), internalinventory.SetStockInput{
			Key: internalinventory.CounterKey{
				StoreID:    req.StoreID,
				SupplierID: req.SupplierID,
				OriginID:   req.OriginID,
				VariantID:  req.VariantID,
			},
			Available: req.Available,
		}, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, counter)
	}
}

// Sweep runs the expiry sweeper now instead of waiting for the cron tick.
func Sweep(sweeper Sweeper, enabled bool, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !enabled {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "manual sweep disabled"))
			return
		}
		if sweeper == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sweeper unavailable"))
			return
		}

		var req sweepRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report := sweeper.Cleanup(r.Context(), req.StoreID, req.BatchSize)
		responses.WriteSuccess(w, report)
	}
}
