package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/db/models"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/types"
)

const (
	ReasonInsufficientAvailable = "insufficient_available_stock"
	ReasonCounterNotFound       = "inventory_not_found"

	ReleaseReasonDefault = "released"
	ReleaseReasonExpired = "reservation_expired"
	ReleaseReasonCancel  = "order_cancelled"
)

// CounterKey addresses one inventory counter.
type CounterKey struct {
	StoreID    uuid.UUID
	SupplierID uuid.UUID
	OriginID   uuid.UUID
	VariantID  uuid.UUID
}

// ReserveItem is one requested hold. A zero OriginID targets the supplier's
// default stock.
type ReserveItem struct {
	VariantID  uuid.UUID `json:"variant_id" validate:"required"`
	SupplierID uuid.UUID `json:"supplier_id" validate:"required"`
	OriginID   uuid.UUID `json:"origin_id"`
	Quantity   int       `json:"quantity" validate:"required,gt=0"`
}

func (i ReserveItem) key(storeID uuid.UUID) CounterKey {
	return CounterKey{StoreID: storeID, SupplierID: i.SupplierID, OriginID: i.OriginID, VariantID: i.VariantID}
}

// ReserveInput describes one reservation batch. TTLMinutes overrides the
// configured TTL; Deferred selects the long TTL used for COD style flows.
type ReserveInput struct {
	StoreID    uuid.UUID
	OrderID    uuid.UUID
	Items      []ReserveItem
	TTLMinutes int
	Deferred   bool
	Metadata   types.Metadata
}

// Shortfall itemizes one line that could not be held.
type Shortfall struct {
	VariantID  uuid.UUID `json:"variant_id"`
	SupplierID uuid.UUID `json:"supplier_id"`
	OriginID   uuid.UUID `json:"origin_id"`
	Requested  int       `json:"requested"`
	Available  int       `json:"available"`
	Reason     string    `json:"reason"`
}

// Actor identifies who invoked an inventory operation.
type Actor struct {
	Role enums.ActorRole
	ID   *string
}

// SystemActor is used by background jobs.
var SystemActor = Actor{Role: enums.ActorRoleSystem}

func (a Actor) orSystem() Actor {
	if a.Role == "" {
		a.Role = enums.ActorRoleSystem
	}
	return a
}

type ReserveResult struct {
	OrderID      uuid.UUID            `json:"order_id"`
	ExpiresAt    time.Time            `json:"expires_at"`
	Reservations []models.Reservation `json:"reservations"`
}

type ReleaseResult struct {
	OrderID       uuid.UUID `json:"order_id"`
	Reason        string    `json:"reason"`
	ReleasedCount int       `json:"released_count"`
}

type ConsumeResult struct {
	OrderID       uuid.UUID `json:"order_id"`
	ConsumedCount int       `json:"consumed_count"`
}

// SetStockInput sets the available quantity of a counter. Reserved units are
// untouched and the total follows.
type SetStockInput struct {
	Key       CounterKey
	Available int
}
