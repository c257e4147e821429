package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder       OutboxAggregateType = "order"
	AggregateReservation OutboxAggregateType = "reservation"
	AggregateInvoice     OutboxAggregateType = "invoice"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateReservation,
	AggregateInvoice,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventInventoryReserved     OutboxEventType = "inventory_reserved"
	EventInventoryReleased     OutboxEventType = "inventory_released"
	EventInventoryConsumed     OutboxEventType = "inventory_consumed"
	EventInvoiceRequested      OutboxEventType = "invoice_requested"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validEventTypes = []OutboxEventType{
	EventOrderStatusChanged,
	EventInventoryReserved,
	EventInventoryReleased,
	EventInventoryConsumed,
	EventInvoiceRequested,
	EventNotificationRequested,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
