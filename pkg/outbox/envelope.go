package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
)

// ActorRef identifies who caused the event. System jobs leave ID empty.
type ActorRef struct {
	ID      string          `json:"id,omitempty"`
	StoreID *uuid.UUID      `json:"storeId,omitempty"`
	Role    enums.ActorRole `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and relayed
// verbatim to the broker. Consumers dedupe on EventID.
type PayloadEnvelope struct {
	Version       int                       `json:"version"`
	EventID       string                    `json:"eventId"`
	EventType     enums.OutboxEventType     `json:"eventType,omitempty"`
	AggregateType enums.OutboxAggregateType `json:"aggregateType,omitempty"`
	AggregateID   uuid.UUID                 `json:"aggregateId"`
	OccurredAt    time.Time                 `json:"occurredAt"`
	Actor         *ActorRef                 `json:"actor,omitempty"`
	Data          json.RawMessage           `json:"data"`
}
