// Package events defines the domain events the core emits and the
// publish-only contract the notification channel implements. Delivery is
// fire-and-forget: emission happens after the owning database transaction
// commits and its failure never affects the committed result.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	ReservationCreated   = "reservation.created"
	ReservationAccepted  = "reservation.accepted"
	ReservationRejected  = "reservation.rejected"
	ReservationCancelled = "reservation.cancelled"
	OrderCreated         = "order.created"
	OrderCancelled       = "order.cancelled"
)

// Event carries enough for downstream consumers to notify the affected
// users without querying the primary database.
type Event struct {
	Name          string     `json:"name"`
	ListingID     uuid.UUID  `json:"listing_id"`
	ListingTitle  string     `json:"listing_title,omitempty"`
	BuyerID       uuid.UUID  `json:"buyer_id"`
	SellerID      uuid.UUID  `json:"seller_id"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
	OrderID       *uuid.UUID `json:"order_id,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// Emitter publishes domain events. Implementations must not block the
// request path on broker availability and must never return delivery
// failures to the caller.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// NopEmitter discards every event. Used when no broker is configured.
type NopEmitter struct{}

func (NopEmitter) Emit(ctx context.Context, event Event) {}
