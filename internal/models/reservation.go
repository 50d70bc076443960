// internal/models/reservation.go
package models

import (
	"github.com/google/uuid"
)

// Reservation is a buyer's hold on a listing pending seller approval and
// purchase. SellerID is denormalized from the listing owner at creation
// time so seller-side queries never need the join.
type Reservation struct {
	BaseModel
	ListingID uuid.UUID         `json:"listing_id" gorm:"type:uuid;not null;index"`
	BuyerID   uuid.UUID         `json:"buyer_id" gorm:"type:uuid;not null;index"`
	SellerID  uuid.UUID         `json:"seller_id" gorm:"type:uuid;not null;index"`
	Status    ReservationStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`

	// Relationships
	Listing Listing `json:"listing,omitempty" gorm:"foreignKey:ListingID"`
	Buyer   User    `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
	Seller  User    `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
}
