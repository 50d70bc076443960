// internal/models/listing.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Listing is a single, non-fungible item offered for sale. There is no
// quantity column; one row is one physical item. Status is only ever
// written through the guarded transition in the listing service.
type Listing struct {
	BaseModel
	SellerID    uuid.UUID      `json:"seller_id" gorm:"type:uuid;not null;index"`
	Title       string         `json:"title" gorm:"size:255;not null"`
	Description string         `json:"description" gorm:"type:text"`
	Category    string         `json:"category" gorm:"size:100;index"`
	Campus      string         `json:"campus" gorm:"size:100;index"`
	Price       int64          `json:"price" gorm:"not null"`
	Images      pq.StringArray `json:"images" gorm:"type:text[]"`
	Status      ListingStatus  `json:"status" gorm:"type:varchar(20);default:'available';index"`

	// Relationships
	Seller       User          `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
	Reservations []Reservation `json:"reservations,omitempty" gorm:"foreignKey:ListingID"`
}
