// internal/models/order.go
package models

import (
	"github.com/google/uuid"
)

// Order is a committed purchase of one or more listings by a buyer.
// PaymentMethod is a label only, no money moves through the platform.
type Order struct {
	BaseModel
	BuyerID         uuid.UUID   `json:"buyer_id" gorm:"type:uuid;not null;index"`
	Total           int64       `json:"total" gorm:"not null"`
	PaymentMethod   string      `json:"payment_method" gorm:"size:50"`
	DeliveryAddress string      `json:"delivery_address" gorm:"type:text"`
	Notes           string      `json:"notes,omitempty" gorm:"type:text"`
	Status          OrderStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`

	// Relationships
	Buyer User        `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

// OrderItem captures one listing inside an order. UnitPrice is the price
// at sale time, a historical record, never a live join against the
// listing's current price. Quantity is always 1 in this domain.
type OrderItem struct {
	BaseModel
	OrderID   uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`
	ListingID uuid.UUID `json:"listing_id" gorm:"type:uuid;not null;index"`
	SellerID  uuid.UUID `json:"seller_id" gorm:"type:uuid;not null;index"`
	Quantity  int       `json:"quantity" gorm:"not null;default:1"`
	UnitPrice int64     `json:"unit_price" gorm:"not null"`
	Subtotal  int64     `json:"subtotal" gorm:"not null"`

	// Relationships
	Order   Order   `json:"-" gorm:"foreignKey:OrderID"`
	Listing Listing `json:"listing,omitempty" gorm:"foreignKey:ListingID"`
}
