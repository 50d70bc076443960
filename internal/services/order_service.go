// internal/services/order_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unimarket/unimarket-backend/internal/apperrors"
	"github.com/unimarket/unimarket-backend/internal/events"
	"github.com/unimarket/unimarket-backend/internal/models"
	"github.com/unimarket/unimarket-backend/internal/utils"
)

// OrderService runs checkout. The whole order is one transaction: every
// line validates, reserves and sells, or nothing is written at all.
type OrderService struct {
	db                 *gorm.DB
	listingService     *ListingService
	reservationService *ReservationService
	emitter            events.Emitter
}

type OrderLineRequest struct {
	ListingID uuid.UUID `json:"listing_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"omitempty,min=1"`
	UnitPrice int64     `json:"unit_price" validate:"min=0"`
}

type CreateOrderRequest struct {
	Items           []OrderLineRequest `json:"items" validate:"required,min=1,dive"`
	Total           int64              `json:"total" validate:"required,min=1"`
	PaymentMethod   string             `json:"payment_method" validate:"required"`
	DeliveryAddress string             `json:"delivery_address,omitempty"`
	Notes           string             `json:"notes,omitempty"`
}

func NewOrderService(db *gorm.DB, listingService *ListingService, reservationService *ReservationService, emitter events.Emitter) *OrderService {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &OrderService{
		db:                 db,
		listingService:     listingService,
		reservationService: reservationService,
		emitter:            emitter,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, buyerID uuid.UUID, req *CreateOrderRequest) (*models.Order, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}

	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", apperrors.ErrBadRequest)
	}

	if req.Total <= 0 {
		return nil, fmt.Errorf("%w: order total must be positive", apperrors.ErrBadRequest)
	}

	// The declared total must match the line math exactly. Prices are
	// integer minor units, so there is no rounding to forgive.
	var computed int64
	for _, line := range req.Items {
		qty := line.Quantity
		if qty == 0 {
			qty = 1
		}
		computed += line.UnitPrice * int64(qty)
	}
	if computed != req.Total {
		return nil, fmt.Errorf("%w: declared total %d does not match item subtotals %d", apperrors.ErrBadRequest, req.Total, computed)
	}

	order := &models.Order{
		BuyerID:         buyerID,
		Total:           req.Total,
		PaymentMethod:   req.PaymentMethod,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
		Status:          models.OrderStatusPending,
	}

	var pendingEvents []events.Event
	var touched []uuid.UUID

	err := s.db.Transaction(func(tx *gorm.DB) error {
		items := make([]models.OrderItem, 0, len(req.Items))

		for _, line := range req.Items {
			var listing models.Listing
			if err := tx.First(&listing, "id = ?", line.ListingID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: listing %s does not exist", apperrors.ErrNotFound, line.ListingID)
				}
				return fmt.Errorf("database error: %w", err)
			}

			if listing.SellerID == buyerID {
				return fmt.Errorf("%w: you cannot buy your own listing %q", apperrors.ErrForbidden, listing.Title)
			}

			switch listing.Status {
			case models.ListingStatusSold:
				return fmt.Errorf("%w: %q has already been sold", apperrors.ErrConflict, listing.Title)
			case models.ListingStatusInactive:
				return fmt.Errorf("%w: %q is no longer on the marketplace", apperrors.ErrConflict, listing.Title)
			}

			// Price drift: the buyer confirmed a price that is no longer
			// the listing's price. Surface it rather than charge silently.
			if line.UnitPrice != listing.Price {
				return fmt.Errorf("%w: the price of %q changed from %d to %d, please review your order",
					apperrors.ErrConflict, listing.Title, line.UnitPrice, listing.Price)
			}

			reservation, err := s.resolveReservation(tx, &listing, buyerID)
			if err != nil {
				return err
			}

			if err := s.reservationService.CompleteReservation(tx, reservation); err != nil {
				return err
			}

			if err := s.listingService.TransitionStatus(tx, listing.ID,
				models.ListingStatusReserved, models.ListingStatusSold); err != nil {
				return err
			}

			qty := line.Quantity
			if qty == 0 {
				qty = 1
			}

			touched = append(touched, listing.ID)

			items = append(items, models.OrderItem{
				ListingID: listing.ID,
				SellerID:  listing.SellerID,
				Quantity:  qty,
				UnitPrice: listing.Price,
				Subtotal:  listing.Price * int64(qty),
			})

			pendingEvents = append(pendingEvents, events.Event{
				Name:          events.OrderCreated,
				ListingID:     listing.ID,
				ListingTitle:  listing.Title,
				BuyerID:       buyerID,
				SellerID:      listing.SellerID,
				ReservationID: &reservation.ID,
				OccurredAt:    time.Now().UTC(),
			})
		}

		order.Items = items
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	s.listingService.InvalidateCached(touched...)

	for i := range pendingEvents {
		pendingEvents[i].OrderID = &order.ID
		s.emitter.Emit(ctx, pendingEvents[i])
	}

	s.db.Preload("Items").Preload("Items.Listing").First(order, "id = ?", order.ID)

	return order, nil
}

// resolveReservation returns the buyer's confirmed reservation for the
// listing, creating one when the buyer holds none. A listing reserved
// under someone else's active reservation is not purchasable.
func (s *OrderService) resolveReservation(tx *gorm.DB, listing *models.Listing, buyerID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	err := tx.Where("listing_id = ? AND buyer_id = ? AND status IN ?",
		listing.ID, buyerID, activeReservationStatuses()).
		First(&reservation).Error

	if err == nil {
		return &reservation, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if listing.Status == models.ListingStatusReserved {
		return nil, fmt.Errorf("%w: %q is reserved by another buyer", apperrors.ErrConflict, listing.Title)
	}

	reservation = models.Reservation{
		ListingID: listing.ID,
		BuyerID:   buyerID,
		SellerID:  listing.SellerID,
		Status:    models.ReservationStatusConfirmed,
	}
	if err := tx.Create(&reservation).Error; err != nil {
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}

	if err := s.listingService.TransitionStatus(tx, listing.ID,
		models.ListingStatusAvailable, models.ListingStatusReserved); err != nil {
		return nil, err
	}

	return &reservation, nil
}

func (s *OrderService) CancelOrder(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error) {
	var order models.Order
	var pendingEvents []events.Event
	var touched []uuid.UUID

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order does not exist", apperrors.ErrNotFound)
			}
			return fmt.Errorf("database error: %w", err)
		}

		if order.BuyerID != buyerID {
			return fmt.Errorf("%w: only the buyer can cancel this order", apperrors.ErrForbidden)
		}

		if order.Status == models.OrderStatusCancelled {
			return fmt.Errorf("%w: order is already cancelled", apperrors.ErrConflict)
		}

		if err := tx.Model(&order).Update("status", models.OrderStatusCancelled).Error; err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		order.Status = models.OrderStatusCancelled

		for _, item := range order.Items {
			if err := s.listingService.TransitionStatus(tx, item.ListingID,
				models.ListingStatusSold, models.ListingStatusAvailable); err != nil {
				return err
			}
			touched = append(touched, item.ListingID)

			// Any completed reservation the buyer held on this listing is
			// voided with the order.
			if err := tx.Model(&models.Reservation{}).
				Where("listing_id = ? AND buyer_id = ? AND status = ?",
					item.ListingID, order.BuyerID, models.ReservationStatusCompleted).
				Update("status", models.ReservationStatusCancelled).Error; err != nil {
				return fmt.Errorf("failed to release reservation: %w", err)
			}

			pendingEvents = append(pendingEvents, events.Event{
				Name:       events.OrderCancelled,
				ListingID:  item.ListingID,
				BuyerID:    order.BuyerID,
				SellerID:   item.SellerID,
				OrderID:    &order.ID,
				OccurredAt: time.Now().UTC(),
			})
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	s.listingService.InvalidateCached(touched...)

	for _, ev := range pendingEvents {
		s.emitter.Emit(ctx, ev)
	}

	return &order, nil
}

// ConfirmOrder lets a seller acknowledge an order that includes one of
// their listings. It is bookkeeping only, availability already moved at
// checkout.
func (s *OrderService) ConfirmOrder(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error) {
	var order models.Order

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order does not exist", apperrors.ErrNotFound)
			}
			return fmt.Errorf("database error: %w", err)
		}

		sells := false
		for _, item := range order.Items {
			if item.SellerID == sellerID {
				sells = true
				break
			}
		}
		if !sells {
			return fmt.Errorf("%w: none of your listings are part of this order", apperrors.ErrForbidden)
		}

		if order.Status != models.OrderStatusPending {
			return fmt.Errorf("%w: order is not pending (status: %s)", apperrors.ErrConflict, order.Status)
		}

		if err := tx.Model(&order).Update("status", models.OrderStatusConfirmed).Error; err != nil {
			return fmt.Errorf("failed to confirm order: %w", err)
		}
		order.Status = models.OrderStatusConfirmed

		return nil
	})

	if err != nil {
		return nil, err
	}

	return &order, nil
}

func (s *OrderService) GetOrder(orderID, requesterID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.db.Preload("Items").Preload("Items.Listing").Preload("Buyer").
		First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order does not exist", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if order.BuyerID != requesterID {
		sells := false
		for _, item := range order.Items {
			if item.SellerID == requesterID {
				sells = true
				break
			}
		}
		if !sells {
			return nil, fmt.Errorf("%w: you are not part of this order", apperrors.ErrForbidden)
		}
	}

	return &order, nil
}

func (s *OrderService) GetBuyerOrders(buyerID uuid.UUID, params utils.PaginationParams) ([]models.Order, int64, error) {
	query := s.db.Model(&models.Order{}).Where("buyer_id = ?", buyerID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "total", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var orders []models.Order
	if err := query.Preload("Items").Preload("Items.Listing").Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch orders: %w", err)
	}

	return orders, total, nil
}
