// internal/services/reservation_service.go
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
)

// ReservationService mediates the buyer-initiated hold on a listing
// before purchase.
//
// State machine:
//
//	        create          seller accept         buyer cancel
//	(none) -------> pending ------------> confirmed ------------> cancelled
//	                  |                        |
//	                  | seller reject          | (checkout succeeds)
//	                  v                        v
//	               rejected                completed
//
// Every transition that touches the listing runs in one transaction with
// the listing status change, so a crash never leaves a half-applied hold.
type ReservationService struct {
	db             *gorm.DB
	listingService *ListingService
	emitter        events.Emitter
}

func NewReservationService(db *gorm.DB, listingService *ListingService, emitter events.Emitter) *ReservationService {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &ReservationService{
		db:             db,
		listingService: listingService,
		emitter:        emitter,
	}
}

func (s *ReservationService) CreateReservation(ctx context.Context, listingID, buyerID uuid.UUID) (*models.Reservation, error) {
	var reservation *models.Reservation
	var listing models.Listing

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&listing, "id = ?", listingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: listing does not exist", apperrors.ErrNotFound)
			}
			return fmt.Errorf("database error: %w", err)
		}

		if listing.SellerID == buyerID {
			return fmt.Errorf("%w: you cannot reserve your own listing", apperrors.ErrForbidden)
		}

		if listing.Status != models.ListingStatusAvailable {
			return fmt.Errorf("%w: this item was just reserved by someone else", apperrors.ErrConflict)
		}

		// One active reservation per (listing, buyer)
		var existing int64
		if err := tx.Model(&models.Reservation{}).
			Where("listing_id = ? AND buyer_id = ? AND status IN ?", listingID, buyerID, activeReservationStatuses()).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check existing reservations: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("%w: you already have an active reservation for this listing", apperrors.ErrConflict)
		}

		reservation = &models.Reservation{
			ListingID: listingID,
			BuyerID:   buyerID,
			SellerID:  listing.SellerID,
			Status:    models.ReservationStatusPending,
		}
		if err := tx.Create(reservation).Error; err != nil {
			return fmt.Errorf("failed to create reservation: %w", err)
		}

		// The guarded transition is what loses gracefully when two buyers
		// race: the second writer sees zero rows updated and gets Conflict.
		return s.listingService.TransitionStatus(tx, listingID,
			models.ListingStatusAvailable, models.ListingStatusReserved)
	})

	if err != nil {
		return nil, err
	}

	s.listingService.InvalidateCached(listingID)

	s.emitter.Emit(ctx, events.Event{
		Name:          events.ReservationCreated,
		ListingID:     listingID,
		ListingTitle:  listing.Title,
		BuyerID:       buyerID,
		SellerID:      listing.SellerID,
		ReservationID: &reservation.ID,
		OccurredAt:    time.Now().UTC(),
	})

	s.db.Preload("Listing").Preload("Buyer").First(reservation, "id = ?", reservation.ID)

	return reservation, nil
}

func (s *ReservationService) AcceptReservation(ctx context.Context, reservationID, sellerID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadReservation(tx, reservationID, &reservation); err != nil {
			return err
		}

		if reservation.SellerID != sellerID {
			return fmt.Errorf("%w: only the seller can accept this reservation", apperrors.ErrForbidden)
		}

		if reservation.Status != models.ReservationStatusPending {
			return fmt.Errorf("%w: reservation is not pending (status: %s)", apperrors.ErrConflict, reservation.Status)
		}

		return updateReservationStatus(tx, &reservation, models.ReservationStatusConfirmed)
	})

	if err != nil {
		return nil, err
	}

	s.emitter.Emit(ctx, events.Event{
		Name:          events.ReservationAccepted,
		ListingID:     reservation.ListingID,
		BuyerID:       reservation.BuyerID,
		SellerID:      reservation.SellerID,
		ReservationID: &reservation.ID,
		OccurredAt:    time.Now().UTC(),
	})

	return &reservation, nil
}

func (s *ReservationService) RejectReservation(ctx context.Context, reservationID, sellerID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadReservation(tx, reservationID, &reservation); err != nil {
			return err
		}

		if reservation.SellerID != sellerID {
			return fmt.Errorf("%w: only the seller can reject this reservation", apperrors.ErrForbidden)
		}

		if reservation.Status != models.ReservationStatusPending {
			return fmt.Errorf("%w: only pending reservations can be rejected", apperrors.ErrConflict)
		}

		if err := updateReservationStatus(tx, &reservation, models.ReservationStatusRejected); err != nil {
			return err
		}

		// Release the listing in the same transaction
		return s.listingService.TransitionStatus(tx, reservation.ListingID,
			models.ListingStatusReserved, models.ListingStatusAvailable)
	})

	if err != nil {
		return nil, err
	}

	s.listingService.InvalidateCached(reservation.ListingID)

	s.emitter.Emit(ctx, events.Event{
		Name:          events.ReservationRejected,
		ListingID:     reservation.ListingID,
		BuyerID:       reservation.BuyerID,
		SellerID:      reservation.SellerID,
		ReservationID: &reservation.ID,
		OccurredAt:    time.Now().UTC(),
	})

	return &reservation, nil
}

func (s *ReservationService) CancelReservation(ctx context.Context, reservationID, buyerID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := loadReservation(tx, reservationID, &reservation); err != nil {
			return err
		}

		if reservation.BuyerID != buyerID {
			return fmt.Errorf("%w: only the buyer can cancel this reservation", apperrors.ErrForbidden)
		}

		// A second cancel lands here and gets Conflict, it must not
		// silently succeed or re-release an already-available listing.
		if !reservation.Status.IsActive() {
			return fmt.Errorf("%w: only pending or confirmed reservations can be cancelled", apperrors.ErrConflict)
		}

		if err := updateReservationStatus(tx, &reservation, models.ReservationStatusCancelled); err != nil {
			return err
		}

		return s.listingService.TransitionStatus(tx, reservation.ListingID,
			models.ListingStatusReserved, models.ListingStatusAvailable)
	})

	if err != nil {
		return nil, err
	}

	s.listingService.InvalidateCached(reservation.ListingID)

	s.emitter.Emit(ctx, events.Event{
		Name:          events.ReservationCancelled,
		ListingID:     reservation.ListingID,
		BuyerID:       reservation.BuyerID,
		SellerID:      reservation.SellerID,
		ReservationID: &reservation.ID,
		OccurredAt:    time.Now().UTC(),
	})

	return &reservation, nil
}

// CompleteReservation closes out a reservation when the enclosing order
// transaction succeeds. Internal: only the order service calls it, always
// inside its own transaction. A pending reservation is confirmed on the
// way through so the status graph is never skipped.
func (s *ReservationService) CompleteReservation(tx *gorm.DB, reservation *models.Reservation) error {
	if reservation.Status == models.ReservationStatusPending {
		if err := updateReservationStatus(tx, reservation, models.ReservationStatusConfirmed); err != nil {
			return err
		}
	}

	if reservation.Status != models.ReservationStatusConfirmed {
		return fmt.Errorf("%w: reservation is not active (status: %s)", apperrors.ErrConflict, reservation.Status)
	}

	return updateReservationStatus(tx, reservation, models.ReservationStatusCompleted)
}

func (s *ReservationService) GetReservation(reservationID uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := s.db.Preload("Listing").Preload("Buyer").Preload("Seller").
		First(&reservation, "id = ?", reservationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reservation does not exist", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &reservation, nil
}

// GetBuyerReservations returns the buyer's reservations, newest first.
func (s *ReservationService) GetBuyerReservations(buyerID uuid.UUID) ([]models.Reservation, error) {
	var reservations []models.Reservation
	if err := s.db.Where("buyer_id = ?", buyerID).
		Preload("Listing").Preload("Seller").
		Order("created_at DESC").
		Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch reservations: %w", err)
	}
	return reservations, nil
}

// GetSellerPendingReservations returns reservations awaiting the seller's
// accept/reject decision.
func (s *ReservationService) GetSellerPendingReservations(sellerID uuid.UUID) ([]models.Reservation, error) {
	var reservations []models.Reservation
	if err := s.db.Where("seller_id = ? AND status = ?", sellerID, models.ReservationStatusPending).
		Preload("Listing").Preload("Buyer").
		Order("created_at DESC").
		Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch pending reservations: %w", err)
	}
	return reservations, nil
}

// Helpers

func activeReservationStatuses() []models.ReservationStatus {
	return []models.ReservationStatus{
		models.ReservationStatusPending,
		models.ReservationStatusConfirmed,
	}
}

func loadReservation(tx *gorm.DB, reservationID uuid.UUID, out *models.Reservation) error {
	if err := tx.First(out, "id = ?", reservationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: reservation does not exist", apperrors.ErrNotFound)
		}
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

func updateReservationStatus(tx *gorm.DB, reservation *models.Reservation, next models.ReservationStatus) error {
	if err := tx.Model(reservation).Update("status", next).Error; err != nil {
		return fmt.Errorf("failed to update reservation status: %w", err)
	}
	reservation.Status = next
	return nil
}
