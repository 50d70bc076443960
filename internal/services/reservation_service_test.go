// internal/services/reservation_service_test.go
package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/unimarket/unimarket-backend/internal/apperrors"
	"github.com/unimarket/unimarket-backend/internal/events"
	"github.com/unimarket/unimarket-backend/internal/models"
)

type ReservationServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	emitter *recordingEmitter
	svc     *ReservationService

	seller *models.User
	buyer  *models.User
}

func (s *ReservationServiceTestSuite) SetupTest() {
	s.db = newTestDB(s.T())
	s.emitter = &recordingEmitter{}
	listingService := NewListingService(s.db, nil)
	s.svc = NewReservationService(s.db, listingService, s.emitter)

	s.seller = createTestUser(s.T(), s.db, "north")
	s.buyer = createTestUser(s.T(), s.db, "north")
}

func (s *ReservationServiceTestSuite) TestCreateReservation() {
	listing := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)

	reservation, err := s.svc.CreateReservation(context.Background(), listing.ID, s.buyer.ID)
	s.Require().NoError(err)
	s.Equal(models.ReservationStatusPending, reservation.Status)
	s.Equal(s.seller.ID, reservation.SellerID)

	var stored models.Listing
	s.Require().NoError(s.db.First(&stored, "id = ?", listing.ID).Error)
	s.Equal(models.ListingStatusReserved, stored.Status)

	s.Equal([]string{events.ReservationCreated}, s.emitter.names())
}

func (s *ReservationServiceTestSuite) TestCreateReservationSelfDealing() {
	listing := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)

	_, err := s.svc.CreateReservation(context.Background(), listing.ID, s.seller.ID)
	s.True(errors.Is(err, apperrors.ErrForbidden))

	// The listing stays untouched
	var stored models.Listing
	s.Require().NoError(s.db.First(&stored, "id = ?", listing.ID).Error)
	s.Equal(models.ListingStatusAvailable, stored.Status)
	s.Empty(s.emitter.names())
}

func (s *ReservationServiceTestSuite) TestCreateReservationAlreadyReserved() {
	listing := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)
	otherBuyer := createTestUser(s.T(), s.db, "south")

	_, err := s.svc.CreateReservation(context.Background(), listing.ID, s.buyer.ID)
	s.Require().NoError(err)

	_, err = s.svc.CreateReservation(context.Background(), listing.ID, otherBuyer.ID)
	s.True(errors.Is(err, apperrors.ErrConflict))

	// Only the winner's reservation exists
	var count int64
	s.db.Model(&models.Reservation{}).Where("listing_id = ?", listing.ID).Count(&count)
	s.EqualValues(1, count)
}

func (s *ReservationServiceTestSuite) TestCreateReservationMissingListing() {
	_, err := s.svc.CreateReservation(context.Background(), s.buyer.ID, s.buyer.ID)
	s.True(errors.Is(err, apperrors.ErrNotFound))
}

func (s *ReservationServiceTestSuite) TestAcceptReservation() {
	listing := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)
	reservation, err := s.svc.CreateReservation(context.Background(), listing.ID, s.buyer.ID)
	s.Require().NoError(err)
	s.emitter.reset()

	accepted, err := s.svc.AcceptReservation(context.Background(), reservation.ID, s.seller.ID)
	s.Require().NoError(err)
	s.Equal(models.ReservationStatusConfirmed, accepted.Status)

	// The listing stays reserved
	var stored models.Listing
	s.Require().NoError(s.db.First(&stored, "id = ?", listing.ID).Error)
	s.Equal(models.ListingStatusReserved, stored.Status)

	s.Equal([]string{events.ReservationAccepted}, s.emitter.names())
}

func (s *ReservationServiceTestSuite) TestAcceptReservationWrongSeller() {
	listing := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)
	reservation, err := s.svc.CreateReservation(context.Background(), listing.ID, s.buyer.ID)
	s.Require().NoError(err)

	imposter := createTestUser(s.T(), s.db, "south")
	_, err = s.svc.AcceptReservation(context.Background(), reservation.ID, imposter.ID)
	s.True(errors.Is(err, apperrors.ErrForbidden))
}

func (s *ReservationServiceTestSuite) TestAcceptReservationNotPending() {
	listing := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)
	reservation, err := s.svc.CreateReservation(context.Background(), listing.ID, s.buyer.ID)
	s.Require().NoError(err)

	_, err = s.svc.AcceptReservation(context.Background(), reservation.ID, s.seller.ID)
	s.Require().NoError(err)

	_, err = s.svc.AcceptReservation(context.Background(), reservation.ID, s.seller.ID)
	s.True(errors.Is(err, apperrors.ErrConflict))
}

func (s *ReservationServiceTestSuite) TestRejectReservationReleasesListing() {
	listing := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)
	reservation, err := s.svc.CreateReservation(context.Background(), listing.ID, s.buyer.ID)
	s.Require().NoError(err)
	s.emitter.reset()

	rejected, err := s.svc.RejectReservation(context.Background(), reservation.ID, s.seller.ID)
	s.Require().NoError(err)
	s.Equal(models.ReservationStatusRejected, rejected.Status)

	var stored models.Listing
	s.Require().NoError(s.db.First(&stored, "id = ?", listing.ID).Error)
	s.Equal(models.ListingStatusAvailable, stored.Status)

	s.Equal([]string{events.ReservationRejected}, s.emitter.names())
}

func (s *ReservationServiceTestSuite) TestCancelReservationByBuyer() {
	listing := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)
	reservation, err := s.svc.CreateReservation(context.Background(), listing.ID, s.buyer.ID)
	s.Require().NoError(err)
	s.emitter.reset()

	cancelled, err := s.svc.CancelReservation(context.Background(), reservation.ID, s.buyer.ID)
	s.Require().NoError(err)
	s.Equal(models.ReservationStatusCancelled, cancelled.Status)

	var stored models.Listing
	s.Require().NoError(s.db.First(&stored, "id = ?", listing.ID).Error)
	s.Equal(models.ListingStatusAvailable, stored.Status)

	s.Equal([]string{events.ReservationCancelled}, s.emitter.names())
}

func (s *ReservationServiceTestSuite) TestCancelConfirmedReservation() {
	listing := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)
	reservation, err := s.svc.CreateReservation(context.Background(), listing.ID, s.buyer.ID)
	s.Require().NoError(err)
	_, err = s.svc.AcceptReservation(context.Background(), reservation.ID, s.seller.ID)
	s.Require().NoError(err)

	_, err = s.svc.CancelReservation(context.Background(), reservation.ID, s.buyer.ID)
	s.Require().NoError(err)

	var stored models.Listing
	s.Require().NoError(s.db.First(&stored, "id = ?", listing.ID).Error)
	s.Equal(models.ListingStatusAvailable, stored.Status)
}

func (s *ReservationServiceTestSuite) TestDoubleCancelConflicts() {
	listing := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)
	reservation, err := s.svc.CreateReservation(context.Background(), listing.ID, s.buyer.ID)
	s.Require().NoError(err)

	_, err = s.svc.CancelReservation(context.Background(), reservation.ID, s.buyer.ID)
	s.Require().NoError(err)

	// A second buyer takes the listing
	otherBuyer := createTestUser(s.T(), s.db, "south")
	_, err = s.svc.CreateReservation(context.Background(), listing.ID, otherBuyer.ID)
	s.Require().NoError(err)

	// The stale cancel must not release the new hold
	_, err = s.svc.CancelReservation(context.Background(), reservation.ID, s.buyer.ID)
	s.True(errors.Is(err, apperrors.ErrConflict))

	var stored models.Listing
	s.Require().NoError(s.db.First(&stored, "id = ?", listing.ID).Error)
	s.Equal(models.ListingStatusReserved, stored.Status)
}

func (s *ReservationServiceTestSuite) TestCancelByNonBuyer() {
	listing := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)
	reservation, err := s.svc.CreateReservation(context.Background(), listing.ID, s.buyer.ID)
	s.Require().NoError(err)

	_, err = s.svc.CancelReservation(context.Background(), reservation.ID, s.seller.ID)
	s.True(errors.Is(err, apperrors.ErrForbidden))
}

func (s *ReservationServiceTestSuite) TestCreateReservationInvalidatesCacheAfterCommit() {
	rc := &recordingCache{}
	listingService := NewListingService(s.db, rc)
	svc := NewReservationService(s.db, listingService, s.emitter)
	listing := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)

	// At invalidation time the new status must already be committed, so
	// any read racing the invalidation re-caches the reserved state,
	// never the stale available one.
	var statusAtInvalidation models.ListingStatus
	rc.onInvalidate = func(id uuid.UUID) {
		var stored models.Listing
		s.Require().NoError(s.db.First(&stored, "id = ?", id).Error)
		statusAtInvalidation = stored.Status
	}

	_, err := svc.CreateReservation(context.Background(), listing.ID, s.buyer.ID)
	s.Require().NoError(err)

	s.Equal([]uuid.UUID{listing.ID}, rc.invalidations())
	s.Equal(models.ListingStatusReserved, statusAtInvalidation)
}

func (s *ReservationServiceTestSuite) TestSellerPendingQueue() {
	listingA := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)
	listingB := createTestListing(s.T(), s.db, s.seller.ID, 4000, models.ListingStatusAvailable)

	resA, err := s.svc.CreateReservation(context.Background(), listingA.ID, s.buyer.ID)
	s.Require().NoError(err)
	_, err = s.svc.CreateReservation(context.Background(), listingB.ID, s.buyer.ID)
	s.Require().NoError(err)

	_, err = s.svc.AcceptReservation(context.Background(), resA.ID, s.seller.ID)
	s.Require().NoError(err)

	pending, err := s.svc.GetSellerPendingReservations(s.seller.ID)
	s.Require().NoError(err)
	s.Len(pending, 1)
	s.Equal(listingB.ID, pending[0].ListingID)
}

func (s *ReservationServiceTestSuite) TestBuyerReservationHistory() {
	listing := createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)
	_, err := s.svc.CreateReservation(context.Background(), listing.ID, s.buyer.ID)
	s.Require().NoError(err)

	mine, err := s.svc.GetBuyerReservations(s.buyer.ID)
	s.Require().NoError(err)
	s.Len(mine, 1)

	theirs, err := s.svc.GetBuyerReservations(s.seller.ID)
	s.Require().NoError(err)
	s.Empty(theirs)
}

func TestReservationServiceSuite(t *testing.T) {
	suite.Run(t, new(ReservationServiceTestSuite))
}
