// internal/services/report_service_test.go
package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/unimarket/unimarket-backend/internal/apperrors"
	"github.com/unimarket/unimarket-backend/internal/models"
)

type ReportServiceTestSuite struct {
	suite.Suite
	db  *gorm.DB
	svc *ReportService

	seller   *models.User
	reporter *models.User
	listing  *models.Listing
}

func (s *ReportServiceTestSuite) SetupTest() {
	s.db = newTestDB(s.T())
	s.svc = NewReportService(s.db)

	s.seller = createTestUser(s.T(), s.db, "north")
	s.reporter = createTestUser(s.T(), s.db, "north")
	s.listing = createTestListing(s.T(), s.db, s.seller.ID, 2500, models.ListingStatusAvailable)
}

func (s *ReportServiceTestSuite) TestCreateReport() {
	report, err := s.svc.CreateReport(s.reporter.ID, &CreateReportRequest{
		ListingID:   s.listing.ID,
		Reason:      "prohibited item",
		Description: "Textbook is a photocopied edition",
	})
	s.Require().NoError(err)
	s.Equal(models.ReportStatusPending, report.Status)
	s.Equal(s.reporter.ID, report.ReporterID)

	// Reporting never touches the listing
	var stored models.Listing
	s.Require().NoError(s.db.First(&stored, "id = ?", s.listing.ID).Error)
	s.Equal(models.ListingStatusAvailable, stored.Status)
}

func (s *ReportServiceTestSuite) TestCreateReportMissingListing() {
	_, err := s.svc.CreateReport(s.reporter.ID, &CreateReportRequest{
		ListingID: s.reporter.ID,
		Reason:    "scam",
	})
	s.True(errors.Is(err, apperrors.ErrNotFound))
}

func (s *ReportServiceTestSuite) TestCreateReportMissingReason() {
	_, err := s.svc.CreateReport(s.reporter.ID, &CreateReportRequest{
		ListingID: s.listing.ID,
	})
	s.True(errors.Is(err, apperrors.ErrBadRequest))
}

func (s *ReportServiceTestSuite) TestListReportsByStatus() {
	first, err := s.svc.CreateReport(s.reporter.ID, &CreateReportRequest{
		ListingID: s.listing.ID,
		Reason:    "scam",
	})
	s.Require().NoError(err)
	_, err = s.svc.CreateReport(s.reporter.ID, &CreateReportRequest{
		ListingID: s.listing.ID,
		Reason:    "wrong category",
	})
	s.Require().NoError(err)

	_, err = s.svc.UpdateReportStatus(first.ID, models.ReportStatusResolved)
	s.Require().NoError(err)

	all, err := s.svc.ListReports(nil)
	s.Require().NoError(err)
	s.Len(all, 2)

	pending := models.ReportStatusPending
	queue, err := s.svc.ListReports(&pending)
	s.Require().NoError(err)
	s.Len(queue, 1)
	s.Equal("wrong category", queue[0].Reason)
}

func (s *ReportServiceTestSuite) TestListReportsBadStatus() {
	bad := models.ReportStatus("open")
	_, err := s.svc.ListReports(&bad)
	s.True(errors.Is(err, apperrors.ErrBadRequest))
}

func (s *ReportServiceTestSuite) TestUpdateReportStatus() {
	report, err := s.svc.CreateReport(s.reporter.ID, &CreateReportRequest{
		ListingID: s.listing.ID,
		Reason:    "scam",
	})
	s.Require().NoError(err)

	updated, err := s.svc.UpdateReportStatus(report.ID, models.ReportStatusReviewed)
	s.Require().NoError(err)
	s.Equal(models.ReportStatusReviewed, updated.Status)

	_, err = s.svc.UpdateReportStatus(report.ID, models.ReportStatus("open"))
	s.True(errors.Is(err, apperrors.ErrBadRequest))

	_, err = s.svc.UpdateReportStatus(s.reporter.ID, models.ReportStatusResolved)
	s.True(errors.Is(err, apperrors.ErrNotFound))
}

func (s *ReportServiceTestSuite) TestDeleteReport() {
	report, err := s.svc.CreateReport(s.reporter.ID, &CreateReportRequest{
		ListingID: s.listing.ID,
		Reason:    "scam",
	})
	s.Require().NoError(err)

	s.Require().NoError(s.svc.DeleteReport(report.ID))
	s.True(errors.Is(s.svc.DeleteReport(report.ID), apperrors.ErrNotFound))
}

func TestReportServiceSuite(t *testing.T) {
	suite.Run(t, new(ReportServiceTestSuite))
}
