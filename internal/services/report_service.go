// internal/services/report_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/unimarket/unimarket-backend/internal/apperrors"
	"github.com/unimarket/unimarket-backend/internal/models"
	"github.com/unimarket/unimarket-backend/internal/utils"
)

// ReportService handles listing reports and their moderation queue.
// Reports never touch listing availability; a flagged listing stays on
// the market until a moderator deactivates it through the listing
// service.
type ReportService struct {
	db *gorm.DB
}

type CreateReportRequest struct {
	ListingID   uuid.UUID `json:"listing_id" validate:"required"`
	Reason      string    `json:"reason" validate:"required,max=100"`
	Description string    `json:"description,omitempty"`
}

func NewReportService(db *gorm.DB) *ReportService {
	return &ReportService{db: db}
}

func (s *ReportService) CreateReport(reporterID uuid.UUID, req *CreateReportRequest) (*models.Report, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}

	var count int64
	if err := s.db.Model(&models.Listing{}).Where("id = ?", req.ListingID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: listing does not exist", apperrors.ErrNotFound)
	}

	report := &models.Report{
		ListingID:   req.ListingID,
		ReporterID:  reporterID,
		Reason:      req.Reason,
		Description: req.Description,
		Status:      models.ReportStatusPending,
	}
	if err := s.db.Create(report).Error; err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	s.db.Preload("Listing").First(report, "id = ?", report.ID)

	return report, nil
}

// ListReports returns the moderation queue, newest first, optionally
// filtered by state.
func (s *ReportService) ListReports(status *models.ReportStatus) ([]models.Report, error) {
	query := s.db.Model(&models.Report{}).
		Preload("Listing").Preload("Reporter")

	if status != nil {
		if !status.IsValid() {
			return nil, fmt.Errorf("%w: unknown report status %q", apperrors.ErrBadRequest, *status)
		}
		query = query.Where("status = ?", *status)
	}

	var reports []models.Report
	if err := query.Order("created_at DESC").Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch reports: %w", err)
	}

	return reports, nil
}

func (s *ReportService) UpdateReportStatus(reportID uuid.UUID, status models.ReportStatus) (*models.Report, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown report status %q", apperrors.ErrBadRequest, status)
	}

	var report models.Report
	if err := s.db.First(&report, "id = ?", reportID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: report does not exist", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := s.db.Model(&report).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("failed to update report: %w", err)
	}
	report.Status = status

	return &report, nil
}

func (s *ReportService) DeleteReport(reportID uuid.UUID) error {
	result := s.db.Delete(&models.Report{}, "id = ?", reportID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete report: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: report does not exist", apperrors.ErrNotFound)
	}
	return nil
}
