// internal/handlers/report.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/unimarket/unimarket-backend/internal/models"
	"github.com/unimarket/unimarket-backend/internal/services"
	"github.com/unimarket/unimarket-backend/internal/utils"
)

type ReportHandler struct {
	reportService *services.ReportService
}

func NewReportHandler(reportService *services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

func (h *ReportHandler) CreateReport(c *gin.Context) {
	reporterID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	report, err := h.reportService.CreateReport(reporterID, &req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, report)
}

func (h *ReportHandler) ListReports(c *gin.Context) {
	var status *models.ReportStatus
	if raw := c.Query("status"); raw != "" {
		s := models.ReportStatus(raw)
		status = &s
	}

	reports, err := h.reportService.ListReports(status)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, reports)
}

func (h *ReportHandler) UpdateReportStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid report ID", nil)
		return
	}

	var req struct {
		Status models.ReportStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	report, err := h.reportService.UpdateReportStatus(id, req.Status)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, report)
}

func (h *ReportHandler) DeleteReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid report ID", nil)
		return
	}

	if err := h.reportService.DeleteReport(id); err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": "Report deleted"})
}
