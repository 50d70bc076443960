// internal/handlers/listing.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/unimarket/unimarket-backend/internal/models"
	"github.com/unimarket/unimarket-backend/internal/services"
	"github.com/unimarket/unimarket-backend/internal/utils"
)

type ListingHandler struct {
	listingService *services.ListingService
}

func NewListingHandler(listingService *services.ListingService) *ListingHandler {
	return &ListingHandler{listingService: listingService}
}

func (h *ListingHandler) CreateListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	listing, err := h.listingService.CreateListing(sellerID, &req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, listing)
}

func (h *ListingHandler) GetListing(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid listing ID", nil)
		return
	}

	listing, err := h.listingService.GetListing(id)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, listing)
}

func (h *ListingHandler) SearchListings(c *gin.Context) {
	params := services.ListingSearchParams{
		PaginationParams: utils.GetPaginationParams(c),
	}

	if sellerID := c.Query("seller_id"); sellerID != "" {
		id, err := uuid.Parse(sellerID)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid seller ID", nil)
			return
		}
		params.SellerID = &id
	}

	if status := c.Query("status"); status != "" {
		s := models.ListingStatus(status)
		params.Status = &s
	}

	params.Campus = c.Query("campus")

	if priceMin := c.Query("price_min"); priceMin != "" {
		v, err := strconv.ParseInt(priceMin, 10, 64)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid price_min", nil)
			return
		}
		params.PriceMin = &v
	}

	if priceMax := c.Query("price_max"); priceMax != "" {
		v, err := strconv.ParseInt(priceMax, 10, 64)
		if err != nil {
			utils.BadRequestResponse(c, "Invalid price_max", nil)
			return
		}
		params.PriceMax = &v
	}

	listings, total, err := h.listingService.SearchListings(params)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	result := utils.CreatePaginationResult(listings, total, params.PaginationParams)
	utils.PaginatedResponse(c, result)
}

func (h *ListingHandler) GetMyListings(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)

	listings, total, err := h.listingService.GetSellerListings(sellerID, params)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	result := utils.CreatePaginationResult(listings, total, params)
	utils.PaginatedResponse(c, result)
}

func (h *ListingHandler) UpdateListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid listing ID", nil)
		return
	}

	var req services.UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", nil)
		return
	}

	listing, err := h.listingService.UpdateListing(id, sellerID, &req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, listing)
}

func (h *ListingHandler) DeleteListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid listing ID", nil)
		return
	}

	if err := h.listingService.DeleteListing(id, sellerID); err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": "Listing deleted"})
}

func (h *ListingHandler) DeactivateListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid listing ID", nil)
		return
	}

	if err := h.listingService.DeactivateListing(id, sellerID); err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": "Listing deactivated"})
}

func (h *ListingHandler) ReactivateListing(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid listing ID", nil)
		return
	}

	if err := h.listingService.ReactivateListing(id, sellerID); err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message": "Listing reactivated"})
}
