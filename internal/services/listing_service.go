// internal/services/listing_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/unimarket/unimarket-backend/internal/apperrors"
	"github.com/unimarket/unimarket-backend/internal/cache"
	"github.com/unimarket/unimarket-backend/internal/models"
	"github.com/unimarket/unimarket-backend/internal/utils"
)

// ListingCacheStore is the read-through cache the listing service talks
// to. *cache.ListingCache satisfies it; tests substitute a recording
// implementation.
type ListingCacheStore interface {
	GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	SetListing(ctx context.Context, listing *models.Listing)
	InvalidateListing(ctx context.Context, id uuid.UUID)
}

// ListingService is the single source of truth for a listing's
// availability status. Everything else on a listing is plain CRUD;
// status only moves through TransitionStatus.
type ListingService struct {
	db    *gorm.DB
	cache ListingCacheStore
}

type CreateListingRequest struct {
	Title       string   `json:"title" validate:"required,min=3,max=255"`
	Description string   `json:"description" validate:"required,min=10"`
	Category    string   `json:"category" validate:"required"`
	Campus      string   `json:"campus" validate:"required"`
	Price       int64    `json:"price" validate:"min=0"`
	Images      []string `json:"images,omitempty"`
}

type UpdateListingRequest struct {
	Title       string   `json:"title,omitempty" validate:"omitempty,min=3,max=255"`
	Description string   `json:"description,omitempty" validate:"omitempty,min=10"`
	Category    string   `json:"category,omitempty"`
	Campus      string   `json:"campus,omitempty"`
	Price       *int64   `json:"price,omitempty"`
	Images      []string `json:"images,omitempty"`
}

type ListingSearchParams struct {
	utils.PaginationParams
	SellerID *uuid.UUID            `json:"seller_id,omitempty"`
	Status   *models.ListingStatus `json:"status,omitempty"`
	Campus   string                `json:"campus,omitempty"`
	PriceMin *int64                `json:"price_min,omitempty"`
	PriceMax *int64                `json:"price_max,omitempty"`
}

func NewListingService(db *gorm.DB, listingCache ListingCacheStore) *ListingService {
	if listingCache == nil {
		listingCache = (*cache.ListingCache)(nil)
	}
	return &ListingService{
		db:    db,
		cache: listingCache,
	}
}

func (s *ListingService) CreateListing(sellerID uuid.UUID, req *CreateListingRequest) (*models.Listing, error) {
	// Validate request
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}

	// Verify seller exists and is active
	var seller models.User
	if err := s.db.First(&seller, "id = ?", sellerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: seller does not exist", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if seller.Status != models.UserStatusActive {
		return nil, fmt.Errorf("%w: account is not active", apperrors.ErrForbidden)
	}

	listing := &models.Listing{
		SellerID:    sellerID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Campus:      req.Campus,
		Price:       req.Price,
		Images:      pq.StringArray(req.Images),
		Status:      models.ListingStatusAvailable,
	}

	if err := s.db.Create(listing).Error; err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	s.db.Preload("Seller").First(listing, "id = ?", listing.ID)

	return listing, nil
}

func (s *ListingService) GetListing(id uuid.UUID) (*models.Listing, error) {
	ctx := context.Background()

	if cached, err := s.cache.GetListing(ctx, id); err == nil && cached != nil {
		return cached, nil
	}

	var listing models.Listing
	if err := s.db.Preload("Seller").First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: listing does not exist", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	s.cache.SetListing(ctx, &listing)

	return &listing, nil
}

func (s *ListingService) SearchListings(params ListingSearchParams) ([]models.Listing, int64, error) {
	query := s.db.Model(&models.Listing{}).Preload("Seller")

	// Apply filters
	if params.SellerID != nil {
		query = query.Where("seller_id = ?", *params.SellerID)
	}

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	} else {
		// Default to browsable listings only
		query = query.Where("status IN ?", []models.ListingStatus{
			models.ListingStatusAvailable,
			models.ListingStatusReserved,
		})
	}

	if params.Category != "" {
		query = query.Where("category = ?", params.Category)
	}

	if params.Campus != "" {
		query = query.Where("campus = ?", params.Campus)
	}

	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	if params.PriceMin != nil {
		query = query.Where("price >= ?", *params.PriceMin)
	}

	if params.PriceMax != nil {
		query = query.Where("price <= ?", *params.PriceMax)
	}

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count listings: %w", err)
	}

	// Apply sorting and pagination
	allowedSortFields := []string{"created_at", "updated_at", "title", "price"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)

	var listings []models.Listing
	if err := query.Find(&listings).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch listings: %w", err)
	}

	return listings, total, nil
}

func (s *ListingService) GetSellerListings(sellerID uuid.UUID, params utils.PaginationParams) ([]models.Listing, int64, error) {
	query := s.db.Model(&models.Listing{}).Where("seller_id = ?", sellerID)

	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count seller listings: %w", err)
	}

	allowedSortFields := []string{"created_at", "updated_at", "title", "price", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var listings []models.Listing
	if err := query.Find(&listings).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch seller listings: %w", err)
	}

	return listings, total, nil
}

func (s *ListingService) UpdateListing(id uuid.UUID, sellerID uuid.UUID, req *UpdateListingRequest) (*models.Listing, error) {
	// Validate request
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrBadRequest, err)
	}

	// Find and verify ownership
	var listing models.Listing
	if err := s.db.First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: listing does not exist", apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if listing.SellerID != sellerID {
		return nil, fmt.Errorf("%w: you do not own this listing", apperrors.ErrForbidden)
	}

	// Prepare updates. Status is deliberately absent here, it only moves
	// through TransitionStatus.
	updates := make(map[string]interface{})
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Description != "" {
		updates["description"] = req.Description
	}
	if req.Category != "" {
		updates["category"] = req.Category
	}
	if req.Campus != "" {
		updates["campus"] = req.Campus
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, fmt.Errorf("%w: price cannot be negative", apperrors.ErrBadRequest)
		}
		updates["price"] = *req.Price
	}
	if req.Images != nil {
		updates["images"] = pq.StringArray(req.Images)
	}

	if len(updates) > 0 {
		if err := s.db.Model(&listing).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update listing: %w", err)
		}
	}

	s.cache.InvalidateListing(context.Background(), id)

	s.db.Preload("Seller").First(&listing, "id = ?", id)

	return &listing, nil
}

func (s *ListingService) DeleteListing(id uuid.UUID, sellerID uuid.UUID) error {
	var listing models.Listing
	if err := s.db.First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: listing does not exist", apperrors.ErrNotFound)
		}
		return fmt.Errorf("database error: %w", err)
	}

	if listing.SellerID != sellerID {
		return fmt.Errorf("%w: you do not own this listing", apperrors.ErrForbidden)
	}

	switch listing.Status {
	case models.ListingStatusReserved:
		return fmt.Errorf("%w: listing has an active reservation", apperrors.ErrConflict)
	case models.ListingStatusSold:
		return fmt.Errorf("%w: listing has already been sold", apperrors.ErrConflict)
	}

	// Soft delete
	if err := s.db.Delete(&listing).Error; err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}

	s.cache.InvalidateListing(context.Background(), id)

	return nil
}

// DeactivateListing soft-removes a listing from the marketplace without
// deleting the row. Only an available listing can be deactivated.
func (s *ListingService) DeactivateListing(id uuid.UUID, sellerID uuid.UUID) error {
	var listing models.Listing
	if err := s.db.First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: listing does not exist", apperrors.ErrNotFound)
		}
		return fmt.Errorf("database error: %w", err)
	}

	if listing.SellerID != sellerID {
		return fmt.Errorf("%w: you do not own this listing", apperrors.ErrForbidden)
	}

	if err := s.TransitionStatus(s.db, id, models.ListingStatusAvailable, models.ListingStatusInactive); err != nil {
		return err
	}

	s.InvalidateCached(id)

	return nil
}

// ReactivateListing puts an inactive listing back on the marketplace.
func (s *ListingService) ReactivateListing(id uuid.UUID, sellerID uuid.UUID) error {
	var listing models.Listing
	if err := s.db.First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: listing does not exist", apperrors.ErrNotFound)
		}
		return fmt.Errorf("database error: %w", err)
	}

	if listing.SellerID != sellerID {
		return fmt.Errorf("%w: you do not own this listing", apperrors.ErrForbidden)
	}

	if err := s.TransitionStatus(s.db, id, models.ListingStatusInactive, models.ListingStatusAvailable); err != nil {
		return err
	}

	s.InvalidateCached(id)

	return nil
}

// InvalidateCached drops the given listings from the cache. Flows that
// move status inside a transaction call this after the transaction
// commits; dropping the key earlier would let a concurrent read re-cache
// the pre-commit status.
func (s *ListingService) InvalidateCached(ids ...uuid.UUID) {
	ctx := context.Background()
	for _, id := range ids {
		s.cache.InvalidateListing(ctx, id)
	}
}

// TransitionStatus moves a listing from expected to next in a single
// conditional UPDATE. It succeeds only if the stored status still equals
// expected at mutation time; a losing concurrent writer gets Conflict and
// must surface it, never retry blindly. This is the primitive that
// serializes competing reservation and checkout attempts on one listing.
// Pass the enclosing transaction as tx so the write shares its atomicity.
// Cache invalidation is the caller's job, after commit.
func (s *ListingService) TransitionStatus(tx *gorm.DB, listingID uuid.UUID, expected, next models.ListingStatus) error {
	result := tx.Model(&models.Listing{}).
		Where("id = ? AND status = ?", listingID, expected).
		Update("status", next)

	if result.Error != nil {
		return fmt.Errorf("failed to transition listing status: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Distinguish a missing listing from a lost race
		var count int64
		if err := tx.Model(&models.Listing{}).Where("id = ?", listingID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check listing: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("%w: listing does not exist", apperrors.ErrNotFound)
		}
		return fmt.Errorf("%w: listing is no longer %s", apperrors.ErrConflict, expected)
	}

	return nil
}
