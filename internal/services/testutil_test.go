// internal/services/testutil_test.go
package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/unimarket/unimarket-backend/internal/events"
	"github.com/unimarket/unimarket-backend/internal/models"
)

var testDBSeq int

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A named shared in-memory database keeps every pooled connection on
	// the same schema for the duration of one test.
	testDBSeq++
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", testDBSeq)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.Reservation{},
		&models.Order{},
		&models.OrderItem{},
		&models.Report{},
	))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

var userSeq int

func createTestUser(t *testing.T, db *gorm.DB, campus string) *models.User {
	t.Helper()

	userSeq++
	user := &models.User{
		Username: fmt.Sprintf("user%d", userSeq),
		Email:    fmt.Sprintf("user%d@campus.edu", userSeq),
		Campus:   campus,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, user.SetPassword("Passw0rdOk"))
	require.NoError(t, db.Create(user).Error)

	return user
}

func createTestListing(t *testing.T, db *gorm.DB, sellerID uuid.UUID, price int64, status models.ListingStatus) *models.Listing {
	t.Helper()

	listing := &models.Listing{
		SellerID:    sellerID,
		Title:       "Calculus textbook, 3rd edition",
		Description: "Barely used, includes solutions manual",
		Category:    "books",
		Campus:      "north",
		Price:       price,
		Status:      status,
	}
	require.NoError(t, db.Create(listing).Error)

	return listing
}

// recordingCache implements ListingCacheStore and records every
// invalidation, optionally running a hook at invalidation time.
type recordingCache struct {
	mu           sync.Mutex
	invalidated  []uuid.UUID
	onInvalidate func(id uuid.UUID)
}

func (r *recordingCache) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return nil, nil
}

func (r *recordingCache) SetListing(ctx context.Context, listing *models.Listing) {}

func (r *recordingCache) InvalidateListing(ctx context.Context, id uuid.UUID) {
	r.mu.Lock()
	r.invalidated = append(r.invalidated, id)
	hook := r.onInvalidate
	r.mu.Unlock()

	if hook != nil {
		hook(id)
	}
}

func (r *recordingCache) invalidations() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.invalidated...)
}

// recordingEmitter captures emitted events so tests can assert on them.
type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(ctx context.Context, event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}

func (r *recordingEmitter) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
