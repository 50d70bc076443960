// internal/cache/listing_cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/unimarket/unimarket-backend/internal/models"
)

// ListingCache is a read-through cache for single-listing lookups. A nil
// *ListingCache is valid: every method degrades to a no-op, so callers
// never need to branch on whether Redis is configured.
type ListingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewListingCache connects to Redis and returns the cache, or nil when
// addr is empty or the server is unreachable. The service runs fine
// without it, reads just go to Postgres.
func NewListingCache(addr, password string, db int, ttl time.Duration) *ListingCache {
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logrus.WithError(err).Warn("Redis unavailable, listing cache disabled")
		return nil
	}

	logrus.WithField("addr", addr).Info("Listing cache connected")

	return &ListingCache{
		client: client,
		ttl:    ttl,
	}
}

func listingKey(id uuid.UUID) string {
	return fmt.Sprintf("listing:%s", id)
}

// GetListing returns the cached listing, or (nil, nil) on a miss.
func (c *ListingCache) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	if c == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, listingKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get failed: %w", err)
	}

	var listing models.Listing
	if err := json.Unmarshal(data, &listing); err != nil {
		// A corrupt entry behaves like a miss
		c.client.Del(ctx, listingKey(id))
		return nil, nil
	}

	return &listing, nil
}

func (c *ListingCache) SetListing(ctx context.Context, listing *models.Listing) {
	if c == nil || listing == nil {
		return
	}

	data, err := json.Marshal(listing)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, listingKey(listing.ID), data, c.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("listing_id", listing.ID).Debug("cache set failed")
	}
}

func (c *ListingCache) InvalidateListing(ctx context.Context, id uuid.UUID) {
	if c == nil {
		return
	}

	if err := c.client.Del(ctx, listingKey(id)).Err(); err != nil {
		logrus.WithError(err).WithField("listing_id", id).Debug("cache invalidation failed")
	}
}

func (c *ListingCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
