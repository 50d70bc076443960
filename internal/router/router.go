// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/unimarket/unimarket-backend/internal/cache"
	"github.com/unimarket/unimarket-backend/internal/config"
	"github.com/unimarket/unimarket-backend/internal/events"
	"github.com/unimarket/unimarket-backend/internal/handlers"
	"github.com/unimarket/unimarket-backend/internal/middleware"
	"github.com/unimarket/unimarket-backend/internal/services"
	"github.com/unimarket/unimarket-backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config) *gin.Engine {
	// Infrastructure, both degrade gracefully when unconfigured
	listingCache := cache.NewListingCache(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB,
		time.Duration(cfg.Redis.CacheTTL)*time.Second)

	var emitter events.Emitter = events.NopEmitter{}
	if cfg.Broker.URL != "" {
		notificationService, err := services.NewNotificationService(cfg.Broker.URL, cfg.Broker.Exchange)
		if err != nil {
			logrus.WithError(err).Warn("Broker unavailable, notifications disabled")
		} else {
			emitter = notificationService
		}
	}

	// Services
	authService := services.NewAuthService(db, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	listingService := services.NewListingService(db, listingCache)
	reservationService := services.NewReservationService(db, listingService, emitter)
	orderService := services.NewOrderService(db, listingService, reservationService, emitter)
	reportService := services.NewReportService(db)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	listingHandler := handlers.NewListingHandler(listingService)
	reservationHandler := handlers.NewReservationHandler(reservationService)
	orderHandler := handlers.NewOrderHandler(orderService)
	reportHandler := handlers.NewReportHandler(reportService)

	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Frontend.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-Total-Count", "X-Page", "X-Per-Page", "X-Total-Pages"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	generalLimiter := middleware.NewRateLimiter(rate.Limit(10), 30)
	authLimiter := middleware.NewRateLimiter(rate.Limit(1), 5)
	r.Use(generalLimiter.Middleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(authLimiter.Middleware())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		// Listing routes
		listings := v1.Group("/listings")
		{
			listings.GET("", middleware.OptionalAuth(), listingHandler.SearchListings)
			listings.GET("/mine", middleware.AuthRequired(), listingHandler.GetMyListings)
			listings.GET("/:id", middleware.OptionalAuth(), listingHandler.GetListing)

			protected := listings.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("", listingHandler.CreateListing)
				protected.PUT("/:id", listingHandler.UpdateListing)
				protected.DELETE("/:id", listingHandler.DeleteListing)
				protected.PUT("/:id/deactivate", listingHandler.DeactivateListing)
				protected.PUT("/:id/reactivate", listingHandler.ReactivateListing)
			}
		}

		// Reservation routes
		reservations := v1.Group("/reservations")
		reservations.Use(middleware.AuthRequired())
		{
			reservations.POST("", reservationHandler.CreateReservation)
			reservations.GET("/mine", reservationHandler.GetMyReservations)
			reservations.GET("/pending", reservationHandler.GetPendingReservations)
			reservations.PUT("/:id/accept", reservationHandler.AcceptReservation)
			reservations.PUT("/:id/reject", reservationHandler.RejectReservation)
			reservations.DELETE("/:id", reservationHandler.CancelReservation)
		}

		// Order routes
		orders := v1.Group("/orders")
		orders.Use(middleware.AuthRequired())
		{
			orders.POST("", orderHandler.CreateOrder)
			orders.GET("", orderHandler.GetMyOrders)
			orders.GET("/:id", orderHandler.GetOrder)
			orders.PUT("/:id/cancel", orderHandler.CancelOrder)
			orders.PUT("/:id/confirm", orderHandler.ConfirmOrder)
		}

		// Report routes
		reports := v1.Group("/reports")
		reports.Use(middleware.AuthRequired())
		{
			reports.POST("", reportHandler.CreateReport)
			reports.GET("", reportHandler.ListReports)
			reports.PUT("/:id", reportHandler.UpdateReportStatus)
			reports.DELETE("/:id", reportHandler.DeleteReport)
		}
	}

	return r
}
