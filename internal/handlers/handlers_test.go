// internal/handlers/handlers_test.go
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/unimarket/unimarket-backend/internal/middleware"
	"github.com/unimarket/unimarket-backend/internal/models"
	"github.com/unimarket/unimarket-backend/internal/services"
	"github.com/unimarket/unimarket-backend/internal/utils"
)

type HandlerTestSuite struct {
	suite.Suite
	db     *gorm.DB
	router *gin.Engine

	sellerToken string
	buyerToken  string
}

var handlerDBSeq int

func (suite *HandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret")

	handlerDBSeq++
	dsn := fmt.Sprintf("file:handlerdb%d?mode=memory&cache=shared", handlerDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	suite.Require().NoError(err)
	suite.Require().NoError(db.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.Reservation{},
		&models.Order{},
		&models.OrderItem{},
	))
	suite.db = db

	authService := services.NewAuthService(db, 24, 168)
	listingService := services.NewListingService(db, nil)
	reservationService := services.NewReservationService(db, listingService, nil)
	orderService := services.NewOrderService(db, listingService, reservationService, nil)

	authHandler := NewAuthHandler(authService)
	listingHandler := NewListingHandler(listingService)
	reservationHandler := NewReservationHandler(reservationService)
	orderHandler := NewOrderHandler(orderService)

	r := gin.New()
	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		listings := v1.Group("/listings")
		{
			listings.GET("", listingHandler.SearchListings)
			listings.GET("/:id", listingHandler.GetListing)
			listings.POST("", middleware.AuthRequired(), listingHandler.CreateListing)
		}

		reservations := v1.Group("/reservations")
		reservations.Use(middleware.AuthRequired())
		{
			reservations.POST("", reservationHandler.CreateReservation)
			reservations.GET("/mine", reservationHandler.GetMyReservations)
		}

		orders := v1.Group("/orders")
		orders.Use(middleware.AuthRequired())
		{
			orders.POST("", orderHandler.CreateOrder)
		}
	}
	suite.router = r

	suite.sellerToken = suite.registerUser("seller_1", "seller@campus.edu")
	suite.buyerToken = suite.registerUser("buyer_1", "buyer@campus.edu")
}

func (suite *HandlerTestSuite) registerUser(username, email string) string {
	body := map[string]interface{}{
		"username": username,
		"email":    email,
		"password": "Str0ngPass",
		"campus":   "north",
	}
	w := suite.request("POST", "/v1/auth/register", body, "")
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data.Token
}

func (suite *HandlerTestSuite) request(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		suite.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}

	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *HandlerTestSuite) createListing(token string) string {
	w := suite.request("POST", "/v1/listings", map[string]interface{}{
		"title":       "Desk lamp with USB port",
		"description": "Adjustable arm, warm and cool light modes",
		"category":    "furniture",
		"campus":      "north",
		"price":       1500,
	}, token)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data.ID
}

func (suite *HandlerTestSuite) TestAuthFlow() {
	w := suite.request("POST", "/v1/auth/login", map[string]interface{}{
		"email":    "buyer@campus.edu",
		"password": "Str0ngPass",
	}, "")
	assert.Equal(suite.T(), http.StatusOK, w.Code)

	w = suite.request("GET", "/v1/auth/me", nil, suite.buyerToken)
	assert.Equal(suite.T(), http.StatusOK, w.Code)

	w = suite.request("GET", "/v1/auth/me", nil, "")
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
}

func (suite *HandlerTestSuite) TestLoginBadPassword() {
	w := suite.request("POST", "/v1/auth/login", map[string]interface{}{
		"email":    "buyer@campus.edu",
		"password": "WrongPass1",
	}, "")
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)
}

func (suite *HandlerTestSuite) TestReservationConflictStatus() {
	listingID := suite.createListing(suite.sellerToken)

	w := suite.request("POST", "/v1/reservations", map[string]interface{}{
		"listing_id": listingID,
	}, suite.buyerToken)
	assert.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())

	// The seller reserving their own listing is forbidden
	w = suite.request("POST", "/v1/reservations", map[string]interface{}{
		"listing_id": listingID,
	}, suite.sellerToken)
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)

	// A second buyer loses with 409
	thirdToken := suite.registerUser("buyer_2", "buyer2@campus.edu")
	w = suite.request("POST", "/v1/reservations", map[string]interface{}{
		"listing_id": listingID,
	}, thirdToken)
	assert.Equal(suite.T(), http.StatusConflict, w.Code)

	var resp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(suite.T(), resp.Error.Message)
}

func (suite *HandlerTestSuite) TestOrderTotalMismatchStatus() {
	listingID := suite.createListing(suite.sellerToken)

	w := suite.request("POST", "/v1/orders", map[string]interface{}{
		"items": []map[string]interface{}{
			{"listing_id": listingID, "quantity": 1, "unit_price": 1500},
		},
		"total":          9999,
		"payment_method": "cash",
	}, suite.buyerToken)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

func (suite *HandlerTestSuite) TestOrderHappyPath() {
	listingID := suite.createListing(suite.sellerToken)

	w := suite.request("POST", "/v1/orders", map[string]interface{}{
		"items": []map[string]interface{}{
			{"listing_id": listingID, "quantity": 1, "unit_price": 1500},
		},
		"total":          1500,
		"payment_method": "cash",
	}, suite.buyerToken)
	assert.Equal(suite.T(), http.StatusCreated, w.Code, w.Body.String())

	// The listing now reads as sold
	w = suite.request("GET", "/v1/listings/"+listingID, nil, "")
	assert.Equal(suite.T(), http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(suite.T(), "sold", resp.Data.Status)
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}
