package server

import (
	"net/http"

	"auction-backend/internal/metrics"
	authhandler "auction-backend/services/auth/handler"
	biddinghandler "auction-backend/services/bidding/handler"
	listinghandler "auction-backend/services/listing/handler"
	"auction-backend/utils"

	"github.com/gin-gonic/gin"
)

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Bidding       biddinghandler.BiddingServiceInterface
	Listings      listinghandler.ListingServiceInterface
	Auth          authhandler.AuthServiceInterface
	Authenticator Authenticator
	Metrics       *metrics.Metrics
	// RateLimitRPS <= 0 disables rate limiting on login and bid placement.
	RateLimitRPS   float64
	RateLimitBurst int
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Deps) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	router.Use(deps.Metrics.Middleware())

	router.GET("/health", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"status": "ok"}, "service healthy")
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	biddingHandler := biddinghandler.NewBiddingHandler(deps.Bidding)
	listingHandler := listinghandler.NewListingHandler(deps.Listings)
	authHandler := authhandler.NewAuthHandler(deps.Auth)

	limiter := NewRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst)
	authRequired := RequireAuth(deps.Authenticator)

	api := router.Group("/api")
	{
		api.POST("/register", authHandler.RegisterHandler)
		api.POST("/login", limiter.Middleware(), authHandler.LoginHandler)
		api.GET("/profile", authRequired, authHandler.GetProfileHandler)
		api.PUT("/profile", authRequired, authHandler.UpdateProfileHandler)
	}

	items := api.Group("/items")
	{
		items.GET("", listingHandler.ListActiveListingsHandler)
		items.POST("", authRequired, listingHandler.CreateListingHandler)
		items.GET("/:item_id", listingHandler.GetListingHandler)
		items.POST("/:item_id/close", authRequired, listingHandler.CloseListingHandler)
		items.POST("/:item_id/bid", authRequired, limiter.Middleware(), biddingHandler.PlaceBidHandler)
		items.GET("/:item_id/bids", biddingHandler.GetBidsByListingHandler)
		items.GET("/:item_id/winning", biddingHandler.GetWinningBidHandler)
	}

	users := api.Group("/users")
	{
		users.GET("/:user_id/items", biddingHandler.GetListingsByBidderHandler)
	}

	admin := api.Group("/admin")
	{
		admin.POST("/register", authHandler.RegisterAdminHandler)
		admin.POST("/login", limiter.Middleware(), authHandler.AdminLoginHandler)
		admin.GET("/items", authRequired, RequireAdmin, listingHandler.ListAllListingsHandler)
		admin.GET("/bids", authRequired, RequireAdmin, listingHandler.ListAllBidsHandler)
	}

	return router
}
