package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	auth "auction-backend/internal/authService"
	bidding "auction-backend/internal/biddingService"
	"auction-backend/internal/biddingerrors"
	"auction-backend/internal/clock"
	"auction-backend/internal/config"
	"auction-backend/internal/events"
	"auction-backend/internal/idempotency"
	listing "auction-backend/internal/listingService"
	"auction-backend/internal/metrics"
	"auction-backend/internal/repository"
	"auction-backend/internal/repository/postgres"
	"auction-backend/internal/server"
	"auction-backend/migrations"
	"auction-backend/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()
	utils.SetLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)
	if cfg.InsecureSecret() {
		utils.Fatal("JWT_SECRET must be set in release mode", map[string]any{"gin_mode": cfg.GinMode})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.NewSystem()
	reg := metrics.New()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	cache, closeCache := openIdempotencyCache(ctx, cfg, clk)
	defer closeCache()

	publisher, closePublisher := openPublisher(cfg)
	defer closePublisher()

	biddingSvc := bidding.NewBiddingService(store,
		bidding.WithClock(clk),
		bidding.WithStorageTimeout(cfg.StorageTimeout),
		bidding.WithIdempotencyCache(cache),
		bidding.WithPublisher(publisher),
		bidding.WithMetrics(reg),
	)
	listingSvc := listing.NewListingService(store, biddingSvc,
		listing.WithClock(clk),
		listing.WithStorageTimeout(cfg.StorageTimeout),
		listing.WithPublisher(publisher),
	)
	authSvc := auth.NewAuthService(store, cfg.JWTSecret,
		auth.WithClock(clk),
		auth.WithTokenTTL(cfg.TokenTTL),
		auth.WithAdminCode(cfg.AdminRegistrationCode),
		auth.WithStorageTimeout(cfg.StorageTimeout),
	)

	if cfg.SeedDemoData {
		prepopulateListings(ctx, authSvc, listingSvc, clk)
	}

	router := server.SetupRouter(server.Deps{
		Bidding:        biddingSvc,
		Listings:       listingSvc,
		Auth:           authSvc,
		Authenticator:  authSvc,
		Metrics:        reg,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		utils.Info("Starting auction server", map[string]any{"addr": cfg.Addr(), "store": cfg.StoreDriver})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("Failed to start server", map[string]any{"error": err.Error()})
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	utils.Info("Shutting down", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("Graceful shutdown failed", map[string]any{"error": err.Error()})
	}
}

func openStore(ctx context.Context, cfg config.Config) (repository.AuctionDB, func()) {
	if cfg.StoreDriver != config.StorePostgres {
		return repository.NewMemoryRepo(), func() {}
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := postgres.Connect(connectCtx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		utils.Fatal("Failed to connect to Postgres", map[string]any{"error": err.Error()})
	}
	if err := migrations.Apply(connectCtx, pool); err != nil {
		pool.Close()
		utils.Fatal("Failed to apply migrations", map[string]any{"error": err.Error()})
	}
	return postgres.NewStore(pool), pool.Close
}

func openIdempotencyCache(ctx context.Context, cfg config.Config, clk clock.Clock) (idempotency.Cache, func()) {
	if cfg.RedisAddr == "" {
		return idempotency.NewMemoryCache(cfg.IdempotencyTTL, clk), func() {}
	}
	rdb, err := idempotency.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		utils.Fatal("Failed to connect to Redis", map[string]any{"addr": cfg.RedisAddr, "error": err.Error()})
	}
	return idempotency.NewRedisCache(rdb, cfg.IdempotencyTTL), func() { _ = rdb.Close() }
}

func openPublisher(cfg config.Config) (events.Publisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return events.NewMemoryPublisher(1024), func() {}
	}
	p := events.NewKafkaPublisher(cfg.KafkaBrokers, map[string]string{
		events.EventBidPlaced:     cfg.KafkaTopicBids,
		events.EventListingClosed: cfg.KafkaTopicListings,
	})
	return p, func() {
		if err := p.Close(); err != nil {
			utils.Warn("Failed to close Kafka writer", map[string]any{"error": err.Error()})
		}
	}
}

// prepopulateListings registers a demo seller with a few open auctions.
// Running it twice is harmless: an existing seller stops the seed.
func prepopulateListings(ctx context.Context, users *auth.AuthService, listings *listing.ListingService, clk clock.Clock) {
	seller, err := users.Register(ctx, auth.RegisterInput{
		Username:    "demoseller",
		Email:       "demoseller@example.com",
		Password:    "demo-password",
		PhoneNumber: "+15550000000",
		Address:     "1 Market Street",
	})
	if errors.Is(err, biddingerrors.ErrUsernameTaken) || errors.Is(err, biddingerrors.ErrEmailTaken) {
		utils.Info("Demo data already present", nil)
		return
	}
	if err != nil {
		utils.Warn("Failed to seed demo seller", map[string]any{"error": err.Error()})
		return
	}

	end := clk.Now().Add(7 * 24 * time.Hour)
	items := []listing.CreateListingInput{
		{Name: "title1", Description: "description1", StartingPrice: 100, EndTime: end},
		{Name: "title2", Description: "Description2", StartingPrice: 200, EndTime: end},
		{Name: "title3", Description: "Description3", StartingPrice: 150, EndTime: end},
	}
	for _, item := range items {
		if _, err := listings.CreateListing(ctx, seller.UserID, item); err != nil {
			utils.Warn("Failed to seed demo listing", map[string]any{"name": item.Name, "error": err.Error()})
		}
	}
}
