package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/app"
	"dispatch/internal/config"
	"dispatch/internal/handler"
	"dispatch/internal/pricing"
	"dispatch/internal/provisioner"
	internalRedis "dispatch/internal/redis"
	"dispatch/internal/repository/postgres"
	"dispatch/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s (with DB instrumentation)", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	// Wire dependencies.
	server := wireServer(db, redisClient, nrApp, cfg)

	// Start server in goroutine.
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config) *http.Server {
	// Initialize Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	snapshotStore := internalRedis.NewSnapshotStore(redisClient)

	// Initialize repositories.
	userRepo := postgres.NewUserRepository(db)
	driverRepo := postgres.NewDriverRepository(db)
	rideRepo := postgres.NewRideRepository(db)
	couponRepo := postgres.NewCouponRepository(db)
	merchantRepo := postgres.NewMerchantRepository(db)
	adminRepo := postgres.NewAdminRepository(db)

	// Per-ride resource pool.
	pool := provisioner.NewPool(cfg.Provisioner.PortBase, cfg.Provisioner.PoolSize, provisioner.LogRuntime{})

	// Fare policy.
	var policy pricing.Policy
	switch cfg.Pricing.Policy {
	case "distance":
		policy = pricing.DistancePolicy{PerKm: cfg.Pricing.PerKm, MinimumFare: cfg.Pricing.BaseFare}
	default:
		policy = pricing.FixedPolicy{BaseFare: cfg.Pricing.BaseFare}
	}

	// Initialize services.
	userService := service.NewUserService(userRepo)
	registryService := service.NewRegistryService(driverRepo, locationStore, lockStore, cfg.Dispatch.DriverStaleAfter)
	couponService := service.NewCouponService(couponRepo)
	fareService := service.NewFareService(policy, couponService)
	incentiveService := service.NewIncentiveService(merchantRepo, rideRepo)
	dispatchService := service.NewDispatchService(
		rideRepo,
		registryService,
		fareService,
		couponService,
		pool,
		adminRepo,
		cfg.Dispatch.AutoCompleteTrips,
		cfg.Dispatch.TripDuration,
	)
	dispatchService.AddCompletionListener(service.LogCompletionListener{})
	dispatchService.AddCompletionListener(incentiveService)

	// Initialize handlers.
	userHandler := handler.NewUserHandler(userService)
	driverHandler := handler.NewDriverHandler(registryService, dispatchService, snapshotStore)
	rideHandler := handler.NewRideHandler(dispatchService, registryService, snapshotStore)
	couponHandler := handler.NewCouponHandler(couponService)
	merchantHandler := handler.NewMerchantHandler(incentiveService)
	adminHandler := handler.NewAdminHandler(dispatchService)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		UserHandler:     userHandler,
		DriverHandler:   driverHandler,
		RideHandler:     rideHandler,
		CouponHandler:   couponHandler,
		MerchantHandler: merchantHandler,
		AdminHandler:    adminHandler,
		RedisClient:     redisClient,
		NewRelicApp:     nrApp,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
