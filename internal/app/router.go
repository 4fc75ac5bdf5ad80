package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/handler"
	"dispatch/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	UserHandler     *handler.UserHandler
	DriverHandler   *handler.DriverHandler
	RideHandler     *handler.RideHandler
	CouponHandler   *handler.CouponHandler
	MerchantHandler *handler.MerchantHandler
	AdminHandler    *handler.AdminHandler
	RedisClient     *redis.Client
	NewRelicApp     *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered. The paths
// are the flat contract the dashboards poll; they are not versioned.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	if deps.RedisClient != nil {
		router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))
	}

	router.GET("/health", deps.AdminHandler.Health)

	// Riders and drivers.
	router.POST("/register-user", deps.UserHandler.RegisterUser)
	router.POST("/register-driver", deps.DriverHandler.RegisterDriver)
	router.POST("/go-online", deps.DriverHandler.GoOnline)
	router.POST("/go-offline", deps.DriverHandler.GoOffline)
	router.POST("/heartbeat", deps.DriverHandler.Heartbeat)
	router.GET("/available-drivers", deps.DriverHandler.AvailableDrivers)

	// Ride lifecycle.
	router.POST("/book-ride", deps.RideHandler.BookRide)
	router.GET("/queue", deps.RideHandler.Queue)
	router.GET("/next-ride", deps.RideHandler.NextRide)
	router.GET("/ride/:id", deps.RideHandler.GetRide)
	router.GET("/ride-by-port/:port", deps.RideHandler.GetRideByPort)
	router.POST("/complete-ride", deps.RideHandler.CompleteRide)
	router.POST("/cancel-ride", deps.RideHandler.CancelRide)

	// Platform coupons.
	router.POST("/create-coupon", deps.CouponHandler.CreateCoupon)
	router.GET("/coupons", deps.CouponHandler.ListCoupons)
	router.GET("/user-coupons/:user_id", deps.CouponHandler.UserCoupons)
	router.POST("/validate-coupon", deps.CouponHandler.ValidateCoupon)

	// Merchants and their coupons.
	router.POST("/register-merchant", deps.MerchantHandler.RegisterMerchant)
	router.POST("/merchant-login", deps.MerchantHandler.Login)
	router.GET("/merchant-coupons/:id", deps.MerchantHandler.ListCoupons)
	router.POST("/create-merchant-coupon", deps.MerchantHandler.CreateCoupon)
	router.POST("/toggle-merchant-coupon/:id", deps.MerchantHandler.ToggleCoupon)
	router.DELETE("/delete-merchant-coupon/:id", deps.MerchantHandler.DeleteCoupon)
	router.GET("/merchant-analytics/:id", deps.MerchantHandler.Analytics)
	router.GET("/merchant-redemptions/:id", deps.MerchantHandler.Redemptions)
	router.GET("/nearby-merchant-coupons", deps.MerchantHandler.NearbyCoupons)
	router.POST("/redeem-merchant-coupon", deps.MerchantHandler.Redeem)

	// Load-testing helpers.
	router.POST("/simulate-ride-with-driver", deps.AdminHandler.SimulateRide)
	router.POST("/cleanup-simulation-data", deps.AdminHandler.Cleanup)

	return router
}
