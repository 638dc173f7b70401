package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tuinawx/booking-api/config"
	"github.com/tuinawx/booking-api/middleware"
	"github.com/tuinawx/booking-api/routes"
	"github.com/tuinawx/booking-api/services"
	"github.com/tuinawx/booking-api/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Tuina booking API terminated: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		return err
	}
	if err := config.Migrate(db); err != nil {
		return err
	}
	logger.Info("database ready", zap.String("driver", cfg.DatabaseDriver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var images services.ImageService
	if cfg.S3Enabled() {
		s3Service, err := services.InitS3Service(ctx, cfg, logger)
		if err != nil {
			return err
		}
		images = services.InitImageService(s3Service)
	} else {
		logger.Warn("AWS_S3_BUCKET not set, storing service photos on local disk", zap.String("dir", utils.UploadDir))
		images = services.InitLocalImageService(utils.UploadDir)
	}

	var payments services.PaymentGateway
	if cfg.StripeAPIKey != "" {
		payments, err = services.NewStripeGateway(services.StripeGatewayConfig{
			APIKey:   cfg.StripeAPIKey,
			Currency: cfg.StripeCurrency,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
	} else {
		if cfg.IsProduction() {
			return errors.New("STRIPE_API_KEY is required in production")
		}
		logger.Warn("STRIPE_API_KEY not set, using the in-memory payment gateway")
		payments = services.NewMockGateway()
	}

	notifier := services.MultiNotifier{services.NewInboxNotifier(db)}
	if cfg.PubSubEnabled() {
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		defer client.Close()

		topic := client.Topic(cfg.PubSubTopic)
		defer topic.Stop()

		publisher, err := services.NewPubSubNotifier(topic)
		if err != nil {
			return err
		}
		notifier = append(notifier, publisher)
	}

	services.InitOrderService(services.OrderServiceDeps{
		DB:           db,
		Notifier:     notifier,
		Payments:     payments,
		Images:       images,
		Distance:     services.HaversineDistanceFee{FreeKm: cfg.DistanceFreeKm, FeePerKm: cfg.DistanceFeePerKm},
		Availability: services.NewAvailabilityChecker(cfg.BookingBuffer),
		Logger:       logger,
	})

	jwtValidator, err := middleware.NewTokenValidator(cfg)
	if err != nil {
		return fmt.Errorf("set up token validator: %w", err)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, jwtValidator, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", server.Addr), zap.String("env", cfg.GoEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

// newRouter builds the gin engine with middleware and every route
func newRouter(cfg *config.Config, jwtValidator *validator.Validator, logger *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	if len(cfg.CORSAllowedOrigins) == 0 || (len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", databaseStatus)
		routes.Register(v1, middleware.EnsureValidToken(jwtValidator, logger))
	}

	return router
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	utils.Success(c, "Tuina booking API is running", gin.H{"status": "ok"})
}

// databaseStatus checks database connectivity and returns pool and table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		utils.Fail(c, http.StatusServiceUnavailable, "database is not configured")
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		utils.Fail(c, http.StatusInternalServerError, "failed to get database instance")
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		utils.Fail(c, http.StatusServiceUnavailable, "database connection failed")
		return
	}

	tables, err := db.Migrator().GetTables()
	if err != nil {
		utils.Fail(c, http.StatusInternalServerError, "failed to query tables")
		return
	}

	stats := sqlDB.Stats()
	utils.Success(c, "database connected", gin.H{
		"driver":          db.Dialector.Name(),
		"tables":          tables,
		"openConnections": stats.OpenConnections,
		"inUse":           stats.InUse,
		"idle":            stats.Idle,
	})
}
