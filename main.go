package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayurmart/storefront/internal/api"
	"github.com/ayurmart/storefront/internal/auth"
	"github.com/ayurmart/storefront/internal/cache"
	"github.com/ayurmart/storefront/internal/db"
	"github.com/ayurmart/storefront/internal/events"
	"github.com/ayurmart/storefront/internal/metrics"
	"github.com/ayurmart/storefront/internal/services"
	"github.com/ayurmart/storefront/internal/storage"
	"github.com/ayurmart/storefront/internal/store"
	"github.com/ayurmart/storefront/pkg/config"
	"github.com/ayurmart/storefront/pkg/logger"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, cfgErr := config.LoadConfig()

	log := logger.New(cfg.Environment)
	defer log.Sync()
	if cfgErr != nil {
		log.Warn("Failed to load .env file", zap.Error(cfgErr))
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.UsesDefaultJWTSecret() {
		log.Warn("JWT_SECRET not set, signing sessions with the development key")
	}

	// Initialize OpenTelemetry metrics
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appMetrics, meterProvider, err := metrics.InitMetrics(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Initialize database
	database, err := db.NewDB(cfg.GetDSN(), cfg.OTELServiceName, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	schemaSQL, err := os.ReadFile(cfg.SchemaPath)
	if err != nil {
		log.Warn("Could not read schema, assuming it already exists", zap.String("path", cfg.SchemaPath), zap.Error(err))
	} else if err := database.InitSchema(ctx, string(schemaSQL)); err != nil {
		log.Warn("Could not initialize schema, assuming it already exists", zap.Error(err))
	}

	// Redis backs both the catalog cache and, optionally, the session stores
	rdb := cache.NewRedisClient(cfg, log)
	if rdb != nil {
		defer rdb.Close()
	}
	catalogCache := cache.New(rdb, log)

	stateStorage, err := storage.New(cfg, rdb, log)
	if err != nil {
		log.Fatal("Failed to open session storage", zap.Error(err))
	}
	defer stateStorage.Close()

	sessions := store.NewSessions(stateStorage, appMetrics, log, cfg.StoreIdleTTL)
	go sessions.Run(ctx, time.Minute)

	publisher, err := events.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to create event publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Initialize services
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL, log)
	productService := services.NewProductService(database, appMetrics, catalogCache, cfg.CacheTTL, log)
	categoryService := services.NewCategoryService(database, appMetrics, catalogCache, cfg.CacheTTL, log)
	brandService := services.NewBrandService(database, appMetrics)
	userService := services.NewUserService(database, appMetrics, tokens, log)
	wishlistService := services.NewWishlistService(database, appMetrics)
	orderService := services.NewOrderService(database, appMetrics, publisher, productService, services.PricingFromConfig(cfg), log)

	// Initialize app
	app := api.NewApp(cfg, api.Services{
		Products:   productService,
		Categories: categoryService,
		Brands:     brandService,
		Accounts:   userService,
		Wishlists:  wishlistService,
		Orders:     orderService,
		DB:         database,
	}, sessions, appMetrics, log)

	router := mux.NewRouter()
	app.SetupRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      otelhttp.NewHandler(router, cfg.OTELServiceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting",
			zap.String("port", cfg.AppPort),
			zap.String("otlp_endpoint", cfg.OTELExporterOTLPEndpoint),
			zap.String("store_backend", cfg.StoreBackend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
