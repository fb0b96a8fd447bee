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

	"github.com/gin-gonic/gin"

	"finsight/internal/cache"
	"finsight/internal/config"
	"finsight/internal/database"
	"finsight/internal/handlers"
	"finsight/internal/ingestion"
	"finsight/internal/logger"
	"finsight/internal/middleware"
	"finsight/internal/observability"
	"finsight/internal/services"
	"finsight/internal/validator"
)

// @title           Finsight API
// @version         1.0
// @description     Finsight ingests financial statements and SEC filings from a rate-limited provider and scores companies against configurable templates.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Infof("Configuration loaded: %s", appConfig)

	// Create database manager
	dbManager, err := database.NewManager(database.NewConfig(appConfig))
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	rdb, err := cache.Connect(ctx, appConfig.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer rdb.Close()

	metrics := observability.NewMetrics(appConfig.MetricsNamespace)

	// Initialize services
	db := dbManager.DB()
	records := services.NewFinancialDataService(db, metrics)
	companyService := services.NewCompanyService(db, records)
	completenessService := services.NewCompletenessService(db, time.Now)
	templateService := services.NewTemplateService(db)
	scoringService := services.NewScoringService(templateService, metrics)

	factory, err := ingestion.FromConfig(appConfig, db, rdb, metrics)
	if err != nil {
		return fmt.Errorf("failed to build ingestion factory: %w", err)
	}
	orchestrator := ingestion.NewOrchestrator(factory, appConfig.Concurrency, metrics)

	// Initialize handlers
	scoringHandler := handlers.NewScoringHandler(scoringService, templateService)
	ingestionHandler := handlers.NewIngestionHandler(orchestrator)
	companyHandler := handlers.NewCompanyHandler(companyService, completenessService)

	validator.Register()
	if appConfig.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+middleware.APIKeyHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})
	router.NoRoute(middleware.NotFound())

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API v1 group, protected by the shared API key
	v1 := router.Group("/api/v1")
	v1.Use(middleware.APIKeyAuth(appConfig.APIKey))

	scoringRoutes := v1.Group("/scoring")
	scoringRoutes.POST("/calculate", scoringHandler.Calculate)
	scoringRoutes.GET("/templates", scoringHandler.ListTemplates)
	scoringRoutes.GET("/templates/:name", scoringHandler.GetTemplate)

	ingestionRoutes := v1.Group("/ingestion")
	ingestionRoutes.POST("/financials", ingestionHandler.IngestFinancials)
	ingestionRoutes.POST("/filings", ingestionHandler.IngestFilings)
	ingestionRoutes.POST("/coverage", ingestionHandler.EnsureCoverage)

	companies := v1.Group("/companies")
	companies.GET("", companyHandler.ListCompanies)
	companies.GET("/:ticker", companyHandler.GetCompany)
	companies.GET("/:ticker/completeness", companyHandler.GetCompleteness)

	srv := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting Finsight server on port %s", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	// Ingestion batches run inside request contexts; give them time to drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
