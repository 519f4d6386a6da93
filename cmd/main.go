package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"knowledge-ingest-platform/internal/ai"
	"knowledge-ingest-platform/internal/config"
	"knowledge-ingest-platform/internal/logger"
	"knowledge-ingest-platform/internal/telemetry"
	"knowledge-ingest-platform/middleware"
	"knowledge-ingest-platform/routes"
	"knowledge-ingest-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Telemetry
	var metrics *telemetry.Metrics
	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.InitTracer("knowledge-ingest-api", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("Tracer init failed, continuing without tracing", "error", err)
		} else {
			defer shutdown()
		}
		metrics, err = telemetry.InitMetrics()
		if err != nil {
			logger.Warn("Metrics init failed", "error", err)
		}
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Connect to Redis
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Shared Gemini client for query embeddings
	geminiClient, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer geminiClient.Close()

	// Persistence and services
	docRepo := services.NewMongoDocumentRepository(db)
	chunkRepo := services.NewMongoChunkRepository(db)
	store := services.NewKnowledgeStore(chunkRepo, geminiClient, rdb,
		cfg.EmbeddingsModel, cfg.VectorDimensions, cfg.QueryEmbedCacheTTL)
	monitor := services.NewHealthMonitor(docRepo, chunkRepo, services.StallThresholds{
		Medium:   time.Duration(cfg.StallMediumMin) * time.Minute,
		High:     time.Duration(cfg.StallHighMin) * time.Minute,
		Critical: time.Duration(cfg.StallCriticalMin) * time.Minute,
	})

	// Asynq client for enqueueing ingest tasks
	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	if cfg.TelemetryEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
		if metrics != nil {
			router.Use(middleware.MetricsMiddleware(metrics))
		}
	}
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	api := router.Group("/api")
	{
		api.POST("/ingest/upload", routes.HandleUpload(cfg, docRepo))
		api.POST("/ingest/:documentID/process", routes.HandleProcess(docRepo, queueClient))
		api.GET("/ingest/:documentID/status", routes.HandleStatus(docRepo))
		api.GET("/documents", routes.HandleListDocuments(docRepo))
		api.DELETE("/documents/:documentID", routes.HandleDeleteDocument(cfg, docRepo, store))
		api.POST("/search", routes.HandleSearch(cfg, store, metrics))
		api.GET("/health/system", routes.HandleSystemHealth(monitor))
		api.GET("/health/stalled", routes.HandleStalledDocuments(monitor))
		api.GET("/health/gaps", routes.HandleEmbeddingGaps(monitor))
		api.GET("/health/dimensions", routes.HandleDimensionDiagnostic(monitor))
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
