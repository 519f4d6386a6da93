package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"knowledge-ingest-platform/internal/ai"
	"knowledge-ingest-platform/internal/config"
	"knowledge-ingest-platform/internal/logger"
	"knowledge-ingest-platform/internal/queue"
	"knowledge-ingest-platform/internal/telemetry"
	"knowledge-ingest-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	var metrics *telemetry.Metrics
	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.InitTracer("knowledge-ingest-worker", cfg.OTLPEndpoint)
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

	// Connect to Redis (query-embedding cache)
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Shared Gemini client for embeddings and vision OCR
	geminiClient, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer geminiClient.Close()

	// Pipeline assembly
	docRepo := services.NewMongoDocumentRepository(db)
	chunkRepo := services.NewMongoChunkRepository(db)

	lease := services.NewLeaseManager(docRepo, cfg.MaxAttempts, cfg.PipelineTimeout)
	throttle := rate.Every(time.Duration(cfg.OCRThrottleMs) * time.Millisecond)
	scheduler := services.NewOCRScheduler(geminiClient, cfg.OCRModel, cfg.OCRMaxConcurrency, throttle)
	extractor := services.NewExtractor(scheduler, cfg.OCRTextThreshold)
	chunker := services.NewChunker(cfg.MaxChunkChars, cfg.ChunkOverlap)
	embedder := services.NewEmbedder(geminiClient, cfg.EmbeddingsModel, cfg.EmbedBatchSize, cfg.VectorDimensions)
	store := services.NewKnowledgeStore(chunkRepo, geminiClient, rdb,
		cfg.EmbeddingsModel, cfg.VectorDimensions, cfg.QueryEmbedCacheTTL)

	pipeline := services.NewPipeline(lease, extractor, chunker, embedder, store,
		metrics, cfg.FileStorageDir, cfg.CompleteOnDeadline)

	monitor := services.NewHealthMonitor(docRepo, chunkRepo, services.StallThresholds{
		Medium:   time.Duration(cfg.StallMediumMin) * time.Minute,
		High:     time.Duration(cfg.StallHighMin) * time.Minute,
		Critical: time.Duration(cfg.StallCriticalMin) * time.Minute,
	})

	// Out-of-band health sweep
	sweeper := services.NewHealthSweeper(monitor, cfg.HealthSweepInterval)
	if err := sweeper.Start(); err != nil {
		log.Fatal("Failed to start health sweeper:", err)
	}
	defer sweeper.Stop()

	// Redis options for Asynq
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 20,
			Queues: map[string]int{
				"critical": 6, // ingest pipeline
				"default":  3, // health sweeps, maintenance
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// Create task processor
	processor := queue.NewTaskProcessor(pipeline, monitor)

	// Create mux and register handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, processor.ProcessDocument)
	mux.HandleFunc(queue.TaskHealthSweep, processor.RunHealthSweep)

	logger.Info("Starting ingest worker",
		"concurrency", 20,
		"redis", redisOpt.Addr,
		"ocr_max_concurrency", cfg.OCRMaxConcurrency,
	)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
