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

	"docanalyzer-backend/internal/ai"
	"docanalyzer-backend/internal/config"
	"docanalyzer-backend/internal/logger"
	"docanalyzer-backend/internal/telemetry"
	"docanalyzer-backend/internal/vectorstore"
	"docanalyzer-backend/middleware"
	"docanalyzer-backend/models"
	"docanalyzer-backend/routes"
	"docanalyzer-backend/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("docanalyzer-backend", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to initialize tracing:", err)
		}
		defer shutdown()
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

	// Redis: embedding cache + task queue
	redisClient, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	// AI clients
	geminiClient, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer geminiClient.Close()

	embedder, err := ai.NewGeminiEmbedder(context.Background(), cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel, redisClient)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}
	defer embedder.Close()

	// Ingestion stack
	store := vectorstore.New()
	chunkStore := services.NewChunkStore(db)

	chunker, err := services.NewChunker(models.ChunkingConfig{
		ChunkSize: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
	})
	if err != nil {
		log.Fatal("Invalid chunking config:", err)
	}

	strategies := []services.ExtractionStrategy{
		&services.StructuredStrategy{},
		&services.GeneralStrategy{},
		&services.PlaintextStrategy{},
	}
	if cfg.OCRServiceEnabled {
		ocrClient := services.NewOCRClient(cfg.OCRServiceURL, time.Duration(cfg.OCRTimeout)*time.Second)
		strategies = append(strategies, services.NewOCRStrategy(ocrClient))
	}
	extractor := services.NewExtractor(strategies...)

	ingestion := services.NewIngestionService(
		db, chunkStore, extractor, services.NewProfiler(), chunker, embedder, store, cfg.FileStorageDir,
	)

	// Rebuild in-memory indexes from persisted chunks in the background
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := ingestion.RestoreIndexes(ctx); err != nil {
			logger.Error("Index restore failed", "error", err)
		}
	}()

	// Query pipeline
	var expander services.QueryExpander = services.StaticExpander{}
	if cfg.ExpandWithLLM {
		expander = services.NewGeminiExpander(geminiClient)
	}
	pipeline := services.NewRAGPipeline(store, embedder, expander, services.PipelineConfig{
		TopKPerVariant: cfg.TopKPerVariant,
		ContextChunks:  cfg.ContextChunks,
		MinSimilarity:  cfg.MinSimilarity,
	})

	// Task queue client for async ingestion of large files
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	// Background maintenance
	maintenance := services.NewMaintenanceService(db, time.Duration(cfg.StaleProcessingMinutes)*time.Minute)
	if err := maintenance.Start(); err != nil {
		log.Fatal("Failed to start maintenance scheduler:", err)
	}
	defer maintenance.Stop()

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
	}

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Authenticated API
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	api := router.Group("/api")
	api.Use(authMiddleware.RequireAuth())

	routes.NewDocumentRoutes(cfg, db, ingestion, asynqClient).Register(api)
	routes.NewQueryRoutes(db, ingestion, pipeline, geminiClient).Register(api)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
