package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"docanalyzer-backend/internal/ai"
	"docanalyzer-backend/internal/config"
	"docanalyzer-backend/internal/logger"
	"docanalyzer-backend/internal/queue"
	"docanalyzer-backend/internal/vectorstore"
	"docanalyzer-backend/models"
	"docanalyzer-backend/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

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

	redisClient, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	embedder, err := ai.NewGeminiEmbedder(context.Background(), cfg.GeminiAPIKey, cfg.GoogleEmbeddingsModel, redisClient)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}
	defer embedder.Close()

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

	ingestion := services.NewIngestionService(
		db,
		services.NewChunkStore(db),
		services.NewExtractor(strategies...),
		services.NewProfiler(),
		chunker,
		embedder,
		vectorstore.New(),
		cfg.FileStorageDir,
	)

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
			Concurrency: 4,
			Queues: map[string]int{
				"ingestion": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ingestion)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskDocumentIngest, processor.HandleDocumentIngest)

	log.Println("Starting ingestion worker...")
	log.Printf("   Redis: %s", redisOpt.Addr)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
