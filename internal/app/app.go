package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ShriAmogh/artikate-assignment/internal/config"
	"github.com/ShriAmogh/artikate-assignment/internal/core"
	db "github.com/ShriAmogh/artikate-assignment/internal/core/database"
	"github.com/ShriAmogh/artikate-assignment/internal/core/llm"
	"github.com/ShriAmogh/artikate-assignment/internal/core/objectstore"
	"github.com/ShriAmogh/artikate-assignment/internal/core/parser"
	"github.com/ShriAmogh/artikate-assignment/internal/core/queue"
	"github.com/ShriAmogh/artikate-assignment/internal/core/rerank"
	"github.com/ShriAmogh/artikate-assignment/internal/ingest"
	"github.com/ShriAmogh/artikate-assignment/internal/retrieve"
	"github.com/ShriAmogh/artikate-assignment/internal/services"
)

const producerWorkers = 4

// App owns every long-lived component and wires them together at startup.
type App struct {
	Logger   *slog.Logger
	DBClient core.DbClient
	Queue    *queue.Log
	Embedder *llm.GeminiEmbedder
	LLM      *llm.GeminiLLM
	Server   *Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	logger.Info("database initialized and ready")

	objClient, err := objectstore.NewS3Client(appCtx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("object storage: %w", err)
	}

	chunkLog, err := queue.Open(cfg.QueueDir, cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("chunk log: %w", err)
	}
	logger.Info("chunk log opened", "dir", cfg.QueueDir, "ttl", cfg.SessionTTL)

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("language model: %w", err)
	}
	encoder, err := rerank.NewClient(rerank.Config{
		BaseURL: cfg.RerankerURL,
		Model:   cfg.RerankModel,
	})
	if err != nil {
		return nil, fmt.Errorf("reranker: %w", err)
	}

	docParser := parser.NewDocumentParser(false)
	producer := ingest.NewProducer(docParser, chunkLog, logger, cfg.ChunkSize, cfg.OverlapSize, producerWorkers)
	indexer := ingest.NewIndexer(chunkLog, embedder, dbClient, logger, cfg.BatchSize, 2*time.Second)
	retriever := retrieve.NewRetriever(embedder, dbClient, encoder, logger, cfg.FetchK, cfg.TopK)
	synthesizer := retrieve.NewSynthesizer(llmProvider, logger)

	docService := services.NewDocumentService(dbClient, objClient, cfg.BucketName)
	ragService := services.NewRagService(dbClient, docService, chunkLog, producer, indexer, retriever, synthesizer, logger, cfg.SessionTTL)
	userService := services.NewUserService(dbClient)

	server := NewServer(cfg, logger, userService, docService, ragService)

	return &App{
		Logger:   logger,
		DBClient: dbClient,
		Queue:    chunkLog,
		Embedder: embedder,
		LLM:      llmProvider,
		Server:   server,
	}, nil
}

func (a *App) Close() {
	if a.Embedder != nil {
		_ = a.Embedder.Close()
	}
	if a.LLM != nil {
		_ = a.LLM.Close()
	}
	if a.Queue != nil {
		_ = a.Queue.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
