package main

import (
	"context"
	"flag"
	"net/http"

	"go.uber.org/zap"

	httpadapter "github.com/threadline-ai/threadline/internal/adapters/http"
	"github.com/threadline-ai/threadline/internal/adapters/llm"
	firestorestore "github.com/threadline-ai/threadline/internal/adapters/storage/firestore"
	memstore "github.com/threadline-ai/threadline/internal/adapters/storage/memory"
	"github.com/threadline-ai/threadline/internal/app/chat"
	"github.com/threadline-ai/threadline/internal/config"
	"github.com/threadline-ai/threadline/internal/domain"
	"github.com/threadline-ai/threadline/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "optional path to a config file")
	flag.Parse()

	ctx := context.Background()
	logger := observability.Logger()
	defer observability.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// Completion client: mock, Vertex or OpenAI.
	var llmClient domain.CompletionClient
	switch cfg.LLM.Backend {
	case "vertex":
		logger.Info("using Vertex completion client", zap.String("model", cfg.LLM.Model))
		llmClient, err = llm.NewVertexClient(ctx, llm.VertexConfig{
			ProjectID:       cfg.LLM.VertexProject,
			Location:        cfg.LLM.VertexLocation,
			Model:           cfg.LLM.Model,
			MaxOutputTokens: cfg.LLM.MaxOutputTokens,
			Temperature:     cfg.LLM.Temperature,
		})
		if err != nil {
			logger.Fatal("failed to initialize Vertex client", zap.Error(err))
		}
	case "openai":
		logger.Info("using OpenAI completion client", zap.String("model", cfg.LLM.Model))
		llmClient, err = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:      cfg.LLM.OpenAIAPIKey,
			BaseURL:     cfg.LLM.OpenAIBaseURL,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxOutputTokens,
			Temperature: cfg.LLM.Temperature,
		})
		if err != nil {
			logger.Fatal("failed to initialize OpenAI client", zap.Error(err))
		}
	default:
		logger.Info("using mock completion client")
		llmClient = llm.NewMockClient()
	}

	// Storage: one store implements both ports.
	var threadStore domain.ThreadStore
	var messageStore domain.MessageStore

	switch cfg.Storage.Backend {
	case "firestore":
		logger.Info("using Firestore storage", zap.String("project", cfg.Storage.FirestoreProject))
		fsStore, err := firestorestore.NewStore(ctx, cfg.Storage.FirestoreProject)
		if err != nil {
			logger.Fatal("failed to initialize Firestore store", zap.Error(err))
		}
		defer fsStore.Close()
		threadStore = fsStore
		messageStore = fsStore
	default:
		logger.Info("using in-memory storage")
		store := memstore.NewStore()
		threadStore = store
		messageStore = store
	}

	metrics := observability.NewMetrics()

	svc := chat.NewService(llmClient, threadStore, messageStore, chat.HistoryLimits{
		NLatest:   cfg.History.NLatest,
		MaxTokens: cfg.History.MaxTokens,
	}, metrics)

	if cfg.LLM.UseTiktoken {
		estimator, err := llm.NewTokenEstimator(cfg.LLM.Model)
		if err != nil {
			logger.Warn("tiktoken unavailable, keeping length-based estimator", zap.Error(err))
		} else {
			svc.SetTokenEstimator(estimator)
		}
	}

	handler := httpadapter.NewServer(svc, metrics)

	addr := ":" + cfg.Server.Port
	logger.Info("threadline API listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
