// Package app assembles the services from configuration. Both binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/docassist/internal/api/handlers"
	"github.com/nikhilbhutani/docassist/internal/cache"
	"github.com/nikhilbhutani/docassist/internal/chat"
	"github.com/nikhilbhutani/docassist/internal/config"
	"github.com/nikhilbhutani/docassist/internal/database"
	"github.com/nikhilbhutani/docassist/internal/document"
	"github.com/nikhilbhutani/docassist/internal/embedding"
	"github.com/nikhilbhutani/docassist/internal/ingest"
	"github.com/nikhilbhutani/docassist/internal/llm"
	"github.com/nikhilbhutani/docassist/internal/queue"
	"github.com/nikhilbhutani/docassist/internal/rag"
	"github.com/nikhilbhutani/docassist/internal/repository"
	"github.com/nikhilbhutani/docassist/internal/repository/postgres"
	"github.com/nikhilbhutani/docassist/internal/repository/sqlite"
	"github.com/nikhilbhutani/docassist/internal/storage"
	"github.com/nikhilbhutani/docassist/internal/vectorstore"
	"github.com/nikhilbhutani/docassist/pkg/tokenizer"
)

type App struct {
	Config     *config.Config
	Documents  *document.Service
	Chat       *chat.Service
	Pipeline   *ingest.Pipeline
	Reconciler *ingest.Reconciler

	// Pool is set when processing runs in-process.
	Pool        *queue.Pool
	ReadyChecks map[string]handlers.Check

	closers []func() error
}

type stores struct {
	docs       repository.DocumentRepository
	chunks     repository.ChunkRepository
	chat       repository.ChatRepository
	embeddings vectorstore.EmbeddingStore
}

// New connects every backend named in cfg. On error, whatever was already
// opened is closed again.
func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{Config: cfg, ReadyChecks: map[string]handlers.Check{}}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	blobs, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, err
	}

	var locker ingest.Locker
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, rdb.Close)
		c := cache.NewCache(rdb)
		a.ReadyChecks["redis"] = c.Ping
		locker = c
	}

	gw := llm.NewGateway(cfg.LLM)
	embedder := embedding.NewService(gw, cfg.LLM.EmbeddingModel, cfg.LLM.EmbeddingDimensions)

	a.Pipeline = ingest.NewPipeline(st.docs, st.chunks, st.embeddings, blobs, document.NewTextExtractor(), embedder,
		ingest.Config{
			MaxTokens:        cfg.RAG.MaxTokens,
			OverlapTokens:    cfg.RAG.OverlapTokens,
			EmbedConcurrency: cfg.RAG.EmbedConcurrency,
		})
	a.Reconciler = ingest.NewReconciler(st.docs, locker, cfg.RAG.ProcessingTimeout, cfg.RAG.ReconcileInterval)

	var dispatcher document.Dispatcher
	switch cfg.Queue.Backend {
	case "inprocess":
		a.Pool = queue.NewPool(a.Pipeline, cfg.Queue.Concurrency)
		dispatcher = a.Pool
	default:
		d := queue.NewAsynqDispatcher(cfg.Redis, cfg.RAG.ProcessingTimeout)
		a.closers = append(a.closers, d.Close)
		dispatcher = d
	}
	a.Documents = document.NewService(st.docs, st.embeddings, blobs, dispatcher, cfg.Upload.MaxBytes)

	generator := rag.NewLLMGenerator(gw, rag.GeneratorOptions{
		Provider:    cfg.LLM.DefaultProvider,
		Model:       cfg.LLM.DefaultModel,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	composer := rag.NewComposer(
		rag.NewRetriever(st.embeddings, embedder, cfg.RAG.TopK),
		generator,
		tokenCounter(cfg.LLM.DefaultModel),
		rag.ComposerConfig{MaxContextTokens: cfg.RAG.MaxContextTokens, ExcerptLength: cfg.RAG.ExcerptLength},
	)
	a.Chat = chat.NewService(st.chat, composer)

	slog.Info("application assembled",
		"store", cfg.Store.Backend,
		"queue", cfg.Queue.Backend,
		"storage", cfg.Storage.Backend,
		"llm_provider", cfg.LLM.DefaultProvider,
		"embedding_provider", cfg.LLM.EmbeddingProvider,
	)
	return a, nil
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	cfg := a.Config
	switch cfg.Store.Backend {
	case "sqlite":
		db, err := database.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.ReadyChecks["database"] = db.PingContext
		return &stores{
			docs:       sqlite.NewDocumentRepository(db),
			chunks:     sqlite.NewChunkRepository(db),
			chat:       sqlite.NewChatRepository(db),
			embeddings: vectorstore.NewSQLiteStore(db),
		}, nil
	default:
		pool, err := database.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := database.RunMigrations(ctx, pool, os.DirFS(cfg.Database.MigrationsPath)); err != nil {
			return nil, err
		}
		a.ReadyChecks["database"] = pool.Ping
		return &stores{
			docs:       postgres.NewDocumentRepository(pool),
			chunks:     postgres.NewChunkRepository(pool),
			chat:       postgres.NewChatRepository(pool),
			embeddings: vectorstore.NewPgVectorStore(pool),
		}, nil
	}
}

func openStorage(cfg config.StorageConfig) (storage.Storage, error) {
	if cfg.Backend == "supabase" {
		return storage.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Bucket), nil
	}
	s, err := storage.NewLocalStorage(cfg.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("open local storage: %w", err)
	}
	return s, nil
}

// tokenCounter prefers exact BPE counts and falls back to the word estimate
// for models tiktoken does not know.
func tokenCounter(model string) tokenizer.Counter {
	c, err := tokenizer.NewTiktokenCounter(model)
	if err != nil {
		slog.Warn("exact token counting unavailable, using estimate", "model", model, "error", err)
		return tokenizer.EstimateCounter{}
	}
	return c
}

// Close drains the in-process pool, then closes connections in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Pool != nil {
		if err := a.Pool.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain processing pool: %w", err))
		}
	}
	errs = append(errs, a.closeAll())
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
