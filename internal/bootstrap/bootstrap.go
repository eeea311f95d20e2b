package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/persona-rag/internal/config"
	"github.com/kirillkom/persona-rag/internal/core/domain"
	"github.com/kirillkom/persona-rag/internal/core/modelref"
	"github.com/kirillkom/persona-rag/internal/core/ports"
	"github.com/kirillkom/persona-rag/internal/core/usecase"
	"github.com/kirillkom/persona-rag/internal/infrastructure/cache/filecache"
	"github.com/kirillkom/persona-rag/internal/infrastructure/catalog"
	"github.com/kirillkom/persona-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/persona-rag/internal/infrastructure/llm/crossencoder"
	"github.com/kirillkom/persona-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/persona-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/persona-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/persona-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/persona-rag/internal/observability/metrics"
)

const serviceName = "personactl"

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.RetrievalMetrics

	Personas ports.PersonaSource
	Catalog  ports.CharacterCatalog
	Store    *usecase.PersonaStore
	Engine   *usecase.RetrievalEngine
	Sessions *usecase.SessionRegistry

	closeFn func() error
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	facets, err := cfg.RetrievalParams()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*App, error) {
		_ = closeAll()
		return nil, err
	}

	observer := metrics.NewRetrievalMetrics(serviceName)
	executor := resilience.NewExecutor(resilienceConfig(cfg), logger, observer)
	timeout := time.Duration(cfg.ModelTimeoutSeconds) * time.Second

	personaStorage, err := localfs.New(cfg.PersonasDir)
	if err != nil {
		return fail(fmt.Errorf("init persona storage: %w", err))
	}
	personas := localfs.NewPersonaSource(personaStorage)

	cache, db, err := openCache(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	if db != nil {
		closers = append(closers, db.Close)
	}

	// Without a character config dir identities resolve straight to persona files.
	var characters ports.CharacterCatalog
	if cfg.CharacterConfigsDir != "" {
		characters = catalog.New(cfg.CharacterConfigsDir)
	}

	chunker, err := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return fail(err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.EmbedModel, ollama.Options{
		Timeout:  timeout,
		Executor: executor,
	})
	embedHandle := modelref.Open[ports.Embedder](cfg.EmbedModel, func() (ports.Embedder, error) {
		embedder, err := ollama.OpenEmbedder(probeCtx, ollamaClient)
		if err != nil {
			return nil, err
		}
		logger.Info("embedding_model_ready", "model", embedder.Model(), "dimension", embedder.Dimension())
		return embedder, nil
	}, nil)
	closers = append(closers, embedHandle.Close)

	var rerankHandle *modelref.Handle[ports.Reranker]
	if cfg.RerankEnabled() {
		rerankClient := crossencoder.New(cfg.RerankURL, cfg.RerankModel, crossencoder.Options{
			Timeout:  timeout,
			Executor: executor,
		})
		rerankHandle = modelref.Open[ports.Reranker](cfg.RerankModel, func() (ports.Reranker, error) {
			reranker, err := crossencoder.Open(probeCtx, rerankClient)
			if err != nil {
				return nil, err
			}
			logger.Info("rerank_model_ready", "model", reranker.Model())
			return reranker, nil
		}, nil)
		closers = append(closers, rerankHandle.Close)
	}

	store := usecase.NewPersonaStore(personas, cache, chunker, embedHandle, usecase.PersonaStoreOptions{
		CacheEnabled: cfg.CacheEnabled,
		Observer:     observer,
		Logger:       logger,
	})
	closers = append(closers, store.Close)

	engine := usecase.NewRetrievalEngine(rerankHandle, usecase.RetrievalOptions{
		Observer: observer,
		Logger:   logger,
	})
	closers = append(closers, engine.Close)

	sessions, err := usecase.NewSessionRegistry(cfg.SessionCacheSize, func() *usecase.Session {
		return usecase.NewSession(store, engine, usecase.SessionOptions{
			Catalog: characters,
			Facets:  facets,
			Logger:  logger,
		})
	}, logger)
	if err != nil {
		return fail(err)
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observer,

		Personas: personas,
		Catalog:  characters,
		Store:    store,
		Engine:   engine,
		Sessions: sessions,

		closeFn: closeAll,
	}, nil
}

// openCache also returns the postgres pool, if one was opened, so the caller can close it.
func openCache(ctx context.Context, cfg config.Config) (ports.EmbeddingCache, *sql.DB, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendPostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewEmbeddingCacheRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, db, nil
	default:
		storage, err := localfs.New(cfg.CacheDir)
		if err != nil {
			return nil, nil, fmt.Errorf("init cache storage: %w", err)
		}
		return filecache.New(storage), nil, nil
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	if cfg.ModelRetryMaxAttempts > 0 {
		rc.Retry.MaxAttempts = cfg.ModelRetryMaxAttempts
	}
	rc.Breaker.Enabled = cfg.ModelBreakerEnabled
	if cfg.ModelBreakerMinRequest > 0 {
		rc.Breaker.MinRequests = uint32(cfg.ModelBreakerMinRequest)
	}
	rc.Rate.PerSecond = cfg.ModelRPS
	return rc
}

// EmbedderErr reports why the embedding model is unavailable, if it is.
func (a *App) EmbedderErr() error { return a.Store.Ready() }

// RerankerErr reports why the configured reranker is unavailable, if it is.
func (a *App) RerankerErr() error { return a.Engine.Ready() }

func (a *App) Session(user string) ports.PersonaSession {
	return a.Sessions.Get(user)
}

func (a *App) ListPersonas(ctx context.Context) ([]string, error) {
	return a.Personas.List(ctx)
}

// ListCharacters returns nil when no character catalog is configured.
func (a *App) ListCharacters(ctx context.Context) ([]string, error) {
	if a.Catalog == nil {
		return nil, nil
	}
	return a.Catalog.List(ctx)
}

// Warm builds or reads the embedding cache for identity without binding it to a session.
func (a *App) Warm(ctx context.Context, identity string) (*domain.PersonaIndex, error) {
	target := identity
	if a.Catalog != nil {
		character, err := a.Catalog.Lookup(ctx, identity)
		if err != nil {
			return nil, err
		}
		if character != nil {
			target = character.PersonaFile
		}
	}
	return a.Store.Load(ctx, target)
}

func (a *App) Close() error {
	if a.closeFn == nil {
		return nil
	}
	return a.closeFn()
}
