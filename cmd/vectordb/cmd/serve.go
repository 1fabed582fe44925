package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ishitachakravarthy/vector-db/internal/config"
	"github.com/ishitachakravarthy/vector-db/internal/embed"
	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
	"github.com/ishitachakravarthy/vector-db/internal/index"
	"github.com/ishitachakravarthy/vector-db/internal/logging"
	"github.com/ishitachakravarthy/vector-db/internal/scheduler"
	"github.com/ishitachakravarthy/vector-db/internal/server"
	"github.com/ishitachakravarthy/vector-db/internal/service"
	"github.com/ishitachakravarthy/vector-db/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

// newEmbedder builds the configured embedder chain:
// provider -> retry -> cache.
func newEmbedder(cfg config.EmbeddingConfig) (embed.Embedder, error) {
	var base embed.Embedder
	switch cfg.Provider {
	case "static":
		base = embed.NewStaticEmbedder()
	default:
		cohere, err := embed.NewCohereEmbedder(embed.CohereConfig{
			Host:   cfg.Host,
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
		})
		if err != nil {
			return nil, err
		}
		base = cohere
	}

	retrying := embed.NewRetryingEmbedder(base, vecerr.DefaultRetryConfig())
	return embed.NewCachedEmbedder(retrying, cfg.CacheSize), nil
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, logCloser, err := logging.New(logging.Options{
		Level: cfg.Logging.Level,
		Path:  cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()
	slog.SetDefault(logger)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	sched := scheduler.New(scheduler.Config{
		MaxConcurrent: cfg.Server.MaxConcurrent,
		Logger:        logger,
	})
	defer sched.Close()

	params := index.Params{
		NClusters:      cfg.Index.NClusters,
		NProbe:         cfg.Index.NProbe,
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
	}
	indexes := service.NewIndexService(st, embedder, params, logger)

	handler := server.New(
		service.NewLibraryService(st, sched, indexes, logger),
		service.NewDocumentService(st, sched, indexes, logger),
		service.NewChunkService(st, sched, indexes, embedder, logger),
		sched,
		logger,
	)

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: handler,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("listening", slog.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
