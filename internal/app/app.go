// Package app assembles the configured ledger backend, content providers and
// publishing channels into a runnable orchestrator, and hosts the trigger
// API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/httplog/v2"
	"golang.org/x/sync/errgroup"

	api "github.com/vadimbarashkov/affiliate-publisher/internal/api/http"
	"github.com/vadimbarashkov/affiliate-publisher/internal/channel"
	"github.com/vadimbarashkov/affiliate-publisher/internal/channel/pinterest"
	"github.com/vadimbarashkov/affiliate-publisher/internal/channel/wordpress"
	"github.com/vadimbarashkov/affiliate-publisher/internal/composer"
	"github.com/vadimbarashkov/affiliate-publisher/internal/config"
	"github.com/vadimbarashkov/affiliate-publisher/internal/fetch"
	"github.com/vadimbarashkov/affiliate-publisher/internal/ledger"
	"github.com/vadimbarashkov/affiliate-publisher/internal/llm"
	"github.com/vadimbarashkov/affiliate-publisher/internal/media"
	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
	"github.com/vadimbarashkov/affiliate-publisher/internal/orchestrator"
	"github.com/vadimbarashkov/affiliate-publisher/internal/source"
	"github.com/vadimbarashkov/affiliate-publisher/internal/source/catalog"
	"github.com/vadimbarashkov/affiliate-publisher/internal/source/static"
	"github.com/vadimbarashkov/affiliate-publisher/internal/storage"
	filestore "github.com/vadimbarashkov/affiliate-publisher/internal/storage/file"
	pgstore "github.com/vadimbarashkov/affiliate-publisher/internal/storage/postgres"
	s3store "github.com/vadimbarashkov/affiliate-publisher/internal/storage/s3"
	"github.com/vadimbarashkov/affiliate-publisher/pkg/postgres"
)

// Run executes a single publishing run and exits.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, seeds []models.AffiliateLink) error {
	const op = "app.Run"

	orch, cleanup, err := buildOrchestrator(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer cleanup()

	report, err := orch.Run(ctx, seeds)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("run complete",
		slog.String("run_id", report.RunID),
		slog.Int("published", report.LinksPublished),
		slog.Int("exhausted", report.LinksExhausted))

	return nil
}

// Serve hosts the trigger API until the context is cancelled.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	const op = "app.Serve"

	orch, cleanup, err := buildOrchestrator(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer cleanup()

	httpLogger := httplog.NewLogger("affiliate-publisher", httplog.Options{
		JSON:    cfg.Env == config.EnvProd,
		Concise: cfg.Env != config.EnvProd,
	})

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        api.NewRouter(httpLogger, orch),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}

// Purge clears the used-link ledger so every link becomes eligible again.
func Purge(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	const op = "app.Purge"

	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer cleanup()

	if err := ledger.New(store, cfg.Ledger.Key, logger).Purge(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("ledger purged", slog.String("backend", cfg.Ledger.Backend))

	return nil
}

func buildOrchestrator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*orchestrator.Orchestrator, func(), error) {
	const op = "app.buildOrchestrator"

	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	policy := fetch.Policy{
		MaxRetries:   cfg.Run.Retry.MaxRetries,
		InitialDelay: cfg.Run.Retry.InitialDelay,
		MaxDelay:     cfg.Run.Retry.MaxDelay,
	}

	llmClient := buildLLM(ctx, cfg, logger)

	searcher := media.NewClient(media.Config{
		BaseURL: cfg.Media.BaseURL,
		APIKey:  cfg.Media.APIKey,
		Size:    cfg.Media.Size,
	}, policy, logger)

	comp := composer.New(llmClient, searcher, policy, composer.Config{
		ForbiddenTerms: cfg.Run.ForbiddenTerms,
		KeywordLimit:   cfg.Run.KeywordLimit,
	}, logger)

	led := ledger.New(store, cfg.Ledger.Key, logger)

	orch := orchestrator.New(
		buildSources(cfg, policy, logger),
		buildChannels(cfg, llmClient, policy, logger),
		comp,
		led,
		orchestrator.Config{
			RunLimit:   cfg.Run.Limit,
			TimeBudget: cfg.Run.TimeBudget,
		},
		logger,
	)

	return orch, cleanup, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	const op = "app.buildStore"

	switch cfg.Ledger.Backend {
	case "postgres":
		db, err := postgres.New(
			ctx,
			cfg.Ledger.Postgres.DSN(),
			postgres.WithConnMaxIdleTime(cfg.Ledger.Postgres.ConnMaxIdleTime),
			postgres.WithConnMaxLifetime(cfg.Ledger.Postgres.ConnMaxLifetime),
			postgres.WithMaxIdleConns(cfg.Ledger.Postgres.MaxIdleConns),
			postgres.WithMaxOpenConns(cfg.Ledger.Postgres.MaxOpenConns),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: failed to connect to database: %w", op, err)
		}

		if err := postgres.RunMigrations("file://migrations", cfg.Ledger.Postgres.DSN()); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("%s: failed to run migrations: %w", op, err)
		}

		return pgstore.New(db), func() { db.Close() }, nil

	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Ledger.S3.Region))
		if err != nil {
			return nil, nil, fmt.Errorf("%s: failed to load aws config: %w", op, err)
		}

		return s3store.New(awss3.NewFromConfig(awsCfg), cfg.Ledger.S3.Bucket), func() {}, nil

	default:
		store, err := filestore.New(cfg.Ledger.File.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: failed to init file store: %w", op, err)
		}

		return store, func() {}, nil
	}
}

func buildLLM(ctx context.Context, cfg *config.Config, logger *slog.Logger) llm.Client {
	if cfg.LLM.APIKey == "" {
		logger.Warn("llm api key not configured, content generation falls back to templates")
		return llm.Disabled{}
	}

	client, err := llm.NewGenAI(ctx, cfg.LLM.APIKey, cfg.LLM.Model, logger)
	if err != nil {
		logger.Warn("llm client init failed, content generation falls back to templates",
			slog.Any("err", err))
		return llm.Disabled{}
	}

	return client
}

func buildSources(cfg *config.Config, policy fetch.Policy, logger *slog.Logger) []source.Source {
	var sources []source.Source

	if len(cfg.Sources.Static) > 0 {
		sources = append(sources, static.New("static", cfg.Sources.Static))
	}

	if cfg.Sources.Catalog.APIKey != "" && len(cfg.Sources.Catalog.Keywords) > 0 {
		sources = append(sources, catalog.New(catalog.Config{
			BaseURL:    cfg.Sources.Catalog.BaseURL,
			APIKey:     cfg.Sources.Catalog.APIKey,
			PartnerTag: cfg.Sources.Catalog.PartnerTag,
			Keywords:   cfg.Sources.Catalog.Keywords,
		}, policy, logger))
	}

	return sources
}

func buildChannels(cfg *config.Config, llmClient llm.Client, policy fetch.Policy, logger *slog.Logger) []channel.Publisher {
	var channels []channel.Publisher

	if cfg.Channels.Wordpress.APIURL != "" && cfg.Channels.Wordpress.Token != "" {
		channels = append(channels, wordpress.New(wordpress.Config{
			APIURL:            cfg.Channels.Wordpress.APIURL,
			Token:             cfg.Channels.Wordpress.Token,
			PendingReview:     cfg.Channels.Wordpress.PendingReview,
			TitleMaxLen:       cfg.Channels.Wordpress.TitleMaxLen,
			DescriptionMaxLen: cfg.Channels.Wordpress.DescriptionMaxLen,
		}, policy, logger))
	} else {
		logger.Warn("wordpress credentials not configured, channel disabled")
	}

	if cfg.Channels.Pinterest.AccessToken != "" {
		channels = append(channels, pinterest.New(pinterest.Config{
			BaseURL:           cfg.Channels.Pinterest.BaseURL,
			AccessToken:       cfg.Channels.Pinterest.AccessToken,
			TitleMaxLen:       cfg.Channels.Pinterest.TitleMaxLen,
			DescriptionMaxLen: cfg.Channels.Pinterest.DescriptionMaxLen,
		}, llmClient, policy, logger))
	} else {
		logger.Warn("pinterest credentials not configured, channel disabled")
	}

	return channels
}
