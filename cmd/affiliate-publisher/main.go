package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vadimbarashkov/affiliate-publisher/internal/app"
	"github.com/vadimbarashkov/affiliate-publisher/internal/config"
	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "affiliate-publisher",
		Short:         "Publishes affiliate links across channels, exactly once per link",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("CONFIG_PATH", "config.yml"), "path to the config file")

	cmd.AddCommand(runCmd(&configPath))
	cmd.AddCommand(serveCmd(&configPath))
	cmd.AddCommand(purgeCmd(&configPath))

	return cmd
}

func runCmd(configPath *string) *cobra.Command {
	var seedURLs []string
	var seedCategory string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one publishing run and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}

			var seeds []models.AffiliateLink
			for _, u := range seedURLs {
				seeds = append(seeds, models.AffiliateLink{
					URL:        u,
					Categories: []string{seedCategory},
				})
			}

			return app.Run(cmd.Context(), cfg, logger, seeds)
		},
	}

	cmd.Flags().StringSliceVar(&seedURLs, "link", nil, "seed affiliate link, repeatable")
	cmd.Flags().StringVar(&seedCategory, "category", "Others", "category applied to seed links")

	return cmd
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Host the HTTP trigger API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}

			logger.Info("starting server", slog.String("addr", cfg.HTTPServer.Addr()))

			return app.Serve(cmd.Context(), cfg, logger)
		},
	}
}

func purgeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete the used-link ledger so every link becomes eligible again",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}

			return app.Purge(cmd.Context(), cfg, logger)
		},
	}
}

func setup(configPath string) (*config.Config, *slog.Logger, error) {
	// Missing .env is fine; the config file may not reference the environment.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	return cfg, newLogger(cfg.Env), nil
}

func newLogger(env string) *slog.Logger {
	switch env {
	case config.EnvProd, config.EnvStage:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
