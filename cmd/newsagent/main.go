package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/app"
	"github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/platform/config"
	db "github.com/claymore666/liga-hessen-news-aggregator-sub000/internal/storage"
)

func main() {
	mode := flag.String("mode", "serve", "Service mode (serve, fetch, worker, briefing, migrate)")
	once := flag.Bool("once", false, "Run once and exit (for fetch mode)")
	minPriority := flag.String("min-priority", "medium", "Minimum priority for briefing mode")
	hoursBack := flag.Int("hours-back", 24, "Selection window in hours for briefing mode")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.PostgresDSN, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	if *mode == "migrate" {
		logger.Info().Msg("migrations applied")

		return
	}

	application := app.New(cfg, database, &logger)

	if *mode == "serve" || *mode == "worker" || (*mode == "fetch" && !*once) {
		go func() {
			if err := application.StartHealthServer(ctx); err != nil {
				logger.Error().Err(err).Msg("health check server error")
			}
		}()
	}

	if err := runMode(ctx, application, *mode, *once, *minPriority, *hoursBack); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")

			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, mode string, once bool, minPriority string, hoursBack int) error {
	switch mode {
	case "serve":
		return application.RunServe(ctx)
	case "fetch":
		return application.RunFetch(ctx, once)
	case "worker":
		return application.RunWorker(ctx)
	case "briefing":
		return application.RunBriefing(ctx, minPriority, hoursBack)
	default:
		log.Fatalf("Usage: %s --mode=[serve|fetch|worker|briefing|migrate]", os.Args[0])

		return nil
	}
}
