package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"aistudio/internal/adapter/repo"
	"aistudio/internal/batch"
	"aistudio/internal/domain"
	"aistudio/internal/http/handlers"
	httpapi "aistudio/internal/http/httpapi"
	"aistudio/internal/infra"
	"aistudio/internal/storage"
	"aistudio/internal/stream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := cfg.AttemptBudget(); err != nil {
		logger.Fatal().Err(err).Msg("api: invalid attempt budget")
	}

	reportDir, err := filepath.Abs(cfg.ReportDir)
	if err != nil {
		reportDir = cfg.ReportDir
	}
	reports, err := storage.NewFileStore(reportDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure report store")
	}

	var history domain.BatchRepository
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: db connection failed")
		}
		defer pool.Close()
		batches := repo.NewBatchRepository(infra.NewSQLRunner(pool, logger))
		if err := batches.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("api: failed to prepare batch tables")
		}
		history = batches
	} else {
		logger.Info().Msg("api: DATABASE_URL not set, batch history is kept in reports only")
	}

	opener := stream.NewClient(stream.Options{
		BaseURL: cfg.GeneratorBaseURL,
		Method:  cfg.StreamMethod,
		Logger:  &logger,
	})
	seq := batch.New(opener, batch.Options{
		ImageDelay:     cfg.ImageDelay,
		RetryDelay:     cfg.RetryDelay,
		AttemptTimeout: cfg.AttemptTimeout,
		Logger:         &logger,
		Repository:     history,
		Reports:        reports,
		Sinks: batch.Sinks{
			Log: func(line string) { logger.Debug().Str("source", "generator").Msg(line) },
			ImageDone: func(idx int, out domain.AttemptOutcome) {
				logger.Info().Int("image", idx).Bool("ok", out.OK).Str("path", out.ArtifactPath).Msg("api: image done")
			},
		},
	})

	app := handlers.NewApp(ctx, seq, cfg.MaxAttemptsPerImage, &logger)
	app.History = history
	app.Reports = reports

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(ctx, cfg, router, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("generator", cfg.GeneratorBaseURL).Msgf("API listening on %s", server.Addr())
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		seq.Wait()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("api: stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
