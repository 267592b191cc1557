package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"reelforge/internal/http/handlers"
	httpapi "reelforge/internal/http/httpapi"
	"reelforge/internal/i18n"
	"reelforge/internal/infra"
	"reelforge/internal/infra/geoip"
	"reelforge/internal/infra/google"
	"reelforge/internal/ledger"
	"reelforge/internal/pipeline"
	"reelforge/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api stopped with error")
	}
	logger.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *infra.Config, logger infra.Logger) error {
	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	artifacts, err := storage.New(storage.Config{
		Driver:  cfg.StorageDriver,
		Path:    cfg.StoragePath,
		BaseURL: cfg.StorageBaseURL,
		Bucket:  cfg.S3Bucket,
		Region:  cfg.S3Region,
	})
	if err != nil {
		return err
	}

	providers, err := buildProviders(ctx, cfg, stores.Credentials, artifacts, logger)
	if err != nil {
		return err
	}
	defer providers.Close()

	orch, err := pipeline.New(pipeline.Deps{
		Videos:    stores.Videos,
		Credits:   ledger.New(stores.Users, infra.Component(logger, "ledger")),
		Script:    providers.Script,
		Voice:     providers.Voice,
		Assembler: providers.Assembler,
		Logger:    logger,
	}, pipeline.Config{
		PollInterval:    cfg.AssemblyPollInterval,
		Timeout:         cfg.AssemblyTimeout,
		TimeoutPolicy:   cfg.TimeoutPolicy,
		RefundOnFailure: cfg.RefundOnFailure,
		PoolSize:        cfg.SupervisorPoolSize,
	})
	if err != nil {
		return err
	}
	defer orch.Close()

	if _, err := orch.Resume(ctx); err != nil {
		logger.Error().Err(err).Msg("resume supervision")
	}

	translator, err := i18n.New()
	if err != nil {
		return err
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
		resolver = nil
	}
	defer resolver.Close()

	app := &handlers.App{
		Pipeline:       orch,
		Users:          stores.Users,
		Translator:     translator,
		Logger:         infra.Component(logger, "http"),
		JWTSecret:      cfg.JWTSecret,
		DefaultCredits: cfg.DefaultCredits,
		Checks:         stores.Checks,
	}
	opts := httpapi.Options{
		Logger:          logger,
		JWTSecret:       cfg.JWTSecret,
		DefaultLocale:   cfg.DefaultLocale,
		Languages:       translator.Languages(),
		CountryLookup:   geoip.LookupFunc(resolver),
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	}
	if cfg.GoogleClientID != "" {
		verifier, err := google.NewVerifier(google.Options{
			ClientID: cfg.GoogleClientID,
			OnRefreshError: func(err error) {
				logger.Warn().Err(err).Msg("google signing key refresh failed")
			},
		})
		if err != nil {
			return err
		}
		defer verifier.Close()
		app.Identity = verifier
	}
	if files, ok := artifacts.(*storage.FileStore); ok {
		opts.Static = files.Handler()
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, opts))
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr()).Bool("in_memory", cfg.InMemory()).Msg("API listening")
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	return nil
}
