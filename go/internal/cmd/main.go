package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/livequestion/go/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("invalid flags")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(cfg.Level())

	log.Info().
		Str("group", cfg.Group).
		Str("backend", cfg.Relay.Backend).
		Int("board_port", cfg.Board.Port).
		Msg("starting presenter")

	transport, closer, err := cfg.NewTransport()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up relay")
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	services, err := setupServices(ctx, cfg, transport)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	if err := services.Presenter.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start presenter")
	}

	var server *http.Server
	if services.Board != nil {
		go services.Board.Start(ctx)
		server = setupServer(cfg.Board.Port, services.Board, services.Metrics)
		go func() {
			log.Info().Str("addr", server.Addr).Msg("board server starting")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("board server failed")
			}
		}()
	}

	if opts.question != "" {
		values, err := url.ParseQuery(opts.question)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid question query")
		}
		if _, err := services.Presenter.BootstrapQuery(ctx, values); err != nil {
			log.Fatal().Err(err).Msg("failed to bootstrap question")
		}
	}

	consoleDone := make(chan error, 1)
	go func() { consoleDone <- runConsole(ctx, os.Stdin, os.Stdout, services.Presenter) }()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-consoleDone:
		if err != nil {
			log.Error().Err(err).Msg("console failed")
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("board server shutdown failed")
		}
	}
	services.Presenter.Close()
	// Waits for in-flight broadcasts
	services.Relay.Close()
	if err := services.Metrics.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics shutdown failed")
	}
	cancel()

	log.Info().Msg("presenter shutdown complete")
}
