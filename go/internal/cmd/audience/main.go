package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mcdev12/livequestion/go/internal/audience"
	"github.com/mcdev12/livequestion/go/internal/brainstorm"
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
	if opts.group != "" {
		cfg.Group = opts.group
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(cfg.Level())

	transport, closer, err := cfg.NewTransport()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up relay")
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := cfg.NewClient(transport)
	printer := &stagePrinter{out: os.Stdout}
	svc := audience.NewService(ctx, client, brainstorm.WithChangeHook(printer.print))
	if err := svc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to join group")
	}
	log.Info().Str("group", cfg.Group).Msg("joined group")

	consoleDone := make(chan error, 1)
	go func() { consoleDone <- runConsole(ctx, os.Stdin, os.Stdout, svc) }()

	select {
	case <-ctx.Done():
	case err := <-consoleDone:
		if err != nil {
			log.Error().Err(err).Msg("console failed")
		}
	}

	svc.Close()
	client.Close()
}
