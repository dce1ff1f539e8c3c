package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/livequestion/go/internal/board"
	"github.com/mcdev12/livequestion/go/internal/brainstorm"
	"github.com/mcdev12/livequestion/go/internal/config"
	"github.com/mcdev12/livequestion/go/internal/presenter"
	"github.com/mcdev12/livequestion/go/internal/relay"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Relay     *relay.Client
	Presenter *presenter.Service
	Board     *board.ConnectionManager
	Metrics   *relay.Metrics
}

func setupServices(ctx context.Context, cfg *config.Config, transport relay.Transport) (*Services, error) {
	// Relay client → board bridge → presenter sessions
	metrics, err := relay.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to set up relay metrics: %w", err)
	}
	client := cfg.NewClient(transport,
		relay.WithMetrics(metrics),
		relay.WithPublishErrorHandler(func(err error) {
			log.Error().Err(err).Msg("broadcast lost, audience may be out of sync")
		}),
	)

	opts := []brainstorm.ControllerOption{
		brainstorm.WithRedeliveryDedupe(cfg.Brainstorm.DedupeRedelivery),
	}

	var connections *board.ConnectionManager
	if cfg.Board.Port > 0 {
		connections = board.NewConnectionManager(board.DefaultConnectionConfig())
		opts = append(opts, brainstorm.WithObserver(board.NewBridge(connections, nil)))
	}

	presenterConfig := presenter.Config{
		BrainstormingTimer: cfg.Brainstorm.BrainstormingTimer,
		VotingTimer:        cfg.Brainstorm.VotingTimer,
	}
	if connections != nil {
		presenterConfig.OnRetire = connections.Forget
	}
	svc := presenter.NewService(ctx, client, presenterConfig, opts...)

	return &Services{
		Relay:     client,
		Presenter: svc,
		Board:     connections,
		Metrics:   metrics,
	}, nil
}
