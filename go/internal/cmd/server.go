package main

import (
	"fmt"
	"net/http"

	"github.com/mcdev12/livequestion/go/internal/board"
	"github.com/mcdev12/livequestion/go/internal/relay"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(port int, connections *board.ConnectionManager, metrics *relay.Metrics) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Board sockets, stats and health check
	board.NewHandler(connections, board.WithRelayStats(metrics.Snapshot)).RegisterRoutes(mux)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}
