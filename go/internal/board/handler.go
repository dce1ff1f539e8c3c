package board

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mcdev12/livequestion/go/internal/relay"
	"github.com/rs/zerolog/log"
)

// Handler serves board sockets and stats.
type Handler struct {
	connectionManager *ConnectionManager
	relayStats        RelayStatsFunc
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// RelayStatsFunc reads the current relay totals.
type RelayStatsFunc func(ctx context.Context) (relay.CounterSnapshot, error)

// WithRelayStats adds the relay counters to the stats response.
func WithRelayStats(fn RelayStatsFunc) HandlerOption {
	return func(h *Handler) { h.relayStats = fn }
}

// NewHandler creates a handler for cm.
func NewHandler(cm *ConnectionManager, opts ...HandlerOption) *Handler {
	h := &Handler{connectionManager: cm}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type statsResponse struct {
	Stats
	Relay *relay.CounterSnapshot `json:"relay,omitempty"`
}

// HandleBoardConnection upgrades /ws/board?question_id=... requests.
func (h *Handler) HandleBoardConnection(w http.ResponseWriter, r *http.Request) {
	questionID := r.URL.Query().Get("question_id")
	if questionID == "" {
		http.Error(w, "question_id is required", http.StatusBadRequest)
		return
	}

	// On failure the upgrader has already replied to the client.
	if err := h.connectionManager.UpgradeConnection(w, r, questionID); err != nil {
		log.Error().Err(err).Str("question_id", questionID).Msg("failed to open board connection")
	}
}

// HandleStats reports connection counts, and relay counters when
// configured, as JSON.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Stats: h.connectionManager.Stats()}
	if h.relayStats != nil {
		snapshot, err := h.relayStats(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("failed to read relay stats")
			http.Error(w, "relay stats unavailable", http.StatusInternalServerError)
			return
		}
		resp.Relay = &snapshot
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to write board stats")
	}
}

// RegisterRoutes registers the board routes and a health check.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/board", h.HandleBoardConnection)
	mux.HandleFunc("/board/stats", h.HandleStats)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
