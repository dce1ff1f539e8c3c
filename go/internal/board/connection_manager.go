package board

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager keeps the board sockets of each question and fans
// frames out to them.
type ConnectionManager struct {
	questionConnections map[string]map[*Connection]bool
	latest              map[string][]byte // newest frame per question, replayed on connect
	mu                  sync.RWMutex

	upgrader    websocket.Upgrader
	config      ConnectionConfig
	broadcastCh chan broadcastMessage
}

// Connection is one board socket.
type Connection struct {
	ID         string
	QuestionID string
	Conn       *websocket.Conn
	Send       chan []byte
	Manager    *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds websocket settings.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	QuestionID string
	Type       FrameType
	Data       []byte
}

// Stats describes the open sockets.
type Stats struct {
	TotalConnections    int            `json:"total_connections"`
	ActiveQuestions     int            `json:"active_questions"`
	QuestionConnections map[string]int `json:"question_connections"`
}

// DefaultConnectionConfig returns the board's websocket defaults.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			// The board is a local display surface
			return true
		},
	}
}

// NewConnectionManager creates a manager. Frames are delivered only while
// Start runs.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 1
	}
	return &ConnectionManager{
		questionConnections: make(map[string]map[*Connection]bool),
		latest:              make(map[string][]byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start processes broadcasts until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("board connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("board connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a board socket for
// questionID. The newest frame of the question, if any, is sent first.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, questionID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.NewString(),
		QuestionID:  questionID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("question_id", questionID).
		Msg("board connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.questionConnections[conn.QuestionID] == nil {
		cm.questionConnections[conn.QuestionID] = make(map[*Connection]bool)
	}
	cm.questionConnections[conn.QuestionID][conn] = true
	if frame, ok := cm.latest[conn.QuestionID]; ok {
		conn.Send <- frame
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("question_id", conn.QuestionID).
		Int("total_connections", len(cm.questionConnections[conn.QuestionID])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, ok := cm.questionConnections[conn.QuestionID]
	if !ok {
		return
	}
	if _, ok := connections[conn]; !ok {
		return
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.questionConnections, conn.QuestionID)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("question_id", conn.QuestionID).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.questionConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// Broadcast queues a frame for every socket of its question. It never
// blocks; a full queue drops the frame.
func (cm *ConnectionManager) Broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("question_id", frame.QuestionID).Msg("failed to marshal board frame")
		return
	}

	cm.mu.Lock()
	cm.latest[frame.QuestionID] = data
	cm.mu.Unlock()

	select {
	case cm.broadcastCh <- broadcastMessage{QuestionID: frame.QuestionID, Type: frame.Type, Data: data}:
	default:
		log.Warn().Str("question_id", frame.QuestionID).Msg("broadcast channel full, dropping frame")
	}
}

// Forget drops the replay frame of a finished question.
func (cm *ConnectionManager) Forget(questionID string) {
	cm.mu.Lock()
	delete(cm.latest, questionID)
	cm.mu.Unlock()
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	// Sends happen under the read lock so a concurrent unregister cannot
	// close a channel mid-send.
	cm.mu.RLock()
	connections := cm.questionConnections[message.QuestionID]
	total := len(connections)
	sent := 0
	var slow []*Connection
	for conn := range connections {
		select {
		case conn.Send <- message.Data:
			sent++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	if total > 0 {
		log.Debug().
			Str("frame_type", string(message.Type)).
			Str("question_id", message.QuestionID).
			Int("connections", sent).
			Msg("frame broadcasted")
	}
}

// Stats returns the open socket counts.
func (cm *ConnectionManager) Stats() Stats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := Stats{QuestionConnections: make(map[string]int, len(cm.questionConnections))}
	for questionID, connections := range cm.questionConnections {
		stats.TotalConnections += len(connections)
		stats.QuestionConnections[questionID] = len(connections)
	}
	stats.ActiveQuestions = len(cm.questionConnections)
	return stats
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write board frame")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump only keeps the read deadline alive; the board sends nothing
// the server acts on.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected board close error")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
