package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"holdersnap/internal/domain"
	"holdersnap/internal/observability"
)

// WSConfig configures WebSocket source behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSSource implements Source over a gorilla/websocket connection to the
// platform gateway.
type WSSource struct {
	endpoint string
	token    string
	config   WSConfig
	logger   *log.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// events carries decoded interactions to the dispatcher
	events chan Interaction

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// Compile-time interface check.
var _ Source = (*WSSource)(nil)

// NewWSSource connects to the gateway endpoint and identifies with token.
func NewWSSource(ctx context.Context, endpoint, token string, config *WSConfig) (*WSSource, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	s := &WSSource{
		endpoint: endpoint,
		token:    token,
		config:   cfg,
		logger:   log.New(os.Stdout, "[gateway] ", log.LstdFlags|log.Lshortfile),
		events:   make(chan Interaction, 256),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.identify(); err != nil {
		s.connMu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.connMu.Unlock()
		return nil, err
	}

	// Start reader goroutine
	s.wg.Add(1)
	go s.readLoop()

	// Start ping goroutine
	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// Events returns the interaction stream. The channel closes after Close.
func (s *WSSource) Events() <-chan Interaction {
	return s.events
}

// connect establishes the WebSocket connection.
func (s *WSSource) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	// Pong replies to the keepalive pings extend the read deadline, so a
	// quiet interaction stream does not look like a dead connection.
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	s.conn = conn
	return nil
}

// identify authenticates the session. The gateway delivers interactions only
// after a valid identify frame.
func (s *WSSource) identify() error {
	frame := wsOutFrame{
		Op:   opIdentify,
		Data: wsIdentify{Token: s.token},
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("write identify: %w", err)
	}
	return nil
}

// Close closes the connection and the event stream.
func (s *WSSource) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	// The reader must exit before events can close safely.
	s.wg.Wait()
	close(s.events)
	return nil
}

// readLoop reads frames and dispatches interactions until shutdown.
func (s *WSSource) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			// Increase delay for next reconnect (exponential backoff)
			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

// reconnect attempts to reconnect and re-identify.
func (s *WSSource) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	// Wait before reconnecting
	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	// Close existing connection
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	// Attempt reconnect
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	// The session must identify again before interactions resume
	if err := s.identify(); err != nil {
		s.logger.Printf("re-identify after reconnect: %v", err)
		return
	}

	observability.RecordGatewayReconnect()
	s.logger.Printf("reconnected to %s", s.endpoint)
}

// handleMessage processes one incoming frame.
func (s *WSSource) handleMessage(message []byte) {
	var frame wsInFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		s.logger.Printf("dropping unparseable frame: %v", err)
		return
	}

	switch frame.Op {
	case opReady:
		s.logger.Printf("gateway session ready")

	case opInteraction:
		var in wsInteraction
		if err := json.Unmarshal(frame.Data, &in); err != nil {
			s.logger.Printf("dropping malformed interaction: %v", err)
			return
		}
		inter := in.toInteraction()
		observability.RecordInteraction(inter.Kind)

		// Block until delivered - never drop interactions
		select {
		case s.events <- inter:
		case <-s.done:
		}

	case opError:
		var gw wsGatewayError
		if err := json.Unmarshal(frame.Data, &gw); err == nil {
			s.logger.Printf("gateway error: code=%d msg=%s", gw.Code, gw.Message)
		}

	default:
		// Unknown op, ignore
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (s *WSSource) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			s.connMu.Unlock()
		}
	}
}

// Gateway frame ops

const (
	opIdentify    = "identify"
	opReady       = "ready"
	opInteraction = "interaction"
	opError       = "error"
)

// Gateway wire types

type wsOutFrame struct {
	Op   string      `json:"op"`
	Data interface{} `json:"data,omitempty"`
}

type wsInFrame struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

type wsIdentify struct {
	Token string `json:"token"`
}

type wsGatewayError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsInteraction struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Command   string            `json:"command,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
	CustomID  string            `json:"custom_id,omitempty"`
	TenantID  string            `json:"tenant_id"`
	ChannelID string            `json:"channel_id,omitempty"`
	MessageID string            `json:"message_id,omitempty"`
	Actor     wsActor           `json:"actor"`
}

type wsActor struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

func (w wsInteraction) toInteraction() Interaction {
	return Interaction{
		ID:        w.ID,
		Kind:      w.Kind,
		Command:   w.Command,
		Options:   w.Options,
		CustomID:  w.CustomID,
		TenantID:  w.TenantID,
		ChannelID: w.ChannelID,
		MessageID: w.MessageID,
		Actor:     domain.Actor{ID: w.Actor.ID, DisplayName: w.Actor.DisplayName},
	}
}
