package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"tickstream/src/interfaces"
	"tickstream/src/logger"
	"tickstream/src/models"
	"tickstream/src/utils"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	// Reconnect backoff bounds. The feed is silent off-hours, so while every
	// tracked market is closed the watchdog probes at the idle interval.
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	idleBackoff    = 60 * time.Second

	// Credential polling while parked (unauthenticated / logged out).
	credentialPoll = 2 * time.Second

	feedReadWait  = 40 * time.Second
	feedWriteWait = 5 * time.Second

	tickBufferSize = 4096
)

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

// Session owns the websocket connection to the brokerage push feed. It runs a
// watchdog goroutine that keeps the connection alive (with bounded
// exponential backoff), resubscribes the recorded token set after every
// reconnect and emits parsed ticks on a buffered channel. Tick delivery
// never blocks: when the consumer falls behind, overflow ticks are dropped.
type Session struct {
	Config    *models.MConfig
	Logger    *logger.Logger
	Broker    interfaces.IBrokerSession
	Scheduler *utils.MarketScheduler

	ticks chan models.MTick

	// onAuthError is invoked once per detected credential failure so the
	// engine can clear caches and subscription state.
	onAuthError func()

	mu         sync.Mutex
	conn       *websocket.Conn
	state      models.FeedState
	subscribed map[int64]struct{}

	isRunning bool
}

// -----------------------------------------------------------------------------

func NewSession(cfg *models.MConfig, broker interfaces.IBrokerSession, scheduler *utils.MarketScheduler, log *logger.Logger) *Session {
	return &Session{
		Config:     cfg,
		Logger:     log,
		Broker:     broker,
		Scheduler:  scheduler,
		ticks:      make(chan models.MTick, tickBufferSize),
		state:      models.FeedDisconnected,
		subscribed: make(map[int64]struct{}),
	}
}

// -----------------------------------------------------------------------------

// SetAuthErrorHandler installs the engine's auth-failure callback. Must be
// called before Start.
func (s *Session) SetAuthErrorHandler(fn func()) {
	s.onAuthError = fn
}

// -----------------------------------------------------------------------------

// Ticks is the outbound channel of parsed ticks.
func (s *Session) Ticks() <-chan models.MTick {
	return s.ticks
}

// -----------------------------------------------------------------------------

// State returns the current connection state.
func (s *Session) State() models.FeedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// -----------------------------------------------------------------------------

// Start launches the connection watchdog.
func (s *Session) Start(ctx context.Context, wg *sync.WaitGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("feed session is already running")
	}
	s.isRunning = true

	wg.Add(1)
	go s.watchdog(ctx, wg)
	s.Logger.Info("Feed session started")
	return nil
}

// -----------------------------------------------------------------------------

// Subscribe records tokens and, when connected, asks the feed to stream
// them in full mode. Recorded tokens survive reconnects.
func (s *Session) Subscribe(tokens []int64) error {
	if len(tokens) == 0 {
		return nil
	}

	s.mu.Lock()
	conn := s.conn
	connected := s.state == models.FeedConnected
	s.mu.Unlock()

	if connected && conn != nil {
		if err := s.sendCommand(conn, "subscribe", tokens); err != nil {
			return err
		}
		if err := s.sendModeCommand(conn, "full", tokens); err != nil {
			return err
		}
	}

	s.mu.Lock()
	for _, t := range tokens {
		s.subscribed[t] = struct{}{}
	}
	s.mu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------

// Unsubscribe stops streaming for the given tokens.
func (s *Session) Unsubscribe(tokens []int64) error {
	if len(tokens) == 0 {
		return nil
	}

	s.mu.Lock()
	conn := s.conn
	connected := s.state == models.FeedConnected
	s.mu.Unlock()

	if connected && conn != nil {
		if err := s.sendCommand(conn, "unsubscribe", tokens); err != nil {
			return err
		}
	}

	s.mu.Lock()
	for _, t := range tokens {
		delete(s.subscribed, t)
	}
	s.mu.Unlock()
	return nil
}

// -----------------------------------------------------------------------------

// MarkUnauthenticated parks the feed until a fresh credential exchange: the
// connection is closed, the recorded subscriptions dropped, and the watchdog
// waits for the broker session to become authenticated again.
func (s *Session) MarkUnauthenticated() {
	s.mu.Lock()
	s.state = models.FeedUnauthenticated
	s.subscribed = make(map[int64]struct{})
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.Logger.Warning("Feed marked unauthenticated; waiting for new credentials")
}

// -----------------------------------------------------------------------------
// Watchdog
// -----------------------------------------------------------------------------

func (s *Session) watchdog(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer s.closeConn()

	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		if !s.Broker.IsAuthenticated() {
			if !sleepCtx(ctx, credentialPoll) {
				return
			}
			continue
		}

		// New credentials clear a parked session.
		s.mu.Lock()
		s.state = models.FeedConnecting
		s.mu.Unlock()

		conn, err := s.dial(ctx)
		if err != nil {
			if isHandshakeAuthError(err) {
				s.handleAuthFailure("handshake rejected: " + err.Error())
				continue
			}

			s.mu.Lock()
			s.state = models.FeedDisconnected
			s.mu.Unlock()

			wait := backoff
			if !s.Scheduler.AnyMarketOpen() {
				wait = idleBackoff
			}
			s.Logger.Warning("Feed connect failed: %v (retrying in %v)", err, wait)
			if !sleepCtx(ctx, wait) {
				return
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = initialBackoff

		s.mu.Lock()
		s.conn = conn
		s.state = models.FeedConnected
		s.mu.Unlock()
		s.Logger.Info("Feed connected")

		// The feed does not remember subscriptions across reconnects.
		s.resubscribe(conn)

		s.readLoop(ctx, conn)

		s.mu.Lock()
		if s.state == models.FeedConnected {
			s.state = models.FeedDisconnected
		}
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}
}

// -----------------------------------------------------------------------------

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	apiKey, accessToken := s.Broker.FeedCredentials()

	u, err := url.Parse(s.Config.Broker.FeedURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("api_key", apiKey)
	q.Set("access_token", accessToken)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized) {
			return nil, fmt.Errorf("auth rejected (status %d): %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return conn, nil
}

// -----------------------------------------------------------------------------

func (s *Session) resubscribe(conn *websocket.Conn) {
	s.mu.Lock()
	tokens := make([]int64, 0, len(s.subscribed))
	for t := range s.subscribed {
		tokens = append(tokens, t)
	}
	s.mu.Unlock()

	if len(tokens) == 0 {
		return
	}

	if err := s.sendCommand(conn, "subscribe", tokens); err != nil {
		s.Logger.Error("Resubscribe failed: %v", err)
		return
	}
	if err := s.sendModeCommand(conn, "full", tokens); err != nil {
		s.Logger.Error("Mode command failed: %v", err)
		return
	}
	s.Logger.Info("Resubscribed %d instruments", len(tokens))
}

// -----------------------------------------------------------------------------

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(feedReadWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(feedReadWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.Logger.Warning("Feed read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(feedReadWait))

		switch msgType {
		case websocket.BinaryMessage:
			s.handleBinary(data)
		case websocket.TextMessage:
			if s.handleText(data) {
				return // auth failure; connection already closed
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (s *Session) handleBinary(data []byte) {
	ticks, err := ParseBinaryTicks(data)
	if err != nil {
		// Malformed pushes are dropped, never fatal.
		s.Logger.Warning("Dropping malformed feed message: %v", err)
		return
	}

	for _, tick := range ticks {
		select {
		case s.ticks <- tick:
		default:
			s.Logger.Warning("Tick buffer full; dropping tick for token %d", tick.Token)
		}
	}
}

// -----------------------------------------------------------------------------

// handleText processes the feed's JSON control frames. Returns true when the
// frame reported an authentication failure.
func (s *Session) handleText(data []byte) bool {
	var msg struct {
		Type string `json:"type"`
		Data string `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		s.Logger.Warning("Dropping malformed control frame: %v", err)
		return false
	}

	if msg.Type == "error" {
		if strings.Contains(msg.Data, "TokenException") || strings.Contains(msg.Data, "403") {
			s.handleAuthFailure(msg.Data)
			return true
		}
		s.Logger.Warning("Feed error frame: %s", msg.Data)
	}
	return false
}

// -----------------------------------------------------------------------------

func (s *Session) handleAuthFailure(reason string) {
	s.Logger.Error("Feed auth failure: %s", reason)
	if s.onAuthError != nil {
		s.onAuthError()
	} else {
		s.MarkUnauthenticated()
	}
}

// -----------------------------------------------------------------------------
// Commands
// -----------------------------------------------------------------------------

func (s *Session) sendCommand(conn *websocket.Conn, action string, tokens []int64) error {
	payload, err := json.Marshal(map[string]interface{}{"a": action, "v": tokens})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// -----------------------------------------------------------------------------

func (s *Session) sendModeCommand(conn *websocket.Conn, mode string, tokens []int64) error {
	payload, err := json.Marshal(map[string]interface{}{"a": "mode", "v": []interface{}{mode, tokens}})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *Session) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.state = models.FeedDisconnected
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// -----------------------------------------------------------------------------

func isHandshakeAuthError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "auth rejected")
}

// -----------------------------------------------------------------------------

// sleepCtx waits for d unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
