// Package session runs the WebSocket lifecycle shared by every exchange
// adapter: connect → subscribe → stream, with an indefinite reconnect loop
// on any transport failure. Adapters supply the URL, the subscription
// payloads and a dispatch callback; everything wire-format specific stays
// out of this package.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State of the connection lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribing
	StateStreaming
	StateReconnectWait
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateReconnectWait:
		return "reconnect_wait"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config carries the transport knobs, threaded in from the config package.
type Config struct {
	URL               string
	ReconnectInterval time.Duration
	DialTimeout       time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	// Retry disabled turns a subscribe failure into a fatal error instead
	// of entering the reconnect loop.
	Retry bool
}

// Dispatch handles one raw inbound message. Errors are logged and the
// stream continues; they never tear the connection down.
type Dispatch func(ctx context.Context, raw []byte) error

// Session is one exchange connection. Register channels before Run; the
// registration list survives reconnects and is replayed on every subscribe.
type Session struct {
	cfg    Config
	name   string
	logger zerolog.Logger
	state  atomic.Int32

	mu   sync.Mutex
	hub  []any
	conn *websocket.Conn
}

func New(name string, cfg Config) (*Session, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("session %s: ws url not configured", name)
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	return &Session{
		cfg:    cfg,
		name:   name,
		logger: log.With().Str("session", name).Logger(),
	}, nil
}

// Register queues a subscription payload to be sent on every (re)connect.
func (s *Session) Register(msg any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub = append(s.hub, msg)
}

// Send writes a JSON message on the live connection. Used by adapters that
// need to answer pings or request snapshots mid-stream.
func (s *Session) Send(msg any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("session %s: not connected", s.name)
	}
	return conn.WriteJSON(msg)
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Run drives the state machine until ctx is cancelled. The reconnect loop
// is unconditional and indefinite; the only fatal error is a subscribe
// failure with Retry disabled.
func (s *Session) Run(ctx context.Context, dispatch Dispatch) error {
	defer s.setState(StateClosed)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.setState(StateConnecting)
		conn, err := s.dial(ctx)
		if err != nil {
			s.logger.Error().Err(err).Str("url", s.cfg.URL).Msg("ws dial failed")
			if !s.cfg.Retry {
				return err
			}
			if err := s.reconnectWait(ctx); err != nil {
				return err
			}
			continue
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.logger.Info().Str("url", s.cfg.URL).Msg("ws connected")

		s.setState(StateSubscribing)
		if err := s.subscribe(conn); err != nil {
			s.logger.Error().Err(err).Msg("ws subscribe failed")
			s.discard(conn)
			if !s.cfg.Retry {
				return err
			}
			if err := s.reconnectWait(ctx); err != nil {
				return err
			}
			continue
		}

		s.setState(StateStreaming)
		err = s.stream(ctx, conn, dispatch)
		s.discard(conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn().Err(err).Msg("ws disconnected, reconnecting")
		if err := s.reconnectWait(ctx); err != nil {
			return err
		}
	}
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dctx, s.cfg.URL, nil)
	return conn, err
}

func (s *Session) subscribe(conn *websocket.Conn) error {
	s.mu.Lock()
	hub := make([]any, len(s.hub))
	copy(hub, s.hub)
	s.mu.Unlock()
	for _, msg := range hub {
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
	}
	s.logger.Debug().Int("channels", len(hub)).Msg("subscriptions sent")
	return nil
}

// stream reads until the connection drops. Dispatch errors are contained:
// the message is skipped and the loop continues.
func (s *Session) stream(ctx context.Context, conn *websocket.Conn, dispatch Dispatch) error {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
			if err := dispatch(ctx, raw); err != nil {
				s.logger.Error().Err(err).Msg("dispatch failed, message skipped")
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func (s *Session) discard(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Session) reconnectWait(ctx context.Context) error {
	s.setState(StateReconnectWait)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.ReconnectInterval):
		return nil
	}
}
