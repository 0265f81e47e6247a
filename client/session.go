// Package client runs the websocket session with the market simulator.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sampletrader/wire"
)

const (
	DefaultReadTimeout      = 500 * time.Millisecond
	DefaultHandshakeTimeout = 10 * time.Second

	closeGrace = time.Second
)

// Conn is the part of *websocket.Conn the session uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Processor consumes inbound frames and returns the reply, if any. It is only
// ever called from the reader goroutine.
type Processor interface {
	Process(msg *wire.Inbound) wire.Outbound
}

// Dial opens the websocket connection for a trader endpoint.
func Dial(ctx context.Context, endpoint string, handshakeTimeout time.Duration) (*websocket.Conn, error) {
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return conn, nil
}

// Session wires the reader and writer loops around one connection.
type Session struct {
	ID string

	conn        Conn
	queue       *Queue
	processor   Processor
	readTimeout time.Duration
	log         *zap.Logger
}

// NewSession prepares a session. Run must be called exactly once.
func NewSession(conn Conn, processor Processor, readTimeout time.Duration, logger *zap.Logger) *Session {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		ID:          id,
		conn:        conn,
		queue:       NewQueue(),
		processor:   processor,
		readTimeout: readTimeout,
		log:         logger.With(zap.String("session", id)),
	}
}

// Queue exposes the outbound queue.
func (s *Session) Queue() *Queue {
	return s.queue
}

// Run registers, then runs the reader and writer until the connection goes
// away or ctx is cancelled. Cancellation is handled like a lost connection:
// pending frames are flushed before the socket is closed.
func (s *Session) Run(ctx context.Context) error {
	if err := s.queue.Push(wire.Register{}); err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error { return s.writeLoop() })
	g.Go(func() error { return s.readLoop(ctx) })
	err := g.Wait()
	s.log.Info("session finished", zap.Error(err))
	return err
}

type frame struct {
	data []byte
	err  error
}

func (s *Session) readLoop(ctx context.Context) error {
	frames := make(chan frame)
	done := make(chan struct{})
	defer close(done)
	defer s.queue.Close()

	go s.pump(frames, done)

	timer := time.NewTimer(s.readTimeout)
	defer timer.Stop()

	for {
		timer.Reset(s.readTimeout)

		var msg *wire.Inbound
		select {
		case <-ctx.Done():
			s.log.Info("shutdown requested")
			return nil
		case f := <-frames:
			if f.err != nil {
				return s.readFailed(f.err)
			}
			decoded, err := wire.DecodeInbound(f.data)
			if err != nil {
				s.log.Warn("skipping malformed frame", zap.Error(err), zap.ByteString("frame", truncate(f.data, 256)))
			} else {
				msg = decoded
			}
		case <-timer.C:
		}

		if out := s.processor.Process(msg); out != nil {
			if err := s.queue.Push(out); err != nil {
				return err
			}
		}
	}
}

// pump performs the blocking reads so readLoop can bound its wait without
// putting a deadline on the connection.
func (s *Session) pump(frames chan<- frame, done <-chan struct{}) {
	for {
		_, data, err := s.conn.ReadMessage()
		select {
		case frames <- frame{data: data, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) readFailed(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
		s.log.Info("connection closed", zap.Error(err))
		return nil
	}
	s.log.Warn("connection lost", zap.Error(err))
	return fmt.Errorf("read: %w", err)
}

func (s *Session) writeLoop() error {
	for {
		msg, err := s.queue.Pop()
		if errors.Is(err, ErrQueueClosed) {
			return s.closeConn(true)
		}

		data, err := wire.Encode(msg)
		if err != nil {
			s.log.Error("dropping unencodable frame", zap.Error(err))
			continue
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			err = fmt.Errorf("send %s: %w", msg.MessageType(), err)
			return multierr.Append(err, s.closeConn(false))
		}
		s.log.Debug("sent", zap.String("type", msg.MessageType()))
	}
}

// closeConn is only called by the writer, once, on its way out.
func (s *Session) closeConn(graceful bool) error {
	var err error
	if graceful {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			s.log.Debug("close frame not sent", zap.Error(werr))
		}
	}
	if cerr := s.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = fmt.Errorf("close: %w", cerr)
	}
	return err
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
