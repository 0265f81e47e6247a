package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = time.Second

// traderConn owns the write side of one trader's socket. Frames are queued on
// send and written by a single goroutine.
type traderConn struct {
	trader string
	conn   *websocket.Conn
	send   chan []byte
	quit   chan struct{}
	once   sync.Once

	closeCode   int
	closeReason string
	dropped     atomic.Int64
}

func newTraderConn(trader string, conn *websocket.Conn, buffer int) *traderConn {
	return &traderConn{
		trader: trader,
		conn:   conn,
		send:   make(chan []byte, buffer),
		quit:   make(chan struct{}),
	}
}

// enqueue never blocks; a full buffer drops the frame.
func (c *traderConn) enqueue(frame []byte) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// close asks the writer to flush, send a close frame and hang up.
func (c *traderConn) close(code int, reason string) {
	c.once.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.quit)
	})
}

func (c *traderConn) writeLoop(log *zap.Logger) {
	defer c.conn.Close()
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				log.Debug("write failed", zap.String("trader", c.trader), zap.Error(err))
				return
			}
		case <-c.quit:
			c.flush()
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			if n := c.dropped.Load(); n > 0 {
				log.Warn("frames dropped for slow trader", zap.String("trader", c.trader), zap.Int64("dropped", n))
			}
			return
		}
	}
}

func (c *traderConn) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *traderConn) write(frame []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}
