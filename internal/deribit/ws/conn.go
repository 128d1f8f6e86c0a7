package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

var ErrClosed = errors.New("ws connection closed")

// Dialer opens venue connections. It is the seam the connection manager
// uses so tests can point it at a local server.
type Dialer struct {
	URL       string
	ReadLimit int64
	Log       *zap.Logger
}

func (d Dialer) Dial(ctx context.Context) (*Conn, error) {
	conn, _, err := websocket.Dial(ctx, d.URL, nil)
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &Conn{conn: conn, log: d.Log, openedAt: time.Now()}, nil
}

type Conn struct {
	conn     *websocket.Conn
	log      *zap.Logger
	openedAt time.Time

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

func (c *Conn) OpenedAt() time.Time {
	return c.openedAt
}

// Read blocks for the next text frame. Only one goroutine may call Read.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Conn) WriteJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Write(ctx, data)
}

func (c *Conn) Write(ctx context.Context, data []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Ping requires a concurrent Read to receive the pong.
func (c *Conn) Ping(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.conn.Ping(ctx)
}

func (c *Conn) Close(reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close(websocket.StatusNormalClosure, reason)
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LogReadError reports why a read loop ended, at Info for normal closure.
func LogReadError(log *zap.Logger, err error) {
	if log == nil {
		return
	}
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure {
		var closeErr websocket.CloseError
		if errors.As(err, &closeErr) {
			log.Info("ws read loop ended", zap.Int("status", int(closeErr.Code)), zap.String("reason", closeErr.Reason))
			return
		}
		log.Info("ws read loop ended", zap.Error(err))
		return
	}
	log.Warn("ws read loop ended", zap.Error(err))
}
