package bridge

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultAckTimeout bounds the wait for the parent to claim a payment link.
const DefaultAckTimeout = 2 * time.Second

// ErrClosed is returned after the connection to the parent is gone.
var ErrClosed = errors.New("bridge closed")

// Client is the embedded side of the channel.
type Client struct {
	conn       *websocket.Conn
	ackTimeout time.Duration
	log        *zap.Logger

	wmu sync.Mutex // gorilla allows one concurrent writer

	mu      sync.Mutex
	pending map[string]chan struct{}
	closed  bool // by Close
	gone    bool // read loop ended
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the parent at url, presenting origin.
func Dial(ctx context.Context, url, origin string, ackTimeout time.Duration, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	h := http.Header{}
	if origin != "" {
		h.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, h)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:       conn,
		ackTimeout: ackTimeout,
		log:        log,
		pending:    map[string]chan struct{}{},
		done:       make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// NotifyRouteChange tells the parent the embedded route changed. No ACK is expected.
func (c *Client) NotifyRouteChange(_ context.Context, route string) error {
	m := newMessage(TypeRouteChange)
	m.URL = route
	return c.write(m)
}

// DeliverPaymentLink offers link to the parent and reports whether the parent
// claimed it within the ACK timeout. A false result with nil error means the
// caller must open the link itself.
func (c *Client) DeliverPaymentLink(ctx context.Context, link string) (bool, error) {
	m := newMessage(TypePaymentLink)
	m.Link = link

	ack := make(chan struct{})
	c.mu.Lock()
	if c.closed || c.gone {
		c.mu.Unlock()
		return false, ErrClosed
	}
	c.pending[m.ID] = ack
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, m.ID)
		c.mu.Unlock()
	}()

	if err := c.write(m); err != nil {
		return false, err
	}

	t := time.NewTimer(c.ackTimeout)
	defer t.Stop()
	select {
	case <-ack:
		return true, nil
	case <-t.C:
		c.log.Info("payment link not acknowledged", zap.Duration("timeout", c.ackTimeout))
		return false, nil
	case <-c.done:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close shuts the connection. It releases the socket even when the parent
// already hung up.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		gone := c.gone
		c.mu.Unlock()

		if !gone {
			c.wmu.Lock()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			c.wmu.Unlock()
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Client) write(m Message) error {
	c.mu.Lock()
	closed := c.closed || c.gone
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteJSON(m)
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.gone = true
		c.mu.Unlock()
		close(c.done)
	}()
	for {
		var m Message
		if err := c.conn.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("bridge read", zap.Error(err))
			}
			return
		}
		if m.Type != TypeAck {
			continue
		}
		c.mu.Lock()
		if ch, ok := c.pending[m.ID]; ok {
			close(ch)
			delete(c.pending, m.ID)
		}
		c.mu.Unlock()
	}
}
