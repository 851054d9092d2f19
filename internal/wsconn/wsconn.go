// Package wsconn provides a WebSocket client with reconnection and
// exponential backoff.
package wsconn

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/fd1az/market-data-engine/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite
	PingInterval   time.Duration
	ReadLimit      int64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:            url,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0,
		PingInterval:   30 * time.Second,
		ReadLimit:      1 << 20,
	}
}

// Client is a reconnecting WebSocket client. Received messages surface on
// Messages; the read loop reconnects with exponential backoff until Close.
type Client struct {
	config Config

	stateMu sync.RWMutex
	state   State

	connMu sync.RWMutex
	conn   *websocket.Conn

	messages   chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	reconnects int
}

// New creates a new WebSocket client.
func New(config Config) *Client {
	return &Client{
		config:   config,
		state:    StateDisconnected,
		messages: make(chan []byte, 256),
		done:     make(chan struct{}),
	}
}

// Connect establishes the connection and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	if err := c.dial(ctx); err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.setState(StateConnected)
	go c.readLoop(ctx)
	if c.config.PingInterval > 0 {
		go c.pingLoop(ctx)
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		return apperror.New(apperror.CodeConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("dial "+c.config.URL))
	}
	if c.config.ReadLimit > 0 {
		conn.SetReadLimit(c.config.ReadLimit)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// readLoop pumps messages and reconnects on failure.
func (c *Client) readLoop(ctx context.Context) {
	backoff := c.config.InitialBackoff

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err == nil {
			backoff = c.config.InitialBackoff
			select {
			case c.messages <- data:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.setState(StateReconnecting)
		c.reconnects++
		if c.config.MaxReconnects > 0 && c.reconnects > c.config.MaxReconnects {
			c.setState(StateDisconnected)
			return
		}

		select {
		case <-time.After(backoff):
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > c.config.MaxBackoff {
			backoff = c.config.MaxBackoff
		}

		if err := c.dial(ctx); err != nil {
			continue
		}
		c.setState(StateConnected)
	}
}

// pingLoop keeps the connection alive.
func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn != nil {
				pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
				_ = conn.Ping(pingCtx)
				cancel()
			}
		}
	}
}

// Send writes a text message.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()

	if conn == nil {
		return apperror.New(apperror.CodeWebSocketClosed)
	}
	return conn.Write(ctx, websocket.MessageText, msg)
}

// Messages returns the channel for receiving messages.
func (c *Client) Messages() <-chan []byte {
	return c.messages
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Reconnects returns how many reconnect attempts happened.
func (c *Client) Reconnects() int {
	return c.reconnects
}

// Close gracefully closes the WebSocket connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
	c.setState(StateDisconnected)
	return nil
}

func (c *Client) setState(state State) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}
