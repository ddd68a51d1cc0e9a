package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"duocall/internal/core/domain"
	"duocall/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var ErrClientClosed = errors.New("signaling client closed")

const (
	clientWriteWait      = 10 * time.Second
	clientPongWait       = 60 * time.Second
	clientPingPeriod     = (clientPongWait * 9) / 10
	clientMaxMessageSize = 64 * 1024
)

type ClientOptions struct {
	// ServerURL is the signaling server base URL, http(s) or ws(s).
	ServerURL string
	Token     string
	Retry     retry.Config
}

// Client is the peer side of a signaling connection.
type Client struct {
	conn     *websocket.Conn
	incoming chan *domain.SignalMessage
	outgoing chan *domain.SignalMessage
	done     chan struct{}
	once     sync.Once
	logger   *zap.SugaredLogger
}

// WebSocketURL turns a server base URL into the /ws endpoint carrying token.
func WebSocketURL(serverURL, token string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects to the server, retrying transient failures. A 4xx
// handshake response (bad token, for example) is not retried.
func Dial(ctx context.Context, opts ClientOptions, logger *zap.SugaredLogger) (*Client, error) {
	target, err := WebSocketURL(opts.ServerURL, opts.Token)
	if err != nil {
		return nil, err
	}

	conn, err := retry.Do(ctx, opts.Retry, func(ctx context.Context) (*websocket.Conn, error) {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, retry.Permanent(fmt.Errorf("server rejected connection: %s", http.StatusText(resp.StatusCode)))
			}
			logger.Debugw("dial failed", "error", err)
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		conn:     conn,
		incoming: make(chan *domain.SignalMessage, 16),
		outgoing: make(chan *domain.SignalMessage, 16),
		done:     make(chan struct{}),
		logger:   logger,
	}

	c.conn.SetReadLimit(clientMaxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
	})

	go c.readPump()
	go c.writePump()
	return c, nil
}

func (c *Client) readPump() {
	defer func() {
		close(c.incoming)
		c.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(clientPongWait))
	for {
		var msg domain.SignalMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debugw("signaling read failed", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(clientPongWait))

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(clientPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debugw("signaling write failed", "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(clientWriteWait))
			return
		}
	}
}

// Send queues msg for the write pump.
func (c *Client) Send(msg *domain.SignalMessage) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClientClosed
	}
}

// Incoming is closed once the connection ends.
func (c *Client) Incoming() <-chan *domain.SignalMessage {
	return c.incoming
}

func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}
