package signal

import (
	"sync"
	"time"

	"duocall/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsChannel is one accepted websocket. Writes happen only on the write
// pump goroutine; Send just queues.
type wsChannel struct {
	id   domain.ChannelID
	conn *websocket.Conn
	send chan *domain.SignalMessage
	done chan struct{}
	once sync.Once
}

func newWSChannel(id domain.ChannelID, conn *websocket.Conn, buffer int) *wsChannel {
	return &wsChannel{
		id:   id,
		conn: conn,
		send: make(chan *domain.SignalMessage, buffer),
		done: make(chan struct{}),
	}
}

func (c *wsChannel) ID() domain.ChannelID {
	return c.id
}

func (c *wsChannel) Send(msg *domain.SignalMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *wsChannel) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *wsChannel) writePump(pingInterval, writeTimeout time.Duration, logger *zap.SugaredLogger) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Debugw("write failed", "channel_id", c.id, "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debugw("ping failed", "channel_id", c.id, "error", err)
				c.Close()
				return
			}

		case <-c.done:
			c.flush(writeTimeout)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return
		}
	}
}

// flush writes whatever is still queued so a final error reply is not lost.
func (c *wsChannel) flush(writeTimeout time.Duration) {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
