package signal

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"duocall/internal/core/domain"
	"duocall/internal/core/ports"
	"duocall/internal/core/services"
	"duocall/internal/infrastructure/middleware"
	"duocall/pkg/config"
	rlog "duocall/pkg/logger"
	"duocall/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	MaxConnections int
	AllowedOrigins []string
	// NewLimiter returns the per-connection message limiter; nil disables it.
	NewLimiter func() *rate.Limiter
}

func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		PingInterval:   cfg.Signal.PingInterval,
		PongTimeout:    cfg.Signal.PongTimeout,
		WriteTimeout:   cfg.Signal.WriteTimeout,
		SendBuffer:     cfg.Signal.SendBuffer,
		MaxMessageSize: cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		AllowedOrigins: cfg.Auth.AllowedOrigins,
	}
	if cfg.RateLimiting.Enabled {
		opts.MaxConnections = cfg.RateLimiting.WebSocket.MaxConcurrent
		opts.NewLimiter = func() *rate.Limiter { return middleware.NewMessageLimiter(cfg) }
	}
	return opts
}

var _ ports.SignalHandler = (*WebSocketServer)(nil)

// WebSocketServer accepts authenticated signaling connections and feeds
// their messages to the relay.
type WebSocketServer struct {
	relay    *services.RelayService
	upgrader websocket.Upgrader
	opts     Options
	active   int64

	logger    *zap.SugaredLogger
	ctxLogger *rlog.ContextLogger
}

func NewWebSocketServer(relay *services.RelayService, opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	s := &WebSocketServer{
		relay:     relay,
		opts:      opts,
		logger:    logger,
		ctxLogger: rlog.NewContextLogger(logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket is mounted behind middleware.AuthMiddleware, which has
// already verified the token.
func (s *WebSocketServer) HandleWebSocket(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}
	s.Serve(c.Writer, c.Request, claims)
}

func (s *WebSocketServer) Serve(w http.ResponseWriter, r *http.Request, claims *services.Claims) {
	if s.opts.MaxConnections > 0 && atomic.LoadInt64(&s.active) >= int64(s.opts.MaxConnections) {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	atomic.AddInt64(&s.active, 1)
	defer atomic.AddInt64(&s.active, -1)

	identity := domain.Identity{
		Username:    claims.Username,
		Room:        claims.Room(),
		ChannelID:   domain.ChannelID(uuid.NewString()),
		ConnectedAt: time.Now(),
	}
	ctx := rlog.WithIdentity(context.Background(), string(identity.Username), string(identity.Room), string(identity.ChannelID))
	logger := s.ctxLogger.WithContext(ctx)

	ch := newWSChannel(identity.ChannelID, conn, s.opts.SendBuffer)
	s.relay.Connect(ctx, identity, ch)
	go ch.writePump(s.opts.PingInterval, s.opts.WriteTimeout, logger)

	s.readPump(ctx, identity, ch, logger)

	s.relay.Disconnect(ctx, identity, identity.ChannelID)
	ch.Close()
}

func (s *WebSocketServer) readPump(ctx context.Context, identity domain.Identity, ch *wsChannel, logger *zap.SugaredLogger) {
	conn := ch.conn
	if s.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(s.opts.MaxMessageSize)
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	var limiter *rate.Limiter
	if s.opts.NewLimiter != nil {
		limiter = s.opts.NewLimiter()
	}

	for {
		var msg domain.SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				ch.Send(domain.NewErrorMessage(domain.ErrorCodeInvalidMessage, "message too large"))
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugw("read failed", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if limiter != nil && !limiter.Allow() {
			ch.Send(domain.NewErrorMessage(domain.ErrorCodeRateLimited, "too many messages"))
			continue
		}

		s.dispatch(ctx, identity, ch, &msg, logger)
	}
}

func (s *WebSocketServer) dispatch(ctx context.Context, identity domain.Identity, ch *wsChannel, msg *domain.SignalMessage, logger *zap.SugaredLogger) {
	ctx, span := tracing.TraceSignalMessage(ctx, string(msg.Type), string(identity.Username), string(identity.Room))
	defer span.End()

	if err := s.relay.HandleMessage(ctx, identity, ch.ID(), msg); err != nil {
		tracing.RecordError(ctx, err)
		logger.Infow("rejected signaling message", "type", msg.Type, "error", err)
		ch.Send(domain.ErrorMessageFor(err))
	}
}

func (s *WebSocketServer) ActiveConnections() int {
	return int(atomic.LoadInt64(&s.active))
}

func (s *WebSocketServer) HealthCheck() map[string]interface{} {
	return map[string]interface{}{
		"status":             "healthy",
		"active_connections": s.ActiveConnections(),
		"ping_interval":      s.opts.PingInterval.String(),
		"pong_timeout":       s.opts.PongTimeout.String(),
	}
}
