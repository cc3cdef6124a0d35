// Package socketio is the connection gateway: it authenticates socket.io
// clients, tracks their presence and routes their events to handlers.
package socketio

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/redis/go-redis/v9"
	"github.com/zishang520/engine.io/v2/log"
	"github.com/zishang520/socket.io-go-redis/adapter"
	r_type "github.com/zishang520/socket.io-go-redis/types"
	"github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"messenger-core/config"
	"messenger-core/errs"
	"messenger-core/utils"
)

const (
	// AckEvent carries the result of a request that was sent without a callback.
	AckEvent = "ack"

	eventTimeout = 30 * time.Second
)

// HandlerFunc serves one inbound event. raw is the event's first argument
// re-encoded as JSON. A non-nil result or error is acknowledged to the client.
type HandlerFunc func(ctx context.Context, s *Session, raw json.RawMessage) (any, error)

type Options struct {
	Secret   string
	Settings config.SocketSettings
	// Adapter, when set, fans room emits out to every process through redis.
	Adapter *redis.Client
	Debug   bool
}

type Gateway struct {
	server   *socket.Server
	options  *socket.ServerOptions
	registry *Registry
	secret   string
	limit    rate.Limit
	burst    int
	log      *zap.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func New(registry *Registry, opts Options, logger *zap.Logger) *Gateway {
	log.DEBUG = opts.Debug

	options := socket.DefaultServerOptions()
	options.SetServeClient(false)
	options.SetPingInterval(25 * time.Second)
	options.SetPingTimeout(20 * time.Second)
	options.SetMaxHttpBufferSize(1_000_000)
	options.SetConnectTimeout(10 * time.Second)
	if opts.Adapter != nil {
		options.SetAdapter(&adapter.RedisAdapterBuilder{
			Redis: r_type.NewRedisClient(context.Background(), opts.Adapter),
			Opts:  &adapter.RedisAdapterOptions{},
		})
	}

	g := &Gateway{
		server:   socket.NewServer(nil, options),
		options:  options,
		registry: registry,
		secret:   opts.Secret,
		limit:    rate.Limit(opts.Settings.EventsPerSecond),
		burst:    opts.Settings.EventBurst,
		log:      logger,
		handlers: make(map[string]HandlerFunc),
	}
	g.server.Use(g.authenticate)
	g.server.On("connection", g.connect)
	return g
}

// Mount serves the socket.io transport on the app.
func (g *Gateway) Mount(app *fiber.App) {
	handler := adaptor.HTTPHandler(g.server.ServeHandler(g.options))
	app.Get("/socket.io/", handler)
	app.Post("/socket.io/", handler)
}

// Handle registers h for event on every connection.
func (g *Gateway) Handle(event string, h HandlerFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[event] = h
}

// EmitTo sends an event to every connection of userID, across processes when
// the redis adapter is configured.
func (g *Gateway) EmitTo(userID, event string, payload any) {
	if err := g.server.To(socket.Room(userID)).Emit(event, payload); err != nil {
		g.log.Warn("socket emit failed", zap.String("user", userID), zap.String("event", event), zap.Error(err))
	}
}

func (g *Gateway) Close() {
	g.server.Close(nil)
}

func (g *Gateway) authenticate(client *socket.Socket, next func(*socket.ExtendedError)) {
	query, _ := client.Conn().Request().Query().Get("token")
	userID, err := g.Identify(query, client.Handshake().Auth)
	if err != nil {
		next(socket.NewExtendedError(errs.ErrUnauthorized.Message, nil))
		return
	}

	client.SetData(userID)
	next(nil)
}

// Identify resolves the handshake credential to a user id. Tokens still
// waiting for a second factor are refused.
func (g *Gateway) Identify(query string, auth any) (string, error) {
	meta, err := utils.CheckAndExtractTokenMetadata(tokenFrom(query, auth), g.secret)
	if err != nil {
		g.log.Debug("socket rejected", zap.Error(err))
		return "", errs.ErrUnauthorized
	}
	if meta.OTP || meta.ID == "" {
		g.log.Debug("socket rejected", zap.String("user", meta.ID), zap.Bool("otp", meta.OTP))
		return "", errs.ErrUnauthorized
	}
	return meta.ID, nil
}

func (g *Gateway) connect(clients ...any) {
	client := clients[0].(*socket.Socket)
	userID, _ := client.Data().(string)
	if userID == "" {
		client.Disconnect(true)
		return
	}

	client.Join(socket.Room(userID))
	session := g.Attach(userID)
	g.log.Debug("socket connected", zap.String("user", userID), zap.String("socket", string(client.Id())))

	g.mu.RLock()
	for event := range g.handlers {
		client.On(event, func(args ...any) {
			go g.Dispatch(client, session, event, args)
		})
	}
	g.mu.RUnlock()

	client.On("disconnect", func(...any) {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		session.Close(ctx)
		g.log.Debug("socket disconnected", zap.String("user", userID))
	})
}

// Attach opens a session for an authenticated connection of userID.
func (g *Gateway) Attach(userID string) *Session {
	var limiter *rate.Limiter
	if g.limit > 0 {
		limiter = rate.NewLimiter(g.limit, max(g.burst, 1))
	}
	ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
	defer cancel()
	return g.registry.Open(ctx, userID, limiter)
}

// Peer is the connection an event came from.
type Peer interface {
	Emit(ev string, args ...any) error
}

// Dispatch runs one inbound event. The handler context does not follow the
// connection, so a request in flight completes even if the client goes away.
func (g *Gateway) Dispatch(p Peer, s *Session, event string, args []any) {
	g.mu.RLock()
	h, ok := g.handlers[event]
	g.mu.RUnlock()
	if !ok {
		return
	}

	raw, ack := splitArgs(args)
	requestID := requestIDOf(raw)

	reply := func(data any, err error) {
		if ack == nil && requestID == "" {
			return
		}
		a := newAck(requestID, data, err)
		if ack != nil {
			ack([]any{a}, nil)
			return
		}
		if err := p.Emit(AckEvent, a); err != nil {
			g.log.Debug("ack emit failed", zap.String("event", event), zap.Error(err))
		}
	}

	if !s.Allow() {
		reply(nil, errs.ErrRateLimited)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	data, err := h(ctx, s, raw)
	if err != nil && errs.CodeOf(err) == errs.CodeInternal {
		g.log.Error("socket event failed", zap.String("event", event), zap.String("user", s.UserID), zap.Error(err))
	}
	reply(data, err)
}

// Ack is the reply to a request event.
type Ack struct {
	RequestID string    `json:"requestId,omitempty"`
	OK        bool      `json:"ok"`
	Error     *AckError `json:"error,omitempty"`
	Data      any       `json:"data,omitempty"`
}

type AckError struct {
	Code    errs.Code `json:"code"`
	Reason  string    `json:"reason,omitempty"`
	Message string    `json:"message"`
}

func newAck(requestID string, data any, err error) Ack {
	if err == nil {
		return Ack{RequestID: requestID, OK: true, Data: data}
	}
	app := errs.As(err)
	message := app.Message
	if app.Code == errs.CodeInternal {
		message = "internal error"
	}
	return Ack{RequestID: requestID, Error: &AckError{Code: app.Code, Reason: app.Reason, Message: message}}
}

// splitArgs separates the event body from a trailing acknowledgement callback.
func splitArgs(args []any) (json.RawMessage, func([]any, error)) {
	var ack func([]any, error)
	if n := len(args); n > 0 {
		if fn, ok := args[n-1].(func([]any, error)); ok {
			ack = fn
			args = args[:n-1]
		}
	}
	if len(args) == 0 || args[0] == nil {
		return json.RawMessage("{}"), ack
	}
	raw, err := json.Marshal(args[0])
	if err != nil {
		return json.RawMessage("{}"), ack
	}
	return raw, ack
}

func requestIDOf(raw json.RawMessage) string {
	var head struct {
		RequestID string `json:"requestId"`
	}
	_ = json.Unmarshal(raw, &head)
	return head.RequestID
}

// tokenFrom prefers the handshake query token and falls back to auth.token.
// auth is whatever the client sent in the handshake.
func tokenFrom(query string, auth any) string {
	if query != "" {
		return query
	}
	if m, ok := auth.(map[string]any); ok {
		if t, ok := m["token"].(string); ok {
			return t
		}
	}
	return ""
}
