package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"messenger-core/config"
	"messenger-core/errs"
	"messenger-core/presence"
	"messenger-core/utils"
)

func TestSplitArgs(t *testing.T) {
	called := false
	cb := func([]any, error) { called = true }

	raw, ack := splitArgs([]any{map[string]any{"requestId": "r1", "receiverId": "2"}, cb})
	require.NotNil(t, ack)
	require.JSONEq(t, `{"requestId":"r1","receiverId":"2"}`, string(raw))
	ack(nil, nil)
	require.True(t, called)

	raw, ack = splitArgs([]any{map[string]any{"otherUserId": "3"}})
	require.Nil(t, ack)
	require.JSONEq(t, `{"otherUserId":"3"}`, string(raw))

	raw, ack = splitArgs(nil)
	require.Nil(t, ack)
	require.JSONEq(t, `{}`, string(raw))

	raw, ack = splitArgs([]any{cb})
	require.NotNil(t, ack)
	require.JSONEq(t, `{}`, string(raw))
}

func TestRequestIDOf(t *testing.T) {
	require.Equal(t, "abc", requestIDOf(json.RawMessage(`{"requestId":"abc"}`)))
	require.Empty(t, requestIDOf(json.RawMessage(`{}`)))
	require.Empty(t, requestIDOf(json.RawMessage(`[1,2]`)))
}

func TestNewAck(t *testing.T) {
	ok := newAck("r1", map[string]bool{"7": true}, nil)
	require.True(t, ok.OK)
	require.Nil(t, ok.Error)
	require.Equal(t, "r1", ok.RequestID)

	denied := newAck("r2", nil, errs.ErrBlockedByRecipient)
	require.False(t, denied.OK)
	require.Equal(t, errs.CodePermissionDenied, denied.Error.Code)
	require.Equal(t, "BLOCKED_BY_RECIPIENT", denied.Error.Reason)

	internal := newAck("r3", nil, errors.New("pq: connection refused"))
	require.Equal(t, errs.CodeInternal, internal.Error.Code)
	require.Equal(t, "internal error", internal.Error.Message)

	b, err := json.Marshal(denied)
	require.NoError(t, err)
	require.JSONEq(t, `{"requestId":"r2","ok":false,"error":{"code":"PERMISSION_DENIED","reason":"BLOCKED_BY_RECIPIENT","message":"you have been blocked by this user"}}`, string(b))
}

func TestTokenFrom(t *testing.T) {
	require.Equal(t, "q", tokenFrom("q", map[string]any{"token": "a"}))
	require.Equal(t, "a", tokenFrom("", map[string]any{"token": "a"}))
	require.Empty(t, tokenFrom("", map[string]any{"token": 12}))
	require.Empty(t, tokenFrom("", "a"))
	require.Empty(t, tokenFrom("", nil))
}

const gatewaySecret = "gateway-secret"

func newGateway(t *testing.T, settings config.SocketSettings) (*Gateway, *presence.Memory) {
	t.Helper()
	p := presence.NewMemory()
	r := NewRegistry(p, &touches{}, time.Hour, zap.NewNop())
	return New(r, Options{Secret: gatewaySecret, Settings: settings}, zap.NewNop()), p
}

type emitted struct {
	event string
	args  []any
}

type peer struct {
	mu     sync.Mutex
	events []emitted
}

func (p *peer) Emit(ev string, args ...any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, emitted{event: ev, args: args})
	return nil
}

func (p *peer) sent() []emitted {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]emitted(nil), p.events...)
}

func callback(into *[]Ack) func([]any, error) {
	return func(args []any, _ error) {
		*into = append(*into, args[0].(Ack))
	}
}

func TestGateway_Identify(t *testing.T) {
	g, _ := newGateway(t, config.SocketSettings{})

	tok, err := utils.GenerateToken("42", false, time.Hour, gatewaySecret)
	require.NoError(t, err)

	id, err := g.Identify("", map[string]any{"token": tok})
	require.NoError(t, err)
	require.Equal(t, "42", id)

	id, err = g.Identify(tok, nil)
	require.NoError(t, err)
	require.Equal(t, "42", id)

	expired, err := utils.GenerateToken("42", false, -time.Minute, gatewaySecret)
	require.NoError(t, err)
	foreign, err := utils.GenerateToken("42", false, time.Hour, "another-secret")
	require.NoError(t, err)
	pending, err := utils.GenerateToken("42", true, time.Hour, gatewaySecret)
	require.NoError(t, err)

	cases := map[string]any{
		"missing":       nil,
		"malformed":     map[string]any{"token": "not-a-jwt"},
		"expired":       map[string]any{"token": expired},
		"wrong key":     map[string]any{"token": foreign},
		"second factor": map[string]any{"token": pending},
		"not an object": tok,
	}
	for name, auth := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := g.Identify("", auth)
			require.ErrorIs(t, err, errs.ErrUnauthorized)
		})
	}
}

func TestGateway_AttachFollowsPresence(t *testing.T) {
	g, p := newGateway(t, config.SocketSettings{})
	ctx := context.Background()

	first := g.Attach("7")
	second := g.Attach("7")
	has, err := p.Has(ctx, "7")
	require.NoError(t, err)
	require.True(t, has)

	first.Close(ctx)
	has, err = p.Has(ctx, "7")
	require.NoError(t, err)
	require.True(t, has)

	second.Close(ctx)
	has, err = p.Has(ctx, "7")
	require.NoError(t, err)
	require.False(t, has)
}

func TestGateway_DispatchReplies(t *testing.T) {
	g, _ := newGateway(t, config.SocketSettings{})
	g.Handle("echo", func(_ context.Context, s *Session, raw json.RawMessage) (any, error) {
		return map[string]string{"user": s.UserID, "body": string(raw)}, nil
	})
	g.Handle("fail", func(context.Context, *Session, json.RawMessage) (any, error) {
		return nil, errs.ErrMessageNotFound
	})
	s := g.Attach("7")
	defer s.Close(context.Background())

	t.Run("callback", func(t *testing.T) {
		p := &peer{}
		var acks []Ack
		g.Dispatch(p, s, "echo", []any{map[string]any{"requestId": "r1"}, callback(&acks)})

		require.Len(t, acks, 1)
		require.True(t, acks[0].OK)
		require.Equal(t, "r1", acks[0].RequestID)
		require.Equal(t, "7", acks[0].Data.(map[string]string)["user"])
		require.Empty(t, p.sent())
	})

	t.Run("ack event", func(t *testing.T) {
		p := &peer{}
		g.Dispatch(p, s, "fail", []any{map[string]any{"requestId": "r2"}})

		sent := p.sent()
		require.Len(t, sent, 1)
		require.Equal(t, AckEvent, sent[0].event)
		a := sent[0].args[0].(Ack)
		require.False(t, a.OK)
		require.Equal(t, "r2", a.RequestID)
		require.Equal(t, errs.CodeNotFound, a.Error.Code)
		require.Equal(t, "MESSAGE_NOT_FOUND", a.Error.Reason)
	})

	t.Run("fire and forget", func(t *testing.T) {
		p := &peer{}
		g.Dispatch(p, s, "echo", []any{map[string]any{"receiverId": "8"}})
		require.Empty(t, p.sent())
	})

	t.Run("unknown event", func(t *testing.T) {
		p := &peer{}
		var acks []Ack
		g.Dispatch(p, s, "nope", []any{map[string]any{"requestId": "r3"}, callback(&acks)})
		require.Empty(t, acks)
		require.Empty(t, p.sent())
	})
}

func TestGateway_DispatchRateLimited(t *testing.T) {
	g, _ := newGateway(t, config.SocketSettings{EventsPerSecond: 0.001, EventBurst: 2})
	calls := 0
	g.Handle("echo", func(context.Context, *Session, json.RawMessage) (any, error) {
		calls++
		return nil, nil
	})
	s := g.Attach("7")
	defer s.Close(context.Background())

	var acks []Ack
	for range 3 {
		g.Dispatch(&peer{}, s, "echo", []any{map[string]any{}, callback(&acks)})
	}

	require.Equal(t, 2, calls)
	require.Len(t, acks, 3)
	require.True(t, acks[0].OK)
	require.True(t, acks[1].OK)
	require.False(t, acks[2].OK)
	require.Equal(t, errs.CodeResourceExhausted, acks[2].Error.Code)
	require.Equal(t, "RATE_LIMITED", acks[2].Error.Reason)
}
