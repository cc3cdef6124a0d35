package listener

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"messenger-core/event"
	"messenger-core/push"
)

// PushRequest is the body of a push.send event. Recipients are resolved from
// UserIDs through the directory and merged with any explicit Tokens.
type PushRequest struct {
	UserIDs []string          `json:"userIds"`
	Tokens  []string          `json:"tokens"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data"`
}

type TokenSource interface {
	PushTokens(ctx context.Context, userIDs []string) ([]string, error)
}

type Pusher interface {
	Send(ctx context.Context, n push.Notification, tokens ...string) int
}

// Push serves push requests from other services (posts, friend requests) with
// the same dispatcher the messaging core uses.
type Push struct {
	tokens TokenSource
	pusher Pusher
	log    *zap.Logger
}

func NewPush(tokens TokenSource, pusher Pusher, log *zap.Logger) *Push {
	return &Push{tokens: tokens, pusher: pusher, log: log}
}

// Handle is an event.Handler. Unknown actions are ignored.
func (p *Push) Handle(ctx context.Context, d event.Delivery) error {
	if d.Action != event.ActionPushSend {
		p.log.Debug("ignored event", zap.String("action", d.Action))
		return nil
	}

	var req PushRequest
	if err := json.Unmarshal(d.Data, &req); err != nil {
		return fmt.Errorf("decode push request: %w", err)
	}

	tokens := req.Tokens
	if len(req.UserIDs) > 0 {
		resolved, err := p.tokens.PushTokens(ctx, req.UserIDs)
		if err != nil {
			return fmt.Errorf("resolve push tokens: %w", err)
		}
		tokens = append(tokens, resolved...)
	}
	if len(tokens) == 0 {
		return nil
	}

	sent := p.pusher.Send(ctx, push.Notification{Title: req.Title, Body: req.Body, Data: req.Data}, tokens...)
	p.log.Debug("push request served", zap.Int("tokens", len(tokens)), zap.Int("delivered", sent))
	return nil
}
