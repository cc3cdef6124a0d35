// Package event publishes message lifecycle events to the service bus and
// consumes requests other services address to this one.
package event

import (
	"context"
	"time"
)

// ActionHeader carries the action name on every bus message.
const ActionHeader string = "x-action"

// Published actions.
const (
	ActionMessageCreated      = "message.created"
	ActionMessageDeleted      = "message.deleted"
	ActionConversationCleared = "conversation.cleared"
	ActionMessagesRead        = "messages.read"
)

// ActionPushSend is consumed: another service asks for a push notification.
const ActionPushSend = "push.send"

type Publisher interface {
	Publish(ctx context.Context, action string, payload any) error
	Close() error
}

// Delivery is a consumed bus message.
type Delivery struct {
	Action string
	Data   []byte
}

type Handler func(ctx context.Context, d Delivery) error

// Subscriber feeds every message of source (a queue or topic) to h until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, source string, h Handler) error
}

// MessageCreated never carries payload content; subscribers fetch it if they need it.
type MessageCreated struct {
	MessageID   string    `json:"messageId"`
	SenderID    string    `json:"senderId"`
	ReceiverID  string    `json:"receiverId"`
	Kind        string    `json:"kind"`
	IsEncrypted bool      `json:"isEncrypted"`
	CreatedAt   time.Time `json:"createdAt"`
}

type MessageDeleted struct {
	MessageID  string `json:"messageId"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

type ConversationCleared struct {
	ClearedBy     string `json:"clearedBy"`
	CounterpartID string `json:"counterpartId"`
	Deleted       int64  `json:"deleted"`
}

type MessagesRead struct {
	MessageIDs []string `json:"messageIds"`
	ReadBy     string   `json:"readBy"`
	SenderID   string   `json:"senderId"`
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close() error                                { return nil }
