package messenger

import (
	"strconv"
	"time"

	"messenger-core/model"
	"messenger-core/repository"
)

// Outbound real-time events.
const (
	EventNewMessage          = "new-message"
	EventTypingStart         = "typing-start"
	EventTypingStop          = "typing-stop"
	EventMessagesRead        = "messages-read"
	EventMessageDeleted      = "message-deleted"
	EventConversationCleared = "conversation-cleared"
)

// MessageView is a stored message joined with the display fields of both participants.
type MessageView struct {
	model.Message
	Sender   model.Profile `json:"sender"`
	Receiver model.Profile `json:"receiver"`
}

type ConversationView struct {
	User        model.Profile `json:"user"`
	LastMessage MessageView   `json:"lastMessage"`
	Label       string        `json:"lastMessageLabel"`
	UnreadCount int64         `json:"unreadCount"`
	Online      bool          `json:"isOnline"`
}

type HistoryPage struct {
	Messages []MessageView `json:"messages"`
	HasMore  bool          `json:"hasMore"`
}

type ReadReceipt struct {
	MessageIDs []string `json:"messageIds"`
	ReadBy     string   `json:"readBy"`
}

type MessageDeleted struct {
	MessageID string `json:"messageId"`
}

type ConversationCleared struct {
	ClearedBy string `json:"clearedBy"`
}

type Typing struct {
	UserID string `json:"userId"`
}

// SendInput is the send-message request of both transports.
type SendInput struct {
	RequestID  string              `json:"requestId,omitempty"`
	ReceiverID string              `json:"receiverId"`
	Payload    *model.PayloadInput `json:"payload"`
}

// HistoryQuery pages backwards through a conversation. Before is the
// creation time of the oldest message already held, as RFC 3339 or unix
// milliseconds; an unparsable value is ignored. BeforeID is that message's
// id and breaks ties between messages created at the same instant.
type HistoryQuery struct {
	Limit    int
	Before   string
	BeforeID string
}

func view(m model.Message, profiles map[string]model.Profile) MessageView {
	return MessageView{
		Message:  m,
		Sender:   profileOf(profiles, m.SenderID),
		Receiver: profileOf(profiles, m.ReceiverID),
	}
}

func profileOf(profiles map[string]model.Profile, id string) model.Profile {
	if p, ok := profiles[id]; ok {
		return p
	}
	return model.Profile{ID: id}
}

func parseCursor(raw, id string) *repository.Cursor {
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return &repository.Cursor{CreatedAt: t, ID: id}
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
		return &repository.Cursor{CreatedAt: time.UnixMilli(ms).UTC(), ID: id}
	}
	return nil
}
