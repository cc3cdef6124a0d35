package router

import (
	"context"
	"encoding/json"

	"messenger-core/errs"
	"messenger-core/messenger"
	"messenger-core/socketio"
)

const (
	EventSendMessage      = "send-message"
	EventTypingStart      = "typing-start"
	EventTypingStop       = "typing-stop"
	EventMarkMessagesRead = "mark-messages-read"
	EventDeleteMessage    = "delete-message"
	EventUserStatus       = "user-status"
)

type typingRequest struct {
	ReceiverID string `json:"receiverId"`
}

type readRequest struct {
	RequestID   string `json:"requestId"`
	OtherUserID string `json:"otherUserId"`
}

type deleteRequest struct {
	RequestID string `json:"requestId"`
	MessageID string `json:"messageId"`
}

type statusRequest struct {
	RequestID string   `json:"requestId"`
	UserIDs   []string `json:"userIds"`
}

// Socket binds the realtime events to the messenger service.
func Socket(g *socketio.Gateway, svc *messenger.Service) {
	g.Handle(EventSendMessage, func(ctx context.Context, s *socketio.Session, raw json.RawMessage) (any, error) {
		var in messenger.SendInput
		if err := decode(raw, &in); err != nil {
			return nil, err
		}
		return svc.Send(ctx, s.UserID, in, messenger.OriginSocket)
	})

	typing := func(started bool) socketio.HandlerFunc {
		return func(_ context.Context, s *socketio.Session, raw json.RawMessage) (any, error) {
			var in typingRequest
			if err := decode(raw, &in); err != nil {
				return nil, err
			}
			svc.Typing(in.ReceiverID, s.UserID, started)
			return nil, nil
		}
	}
	g.Handle(EventTypingStart, typing(true))
	g.Handle(EventTypingStop, typing(false))

	g.Handle(EventMarkMessagesRead, func(ctx context.Context, s *socketio.Session, raw json.RawMessage) (any, error) {
		var in readRequest
		if err := decode(raw, &in); err != nil {
			return nil, err
		}
		ids, err := svc.MarkRead(ctx, s.UserID, in.OtherUserID, messenger.OriginSocket)
		if err != nil {
			return nil, err
		}
		return messenger.ReadReceipt{MessageIDs: ids, ReadBy: s.UserID}, nil
	})

	g.Handle(EventDeleteMessage, func(ctx context.Context, s *socketio.Session, raw json.RawMessage) (any, error) {
		var in deleteRequest
		if err := decode(raw, &in); err != nil {
			return nil, err
		}
		if err := svc.DeleteMessage(ctx, s.UserID, in.MessageID, messenger.OriginSocket); err != nil {
			return nil, err
		}
		return messenger.MessageDeleted{MessageID: in.MessageID}, nil
	})

	g.Handle(EventUserStatus, func(ctx context.Context, _ *socketio.Session, raw json.RawMessage) (any, error) {
		var in statusRequest
		if err := decode(raw, &in); err != nil {
			return nil, err
		}
		return svc.Status(ctx, in.UserIDs)
	})
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return errs.ErrMalformedRequest
	}
	return nil
}
