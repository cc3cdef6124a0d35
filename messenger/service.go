// Package messenger implements message delivery: validation, persistence,
// real-time fan-out, read receipts, deletion and the conversation queries.
package messenger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"messenger-core/errs"
	"messenger-core/event"
	"messenger-core/model"
	"messenger-core/presence"
	"messenger-core/push"
	"messenger-core/repository"
	"messenger-core/storage"
)

// Notifier emits an event to every live connection of a user.
type Notifier interface {
	EmitTo(userID, event string, payload any)
}

type Pusher interface {
	Send(ctx context.Context, n push.Notification, tokens ...string) int
}

// Attachments removes externally stored voice files.
type Attachments interface {
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) error
}

// Origin is the transport a request arrived on. Socket requests echo
// new messages to the sender's own room and emit inline; HTTP requests emit to
// the counterpart in the background.
type Origin int

const (
	OriginSocket Origin = iota
	OriginHTTP
)

const backgroundTimeout = 15 * time.Second

type Config struct {
	E2EERequired bool
	DefaultLimit int
	MaxLimit     int
}

type Deps struct {
	Messages    repository.Messages
	Users       repository.Users
	Presence    presence.Store
	Notifier    Notifier
	Pusher      Pusher
	Attachments Attachments
	Events      event.Publisher
	Config      Config
	Log         *zap.Logger
}

type Service struct {
	messages    repository.Messages
	users       repository.Users
	presence    presence.Store
	notifier    Notifier
	pusher      Pusher
	attachments Attachments
	events      event.Publisher
	cfg         Config
	log         *zap.Logger

	now   func() time.Time
	spawn func(func())
}

func New(d Deps) *Service {
	if d.Events == nil {
		d.Events = event.Nop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Config.MaxLimit <= 0 {
		d.Config.MaxLimit = 100
	}
	if d.Config.DefaultLimit <= 0 || d.Config.DefaultLimit > d.Config.MaxLimit {
		d.Config.DefaultLimit = d.Config.MaxLimit
	}
	return &Service{
		messages:    d.Messages,
		users:       d.Users,
		presence:    d.Presence,
		notifier:    d.Notifier,
		pusher:      d.Pusher,
		attachments: d.Attachments,
		events:      d.Events,
		cfg:         d.Config,
		log:         d.Log,
		now:         func() time.Time { return time.Now().UTC() },
		spawn:       func(f func()) { go f() },
	}
}

// emit runs fn inline for socket requests and detached for HTTP ones.
func (s *Service) emit(origin Origin, fn func()) {
	if origin == OriginSocket {
		fn()
		return
	}
	s.spawn(fn)
}

// background runs fn detached from the request with its own deadline.
func (s *Service) background(fn func(ctx context.Context)) {
	s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		fn(ctx)
	})
}

func (s *Service) publish(action string, payload any) {
	s.background(func(ctx context.Context) {
		if err := s.events.Publish(ctx, action, payload); err != nil {
			s.log.Warn("event publish failed", zap.String("action", action), zap.Error(err))
		}
	})
}

// Send validates and delivers one message. Checks run in a fixed order and the
// first failure is returned without persisting anything.
func (s *Service) Send(ctx context.Context, senderID string, in SendInput, origin Origin) (*MessageView, error) {
	if in.ReceiverID == "" {
		return nil, errs.ErrMissingReceiver
	}
	if in.ReceiverID == senderID {
		return nil, errs.ErrSelfMessage
	}

	p, err := in.Payload.Decode()
	if err != nil {
		return nil, err
	}
	if s.cfg.E2EERequired && !p.Encrypted() {
		return nil, errs.ErrPlaintextForbidden
	}
	if key := model.StorageKeyOf(p); key != "" && !storage.OwnsKey(senderID, key) {
		return nil, errs.ErrForeignAttachment
	}

	receiver, err := s.users.GetByID(ctx, in.ReceiverID)
	if err != nil {
		return nil, err
	}
	if p.Encrypted() && !receiver.E2EEEnabled {
		return nil, errs.ErrRecipientNotE2EE
	}
	if blocked, err := s.users.IsBlocked(ctx, in.ReceiverID, senderID); err != nil {
		return nil, err
	} else if blocked {
		return nil, errs.ErrBlockedByRecipient
	}
	if blocked, err := s.users.IsBlocked(ctx, senderID, in.ReceiverID); err != nil {
		return nil, err
	} else if blocked {
		return nil, errs.ErrYouBlocked
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		if errors.Is(err, errs.ErrUserNotFound) {
			return nil, errs.ErrUnauthorized
		}
		return nil, err
	}
	if p.Encrypted() {
		p = model.WithSenderKey(p, sender.PublicKey)
	}

	m := model.NewMessage(senderID, in.ReceiverID, p)
	m.CreatedAt = s.now()
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, err
	}

	v := MessageView{Message: *m, Sender: sender.Profile(), Receiver: receiver.Profile()}
	s.emit(origin, func() {
		s.notifier.EmitTo(v.ReceiverID, EventNewMessage, v)
		if origin == OriginSocket {
			s.notifier.EmitTo(v.SenderID, EventNewMessage, v)
		}
	})

	if token := receiver.PushToken; token != "" {
		n := push.Notification{
			Title: sender.Username,
			Body:  pushBody(m),
			Data:  map[string]string{"type": "message", "senderId": senderID, "messageId": m.ID},
		}
		s.background(func(ctx context.Context) { s.pusher.Send(ctx, n, token) })
	}

	s.publish(event.ActionMessageCreated, event.MessageCreated{
		MessageID:   m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Kind:        string(m.Kind),
		IsEncrypted: m.IsEncrypted,
		CreatedAt:   m.CreatedAt,
	})

	s.log.Debug("message delivered",
		zap.String("message", m.ID),
		zap.String("sender", senderID),
		zap.String("receiver", in.ReceiverID),
		zap.String("kind", string(m.Kind)))
	return &v, nil
}

const pushBodyMaxRunes = 100

// pushBody is the notification text. Encrypted payloads never leave the server
// in a notification.
func pushBody(m *model.Message) string {
	switch m.Kind {
	case model.KindEncrypted, model.KindEncryptedVoice:
		return "🔒 Encrypted message"
	case model.KindVoice:
		return "🎤 Voice message"
	}
	return model.Truncate(m.Text, pushBodyMaxRunes)
}

// Typing relays a typing indicator to the receiver.
func (s *Service) Typing(receiverID, userID string, started bool) {
	if receiverID == "" || receiverID == userID {
		return
	}
	ev := EventTypingStop
	if started {
		ev = EventTypingStart
	}
	s.notifier.EmitTo(receiverID, ev, Typing{UserID: userID})
}

// MarkRead marks every unread message from otherID to readerID as read and
// tells otherID which ones changed.
func (s *Service) MarkRead(ctx context.Context, readerID, otherID string, origin Origin) ([]string, error) {
	if otherID == "" {
		return nil, errs.ErrMissingReceiver
	}
	if otherID == readerID {
		return nil, nil
	}

	ids, err := s.messages.MarkRead(ctx, otherID, readerID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}

	receipt := ReadReceipt{MessageIDs: ids, ReadBy: readerID}
	s.emit(origin, func() { s.notifier.EmitTo(otherID, EventMessagesRead, receipt) })
	s.publish(event.ActionMessagesRead, event.MessagesRead{MessageIDs: ids, ReadBy: readerID, SenderID: otherID})
	return ids, nil
}

// DeleteMessage removes a message its sender owns. A missing message is
// reported the same way as someone else's, so ids cannot be enumerated.
func (s *Service) DeleteMessage(ctx context.Context, userID, messageID string, origin Origin) error {
	m, err := s.messages.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, errs.ErrMessageNotFound) {
			return errs.ErrNotMessageOwner
		}
		return err
	}
	if m.SenderID != userID {
		return errs.ErrNotMessageOwner
	}

	if err := s.messages.Delete(ctx, m.ID); err != nil {
		if errors.Is(err, errs.ErrMessageNotFound) {
			return errs.ErrNotMessageOwner
		}
		return err
	}
	if key := m.VoiceStorageKey; key != "" {
		if err := s.attachments.Delete(ctx, key); err != nil {
			s.log.Warn("voice attachment cleanup failed", zap.String("key", key), zap.Error(err))
		}
	}

	payload := MessageDeleted{MessageID: m.ID}
	s.emit(origin, func() {
		s.notifier.EmitTo(m.ReceiverID, EventMessageDeleted, payload)
		s.notifier.EmitTo(m.SenderID, EventMessageDeleted, payload)
	})
	s.publish(event.ActionMessageDeleted, event.MessageDeleted{MessageID: m.ID, SenderID: m.SenderID, ReceiverID: m.ReceiverID})
	return nil
}

// DeleteConversation removes every message between the two users. Attachment
// cleanup is a single bulk call whose failure does not stop the delete.
func (s *Service) DeleteConversation(ctx context.Context, userID, otherID string, origin Origin) (int64, error) {
	if otherID == "" {
		return 0, errs.ErrMissingReceiver
	}
	if otherID == userID {
		return 0, errs.ErrSelfMessage
	}

	keys, err := s.messages.ConversationAttachmentKeys(ctx, userID, otherID)
	if err != nil {
		return 0, err
	}
	if len(keys) > 0 {
		if err := s.attachments.DeleteMany(ctx, keys); err != nil {
			s.log.Warn("voice attachment cleanup failed", zap.Int("keys", len(keys)), zap.Error(err))
		}
	}

	n, err := s.messages.DeleteConversation(ctx, userID, otherID)
	if err != nil {
		return 0, err
	}

	payload := ConversationCleared{ClearedBy: userID}
	s.emit(origin, func() {
		s.notifier.EmitTo(otherID, EventConversationCleared, payload)
		s.notifier.EmitTo(userID, EventConversationCleared, payload)
	})
	s.publish(event.ActionConversationCleared, event.ConversationCleared{ClearedBy: userID, CounterpartID: otherID, Deleted: n})
	return n, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultLimit
	}
	return min(limit, s.cfg.MaxLimit)
}

// History returns one page of the conversation in chronological order and, as
// a side effect, marks the counterpart's messages to userID as read.
func (s *Service) History(ctx context.Context, userID, otherID string, q HistoryQuery) (*HistoryPage, error) {
	if otherID == "" {
		return nil, errs.ErrMissingReceiver
	}
	limit := s.clampLimit(q.Limit)

	msgs, err := s.messages.FindConversation(ctx, userID, otherID, parseCursor(q.Before, q.BeforeID), limit+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[len(msgs)-limit:]
	}

	profiles, err := s.users.Profiles(ctx, []string{userID, otherID})
	if err != nil {
		return nil, err
	}
	page := &HistoryPage{Messages: make([]MessageView, 0, len(msgs)), HasMore: hasMore}
	for _, m := range msgs {
		page.Messages = append(page.Messages, view(m, profiles))
	}

	if _, err := s.MarkRead(ctx, userID, otherID, OriginHTTP); err != nil {
		s.log.Warn("mark read after history failed", zap.String("user", userID), zap.Error(err))
	}
	return page, nil
}

// Conversations lists the user's conversations, most recent first.
func (s *Service) Conversations(ctx context.Context, userID string) ([]ConversationView, error) {
	summaries, err := s.messages.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationView, 0, len(summaries))
	if len(summaries) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(summaries)+1)
	for _, sum := range summaries {
		ids = append(ids, sum.CounterpartID)
	}
	online, err := s.presence.Status(ctx, ids)
	if err != nil {
		s.log.Warn("presence lookup failed", zap.Error(err))
		online = map[string]bool{}
	}
	profiles, err := s.users.Profiles(ctx, append(ids, userID))
	if err != nil {
		return nil, err
	}

	for _, sum := range summaries {
		out = append(out, ConversationView{
			User:        profileOf(profiles, sum.CounterpartID),
			LastMessage: view(sum.Last, profiles),
			Label:       sum.Last.Label(),
			UnreadCount: sum.Unread,
			Online:      online[sum.CounterpartID],
		})
	}
	return out, nil
}

// Status reports presence for a batch of users.
func (s *Service) Status(ctx context.Context, userIDs []string) (map[string]bool, error) {
	return s.presence.Status(ctx, userIDs)
}

// Online lists every user currently connected.
func (s *Service) Online(ctx context.Context) ([]string, error) {
	return s.presence.Online(ctx)
}
