package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"messenger-core/database"
	"messenger-core/errs"
	"messenger-core/messenger"
	"messenger-core/model"
	"messenger-core/presence"
	"messenger-core/repository"
	"messenger-core/socketio"
	"messenger-core/storage"
)

type delivery struct {
	user, event string
	payload     any
}

type recorder struct {
	mu   sync.Mutex
	sent []delivery
}

func (r *recorder) EmitTo(userID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, delivery{user: userID, event: event, payload: payload})
}

func (r *recorder) to(event string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var users []string
	for _, d := range r.sent {
		if d.event == event {
			users = append(users, d.user)
		}
	}
	return users
}

type client struct{ acks []socketio.Ack }

func (c *client) Emit(ev string, args ...any) error {
	if ev == socketio.AckEvent {
		c.acks = append(c.acks, args[0].(socketio.Ack))
	}
	return nil
}

type socketFixture struct {
	gateway    *socketio.Gateway
	rooms      *recorder
	online     *presence.Memory
	alice, bob string
}

func newSocket(t *testing.T) *socketFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	alice := &model.User{Username: "alice", Email: "alice@example.com"}
	bob := &model.User{Username: "bob", Email: "bob@example.com"}
	for _, u := range []*model.User{alice, bob} {
		require.NoError(t, db.Create(u).Error)
	}

	users := repository.NewGormUsers(db)
	online := presence.NewMemory()
	rooms := &recorder{}
	svc := messenger.New(messenger.Deps{
		Messages:    repository.NewMemoryMessages(),
		Users:       users,
		Presence:    online,
		Notifier:    rooms,
		Pusher:      silent{},
		Attachments: storage.NewMemory("https://cdn.test"),
		Log:         zap.NewNop(),
	})

	registry := socketio.NewRegistry(online, users, time.Hour, zap.NewNop())
	g := socketio.New(registry, socketio.Options{Secret: secret}, zap.NewNop())
	Socket(g, svc)

	return &socketFixture{gateway: g, rooms: rooms, online: online, alice: alice.StringID(), bob: bob.StringID()}
}

func TestSocket_SendMessageReachesBothRooms(t *testing.T) {
	f := newSocket(t)
	s := f.gateway.Attach(f.alice)
	defer s.Close(context.Background())

	var acks []socketio.Ack
	f.gateway.Dispatch(&client{}, s, EventSendMessage, []any{
		map[string]any{
			"requestId":  "r1",
			"receiverId": f.bob,
			"payload":    map[string]any{"type": "text", "text": "hello"},
		},
		func(args []any, _ error) { acks = append(acks, args[0].(socketio.Ack)) },
	})

	require.Len(t, acks, 1)
	require.True(t, acks[0].OK, "%+v", acks[0].Error)
	require.Equal(t, "r1", acks[0].RequestID)
	sent := acks[0].Data.(*messenger.MessageView)
	require.Equal(t, f.alice, sent.SenderID)
	require.Equal(t, f.bob, sent.ReceiverID)

	require.ElementsMatch(t, []string{f.alice, f.bob}, f.rooms.to(messenger.EventNewMessage))
}

func TestSocket_ErrorsAreAcknowledged(t *testing.T) {
	f := newSocket(t)
	s := f.gateway.Attach(f.alice)
	defer s.Close(context.Background())

	c := &client{}
	f.gateway.Dispatch(c, s, EventSendMessage, []any{map[string]any{
		"requestId":  "r2",
		"receiverId": f.alice,
		"payload":    map[string]any{"type": "text", "text": "me"},
	}})
	f.gateway.Dispatch(c, s, EventDeleteMessage, []any{map[string]any{
		"requestId": "r3",
		"messageId": uuid.NewString(),
	}})

	require.Len(t, c.acks, 2)
	require.Equal(t, "r2", c.acks[0].RequestID)
	require.Equal(t, errs.CodeInvalidArgument, c.acks[0].Error.Code)
	require.Equal(t, "SELF_MESSAGE", c.acks[0].Error.Reason)
	require.Equal(t, "r3", c.acks[1].RequestID)
	require.Equal(t, errs.CodePermissionDenied, c.acks[1].Error.Code)
	require.Equal(t, "NOT_MESSAGE_OWNER", c.acks[1].Error.Reason)
	require.Empty(t, f.rooms.to(messenger.EventNewMessage))
}

func TestSocket_UserStatusSeesAttachedSessions(t *testing.T) {
	f := newSocket(t)
	s := f.gateway.Attach(f.alice)

	c := &client{}
	f.gateway.Dispatch(c, s, EventUserStatus, []any{map[string]any{
		"requestId": "r4",
		"userIds":   []string{f.alice, f.bob},
	}})
	require.Len(t, c.acks, 1)
	require.Equal(t, map[string]bool{f.alice: true, f.bob: false}, c.acks[0].Data)

	s.Close(context.Background())
	has, err := f.online.Has(context.Background(), f.alice)
	require.NoError(t, err)
	require.False(t, has)
}
