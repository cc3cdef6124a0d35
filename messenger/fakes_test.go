package messenger

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"messenger-core/event"
	"messenger-core/model"
	"messenger-core/presence"
	"messenger-core/push"
	"messenger-core/repository"
	"messenger-core/storage"
)

type emitted struct {
	To      string
	Event   string
	Payload any
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []emitted
}

var _ Notifier = (*fakeNotifier)(nil)

func (f *fakeNotifier) EmitTo(userID, ev string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, emitted{To: userID, Event: ev, Payload: payload})
}

func (f *fakeNotifier) of(ev string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.sent {
		if e.Event == ev {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeNotifier) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

type pushCall struct {
	N      push.Notification
	Tokens []string
}

type fakePusher struct {
	mu    sync.Mutex
	calls []pushCall
}

var _ Pusher = (*fakePusher)(nil)

func (f *fakePusher) Send(_ context.Context, n push.Notification, tokens ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{N: n, Tokens: tokens})
	return len(tokens)
}

type published struct {
	Action  string
	Payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

var _ event.Publisher = (*fakePublisher)(nil)

func (f *fakePublisher) Publish(_ context.Context, action string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{Action: action, Payload: payload})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Action
	}
	return out
}

type harness struct {
	svc      *Service
	users    *repository.MemoryUsers
	messages *repository.MemoryMessages
	presence *presence.Memory
	notifier *fakeNotifier
	pusher   *fakePusher
	files    *storage.Memory
	events   *fakePublisher

	alice, bob, carol string
}

var epoch = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		users:    repository.NewMemoryUsers(),
		messages: repository.NewMemoryMessages(),
		presence: presence.NewMemory(),
		notifier: &fakeNotifier{},
		pusher:   &fakePusher{},
		files:    storage.NewMemory("https://cdn.test"),
		events:   &fakePublisher{},
	}
	h.alice = h.users.Put(&model.User{Username: "alice", Avatar: "a.png", PushToken: "ExponentPushToken[alice]"}).StringID()
	h.bob = h.users.Put(&model.User{Username: "bob", PushToken: "ExponentPushToken[bob]"}).StringID()
	h.carol = h.users.Put(&model.User{Username: "carol"}).StringID()

	h.svc = New(Deps{
		Messages:    h.messages,
		Users:       h.users,
		Presence:    h.presence,
		Notifier:    h.notifier,
		Pusher:      h.pusher,
		Attachments: h.files,
		Events:      h.events,
		Config:      cfg,
		Log:         zap.NewNop(),
	})
	tick := epoch
	h.svc.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	h.svc.spawn = func(f func()) { f() }
	return h
}

func defaultConfig() Config {
	return Config{DefaultLimit: 50, MaxLimit: 100}
}

func text(receiverID, body string) SendInput {
	return SendInput{ReceiverID: receiverID, Payload: &model.PayloadInput{Type: model.KindText, Text: body}}
}

func (h *harness) count(t *testing.T, a, b string) int {
	t.Helper()
	msgs, err := h.messages.FindConversation(context.Background(), a, b, nil, 1000)
	if err != nil {
		t.Fatal(err)
	}
	return len(msgs)
}
