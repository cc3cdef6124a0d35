package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"messenger-core/controller"
	"messenger-core/database"
	"messenger-core/messenger"
	"messenger-core/model"
	"messenger-core/presence"
	"messenger-core/push"
	"messenger-core/repository"
	"messenger-core/storage"
	"messenger-core/utils"
)

const secret = "router-secret"

type silent struct{}

func (silent) EmitTo(string, string, any) {}

func (silent) Send(context.Context, push.Notification, ...string) int { return 0 }

type testApp struct {
	app          *fiber.App
	online       *presence.Memory
	admin, alice string
	bob          string
}

func newApp(t *testing.T) *testApp {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	admin := &model.User{Username: "root", Email: "root@example.com", Role: database.AdminRole}
	alice := &model.User{Username: "alice", Email: "alice@example.com"}
	bob := &model.User{Username: "bob", Email: "bob@example.com"}
	for _, u := range []*model.User{admin, alice, bob} {
		require.NoError(t, db.Create(u).Error)
	}

	enforcer, err := database.Casbin(db)
	require.NoError(t, err)

	online := presence.NewMemory()
	files := storage.NewMemory("https://cdn.test")
	svc := messenger.New(messenger.Deps{
		Messages:    repository.NewMemoryMessages(),
		Users:       repository.NewGormUsers(db),
		Presence:    online,
		Notifier:    silent{},
		Pusher:      silent{},
		Attachments: files,
		Log:         zap.NewNop(),
	})

	app := fiber.New()
	Rest(app, Handlers{
		Messenger: controller.NewMessenger(svc, files, 1<<20, zap.NewNop()),
		User:      controller.NewUser(svc),
		Admin:     controller.NewAdmin(svc),
	}, secret, enforcer, zap.NewNop())

	return &testApp{app: app, online: online, admin: admin.StringID(), alice: alice.StringID(), bob: bob.StringID()}
}

func (a *testApp) call(t *testing.T, method, path, userID string, body any) (int, json.RawMessage) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		tok, err := utils.GenerateToken(userID, false, time.Hour, secret)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return resp.StatusCode, env.Data
}

func TestRest_FixedPathsWinOverParameters(t *testing.T) {
	a := newApp(t)

	status, data := a.call(t, http.MethodGet, "/v1/messages/conversations", a.alice, nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `[]`, string(data))

	status, _ = a.call(t, http.MethodPost, "/v1/messages", a.alice, map[string]any{
		"receiverId": a.bob,
		"payload":    map[string]any{"type": "text", "text": "hello"},
	})
	require.Equal(t, http.StatusCreated, status)

	status, data = a.call(t, http.MethodGet, "/v1/messages/"+a.bob, a.alice, nil)
	require.Equal(t, http.StatusOK, status)
	var page messenger.HistoryPage
	require.NoError(t, json.Unmarshal(data, &page))
	require.Len(t, page.Messages, 1)

	status, data = a.call(t, http.MethodDelete, "/v1/messages/conversation/"+a.bob, a.alice, nil)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"deleted":1}`, string(data))
}

func TestRest_AdminPresenceRequiresRole(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.online.Add(context.Background(), a.bob))
	require.NoError(t, a.online.Add(context.Background(), a.alice))

	status, _ := a.call(t, http.MethodGet, "/v1/admin/presence", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = a.call(t, http.MethodGet, "/v1/admin/presence", a.alice, nil)
	require.Equal(t, http.StatusForbidden, status)

	status, data := a.call(t, http.MethodGet, "/v1/admin/presence", a.admin, nil)
	require.Equal(t, http.StatusOK, status)
	var overview struct {
		Count int      `json:"count"`
		Users []string `json:"users"`
	}
	require.NoError(t, json.Unmarshal(data, &overview))
	require.Equal(t, 2, overview.Count)
	require.ElementsMatch(t, []string{a.alice, a.bob}, overview.Users)
}

func TestRest_PublicKeyEnablesEncryptedDelivery(t *testing.T) {
	a := newApp(t)
	encrypted := map[string]any{
		"receiverId": a.bob,
		"payload":    map[string]any{"type": "encrypted", "ciphertext": "Y2lwaGVy", "nonce": "bm9uY2U="},
	}

	status, _ := a.call(t, http.MethodPost, "/v1/messages", a.alice, encrypted)
	require.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = a.call(t, http.MethodPut, "/v1/users/public-key", a.bob, map[string]string{"publicKey": "bob-public"})
	require.Equal(t, http.StatusOK, status)

	status, data := a.call(t, http.MethodPost, "/v1/messages", a.alice, encrypted)
	require.Equal(t, http.StatusCreated, status)
	var sent messenger.MessageView
	require.NoError(t, json.Unmarshal(data, &sent))
	require.True(t, sent.IsEncrypted)
	require.Equal(t, "Y2lwaGVy", sent.Ciphertext)
}
