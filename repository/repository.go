// Package repository holds the user directory and message store used by the
// messaging core, with gorm (Postgres), MongoDB and in-memory backends.
package repository

import (
	"context"
	"time"

	"messenger-core/model"
)

// Users is the slice of the user directory the messaging core consumes.
type Users interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	// Profiles returns display fields for the ids that exist; unknown ids are omitted.
	Profiles(ctx context.Context, ids []string) (map[string]model.Profile, error)
	IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)
	Block(ctx context.Context, userID, blockedID string) error
	Unblock(ctx context.Context, userID, blockedID string) error
	SetPushToken(ctx context.Context, userID, token string) error
	// SetPublicKey stores the key and marks the user E2EE enabled.
	SetPublicKey(ctx context.Context, userID, key string) error
	TouchLastSeen(ctx context.Context, userID string, at time.Time) error
	// PushTokens returns the non-empty push tokens of the given users.
	PushTokens(ctx context.Context, ids []string) ([]string, error)
}

// Messages persists direct messages. A conversation is the unordered pair
// (a, b); every pair query matches both directions.
type Messages interface {
	// Create assigns an id and timestamp when missing and stores m.
	Create(ctx context.Context, m *model.Message) error
	Get(ctx context.Context, id string) (*model.Message, error)
	// FindConversation returns at most limit of the newest messages of the
	// pair, older than before when set, in chronological order.
	FindConversation(ctx context.Context, a, b string, before *Cursor, limit int) ([]model.Message, error)
	// ListConversations returns one summary per counterpart of userID, most
	// recent conversation first.
	ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error)
	// MarkRead flips every unread message from senderID to receiverID and
	// returns the ids this call changed. Concurrent calls never report the
	// same id twice.
	MarkRead(ctx context.Context, senderID, receiverID string) ([]string, error)
	Delete(ctx context.Context, id string) error
	// ConversationAttachmentKeys lists the external storage references held by the pair.
	ConversationAttachmentKeys(ctx context.Context, a, b string) ([]string, error)
	DeleteConversation(ctx context.Context, a, b string) (int64, error)
}

// Cursor is the oldest message a client already holds. Messages are ordered
// by (createdAt, id); a cursor without an id compares on time alone.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// After reports whether m sorts at or after c, so it belongs to a newer page.
func (c *Cursor) After(m *model.Message) bool {
	if c == nil {
		return false
	}
	if !m.CreatedAt.Equal(c.CreatedAt) {
		return m.CreatedAt.After(c.CreatedAt)
	}
	return c.ID == "" || m.ID >= c.ID
}
