package model

import (
	"time"
	"unicode/utf8"
)

// Message is a single direct message. The payload columns are flattened; Kind
// says which of them are meaningful and Payload() rebuilds the variant.
type Message struct {
	ID              string      `gorm:"primaryKey;size:36" bson:"_id" json:"id"`
	SenderID        string      `gorm:"not null;size:32;index:idx_messages_pair,priority:1" bson:"senderId" json:"senderId"`
	ReceiverID      string      `gorm:"not null;size:32;index:idx_messages_pair,priority:2;index:idx_messages_unread,priority:1" bson:"receiverId" json:"receiverId"`
	Kind            PayloadKind `gorm:"not null;size:16" bson:"kind" json:"kind"`
	Text            string      `bson:"text,omitempty" json:"text,omitempty"`
	VoiceURL        string      `bson:"voiceUrl,omitempty" json:"voiceUrl,omitempty"`
	VoiceDuration   float64     `bson:"voiceDuration,omitempty" json:"voiceDuration,omitempty"`
	VoiceStorageKey string      `bson:"voiceStorageKey,omitempty" json:"-"`
	Ciphertext      string      `bson:"ciphertext,omitempty" json:"ciphertext,omitempty"`
	Nonce           string      `bson:"nonce,omitempty" json:"nonce,omitempty"`
	SenderPublicKey string      `bson:"senderPublicKey,omitempty" json:"senderPublicKey,omitempty"`
	IsEncrypted     bool        `gorm:"not null;default:false" bson:"isEncrypted" json:"isEncrypted"`
	Read            bool        `gorm:"column:is_read;not null;default:false;index:idx_messages_unread,priority:2" bson:"read" json:"read"`
	CreatedAt       time.Time   `gorm:"not null;index:idx_messages_pair,priority:3" bson:"createdAt" json:"createdAt"`
}

// NewMessage builds an unsaved message around an already validated payload.
func NewMessage(senderID, receiverID string, p Payload) *Message {
	m := &Message{
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Kind:        p.Kind(),
		IsEncrypted: p.Encrypted(),
	}
	p.apply(m)
	return m
}

// Payload rebuilds the variant stored on the message, or nil for an unknown kind.
func (m *Message) Payload() Payload {
	switch m.Kind {
	case KindText:
		return Text{Body: m.Text}
	case KindVoice:
		return Voice{URL: m.VoiceURL, Duration: m.VoiceDuration, StorageKey: m.VoiceStorageKey}
	case KindEncrypted:
		return Encrypted{Ciphertext: m.Ciphertext, Nonce: m.Nonce, SenderPublicKey: m.SenderPublicKey}
	case KindEncryptedVoice:
		return EncryptedVoice{
			Ciphertext:      m.Ciphertext,
			Nonce:           m.Nonce,
			SenderPublicKey: m.SenderPublicKey,
			Duration:        m.VoiceDuration,
			URL:             m.VoiceURL,
			StorageKey:      m.VoiceStorageKey,
		}
	}
	return nil
}

// Counterpart returns the other participant as seen from userID.
func (m *Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

const labelMaxRunes = 100

// Label is the conversation-list preview. It never contains ciphertext.
func (m *Message) Label() string {
	switch m.Kind {
	case KindEncrypted:
		return "Encrypted message"
	case KindEncryptedVoice:
		return "Encrypted voice message"
	case KindVoice:
		return "Voice message"
	case KindText:
		return Truncate(m.Text, labelMaxRunes)
	}
	return ""
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

// ConversationSummary is one row of a user's conversation list before display
// fields are joined.
type ConversationSummary struct {
	CounterpartID string
	Last          Message
	Unread        int64
}
