package model

import (
	"strings"

	"messenger-core/errs"
)

type PayloadKind string

const (
	KindText           PayloadKind = "text"
	KindVoice          PayloadKind = "voice"
	KindEncrypted      PayloadKind = "encrypted"
	KindEncryptedVoice PayloadKind = "encrypted_voice"
)

// Payload is the message body. Exactly one concrete variant is attached to a
// message; the set of variants is closed to this package.
type Payload interface {
	Kind() PayloadKind
	Encrypted() bool
	Validate() error
	apply(m *Message)
}

type Text struct {
	Body string
}

type Voice struct {
	URL        string
	Duration   float64
	StorageKey string
}

// Encrypted is an opaque ciphertext. SenderPublicKey is the key the sender
// encrypted with, frozen on the message so later key rotation keeps it readable.
type Encrypted struct {
	Ciphertext      string
	Nonce           string
	SenderPublicKey string
}

// EncryptedVoice carries an encrypted recording either inline (Ciphertext) or
// as an uploaded encrypted blob (URL/StorageKey).
type EncryptedVoice struct {
	Ciphertext      string
	Nonce           string
	SenderPublicKey string
	Duration        float64
	URL             string
	StorageKey      string
}

func (Text) Kind() PayloadKind           { return KindText }
func (Voice) Kind() PayloadKind          { return KindVoice }
func (Encrypted) Kind() PayloadKind      { return KindEncrypted }
func (EncryptedVoice) Kind() PayloadKind { return KindEncryptedVoice }

func (Text) Encrypted() bool           { return false }
func (Voice) Encrypted() bool          { return false }
func (Encrypted) Encrypted() bool      { return true }
func (EncryptedVoice) Encrypted() bool { return true }

func (p Text) Validate() error {
	if strings.TrimSpace(p.Body) == "" {
		return errs.ErrEmptyText
	}
	return nil
}

func (p Voice) Validate() error {
	if p.URL == "" {
		return errs.ErrMissingVoiceFile
	}
	if p.Duration < 0 {
		return errs.ErrInvalidDuration
	}
	return nil
}

func (p Encrypted) Validate() error {
	if p.Ciphertext == "" || p.Nonce == "" {
		return errs.ErrMalformedEncrypted
	}
	return nil
}

func (p EncryptedVoice) Validate() error {
	if p.Nonce == "" || (p.Ciphertext == "" && p.URL == "") {
		return errs.ErrMalformedEncrypted
	}
	if p.Duration < 0 {
		return errs.ErrInvalidDuration
	}
	return nil
}

func (p Text) apply(m *Message) {
	m.Text = strings.TrimSpace(p.Body)
}

func (p Voice) apply(m *Message) {
	m.VoiceURL = p.URL
	m.VoiceDuration = p.Duration
	m.VoiceStorageKey = p.StorageKey
}

func (p Encrypted) apply(m *Message) {
	m.Ciphertext = p.Ciphertext
	m.Nonce = p.Nonce
	m.SenderPublicKey = p.SenderPublicKey
}

func (p EncryptedVoice) apply(m *Message) {
	m.Ciphertext = p.Ciphertext
	m.Nonce = p.Nonce
	m.SenderPublicKey = p.SenderPublicKey
	m.VoiceDuration = p.Duration
	m.VoiceURL = p.URL
	m.VoiceStorageKey = p.StorageKey
}

// StorageKeyOf returns the external attachment reference of p, if any.
func StorageKeyOf(p Payload) string {
	switch v := p.(type) {
	case Voice:
		return v.StorageKey
	case EncryptedVoice:
		return v.StorageKey
	}
	return ""
}

// WithSenderKey fills an empty public key snapshot on encrypted variants.
func WithSenderKey(p Payload, key string) Payload {
	switch v := p.(type) {
	case Encrypted:
		if v.SenderPublicKey == "" {
			v.SenderPublicKey = key
		}
		return v
	case EncryptedVoice:
		if v.SenderPublicKey == "" {
			v.SenderPublicKey = key
		}
		return v
	}
	return p
}

// PayloadInput is the wire form of a payload: a single "type" discriminant plus
// the fields of that variant. Fields belonging to other variants are ignored.
type PayloadInput struct {
	Type            PayloadKind `json:"type"`
	Text            string      `json:"text,omitempty"`
	URL             string      `json:"url,omitempty"`
	Duration        float64     `json:"duration,omitempty"`
	StorageKey      string      `json:"storageKey,omitempty"`
	Ciphertext      string      `json:"ciphertext,omitempty"`
	Nonce           string      `json:"nonce,omitempty"`
	SenderPublicKey string      `json:"senderPublicKey,omitempty"`
}

// Decode turns the wire form into a validated Payload.
func (in *PayloadInput) Decode() (Payload, error) {
	if in == nil || in.Type == "" {
		return nil, errs.ErrEmptyPayload
	}

	var p Payload
	switch in.Type {
	case KindText:
		p = Text{Body: in.Text}
	case KindVoice:
		p = Voice{URL: in.URL, Duration: in.Duration, StorageKey: in.StorageKey}
	case KindEncrypted:
		p = Encrypted{Ciphertext: in.Ciphertext, Nonce: in.Nonce, SenderPublicKey: in.SenderPublicKey}
	case KindEncryptedVoice:
		p = EncryptedVoice{
			Ciphertext:      in.Ciphertext,
			Nonce:           in.Nonce,
			SenderPublicKey: in.SenderPublicKey,
			Duration:        in.Duration,
			URL:             in.URL,
			StorageKey:      in.StorageKey,
		}
	default:
		return nil, errs.ErrUnknownPayload
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
