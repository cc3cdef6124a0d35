// Package storage keeps voice attachments in object storage.
package storage

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Store uploads and removes attachment objects addressed by key.
type Store interface {
	// Upload stores body under key and returns its public URL.
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) error
}

const voicePrefix = "voice/"

// VoiceKey returns a fresh object key under the owner's voice prefix,
// keeping the extension of the uploaded file name.
func VoiceKey(userID, filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(filename)))
	if len(ext) > 8 {
		ext = ""
	}
	return voicePrefix + userID + "/" + uuid.NewString() + ext
}

// OwnsKey reports whether key was issued by VoiceKey for userID.
func OwnsKey(userID, key string) bool {
	prefix := voicePrefix + userID + "/"
	return strings.HasPrefix(key, prefix) && len(key) > len(prefix) && !strings.Contains(key[len(prefix):], "/")
}
