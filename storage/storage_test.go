package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

func TestVoiceKey(t *testing.T) {
	key := VoiceKey("42", "clip.M4A")
	require.True(t, strings.HasPrefix(key, "voice/42/"))
	require.True(t, strings.HasSuffix(key, ".m4a"))
	require.True(t, OwnsKey("42", key))
	require.False(t, OwnsKey("4", key))
	require.False(t, OwnsKey("43", key))
	require.False(t, OwnsKey("42", "voice/42/"))
	require.False(t, OwnsKey("42", "voice/42/../7/x.m4a"))

	require.NotEqual(t, key, VoiceKey("42", "clip.m4a"))
	require.False(t, strings.Contains(VoiceKey("42", "../../etc/passwd"), ".."))
}

type fakeS3 struct {
	mu      sync.Mutex
	puts    map[string]string
	deletes []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.puts[r.URL.Path] = string(body)
		w.Header().Set("ETag", `"etag"`)
	case r.Method == http.MethodPost && r.URL.Query().Has("delete"):
		body, _ := io.ReadAll(r.Body)
		f.deletes = append(f.deletes, string(body))
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><DeleteResult></DeleteResult>`))
	case r.Method == http.MethodDelete:
		f.deletes = append(f.deletes, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newTestS3(t *testing.T, publicBase string) (*S3, *fakeS3) {
	t.Helper()
	fake := &fakeS3{puts: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  aws.AnonymousCredentials{},
	})
	return NewS3FromClient(client, "voices", publicBase), fake
}

func TestS3_UploadDelete(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestS3(t, "https://cdn.example.com")

	url, err := s.Upload(ctx, "voice/1/a.m4a", "audio/mp4", strings.NewReader("audio"))
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/voice/1/a.m4a", url)
	require.Contains(t, fake.puts["/voices/voice/1/a.m4a"], "audio")

	require.NoError(t, s.Delete(ctx, "voice/1/a.m4a"))
	require.NoError(t, s.DeleteMany(ctx, []string{"voice/1/b.m4a", "voice/2/c.m4a"}))

	require.Len(t, fake.deletes, 2)
	require.Equal(t, "/voices/voice/1/a.m4a", fake.deletes[0])
	require.Contains(t, fake.deletes[1], "voice/1/b.m4a")
	require.Contains(t, fake.deletes[1], "voice/2/c.m4a")
}

func TestS3_DeleteManyEmpty(t *testing.T) {
	s, fake := newTestS3(t, "")
	require.NoError(t, s.DeleteMany(context.Background(), nil))
	require.Empty(t, fake.deletes)
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("http://local")
	url, err := m.Upload(ctx, "voice/1/x", "audio/mpeg", strings.NewReader("x"))
	require.NoError(t, err)
	require.Equal(t, "http://local/voice/1/x", url)
	require.True(t, m.Has("voice/1/x"))

	require.NoError(t, m.Delete(ctx, "voice/1/x"))
	require.False(t, m.Has("voice/1/x"))

	m.FailDeletes = true
	require.Error(t, m.DeleteMany(ctx, []string{"a", "b"}))
	require.Equal(t, []string{"voice/1/x", "a", "b"}, m.DeletedKeys())
}
