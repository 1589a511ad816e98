package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	cases := map[string]string{
		"report.pdf":           "report.pdf",
		"../../etc/passwd":     "passwd",
		`C:\Users\me\cv.docx`:  "cv.docx",
		"my notes (v2).txt":    "my_notes_v2_.txt",
		"..":                   "upload",
		"":                     "upload",
	}
	for in, want := range cases {
		assert.Equal(t, id.String()+"_"+want, Key(id, in), "filename %q", in)
	}
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key := Key(uuid.New(), "a.txt")
	require.NoError(t, s.Store(ctx, key, strings.NewReader("hello"), "text/plain"))

	rc, err := s.Load(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Load(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.NoError(t, s.Delete(ctx, key), "delete is idempotent")
}

func TestLocalStorage_RejectsPathKeys(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "..", "../x", "a/b"} {
		assert.Error(t, s.Store(context.Background(), key, strings.NewReader("x"), ""), "key %q", key)
	}
}

func TestLocalStorage_CancelledStoreLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, s.Store(ctx, "k", strings.NewReader("data"), ""))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSupabaseStorage(t *testing.T) {
	var (
		mu      sync.Mutex
		objects = map[string]string{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer service-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		mu.Lock()
		defer mu.Unlock()

		path := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/")
		switch r.Method {
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			objects[path] = string(body)
		case http.MethodGet:
			v, ok := objects[path]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			io.WriteString(w, v)
		case http.MethodDelete:
			delete(objects, path)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	s := NewSupabaseStorage(srv.URL, "service-key", "documents")

	require.NoError(t, s.Store(ctx, "doc_a.txt", strings.NewReader("bytes"), "text/plain"))
	mu.Lock()
	assert.Equal(t, "bytes", objects["documents/doc_a.txt"])
	mu.Unlock()

	rc, err := s.Load(ctx, "doc_a.txt")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "bytes", string(data))

	require.NoError(t, s.Delete(ctx, "doc_a.txt"))
	_, err = s.Load(ctx, "doc_a.txt")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	bad := NewSupabaseStorage(srv.URL, "wrong", "documents")
	assert.Error(t, bad.Store(ctx, "x", strings.NewReader("x"), "text/plain"))
}
