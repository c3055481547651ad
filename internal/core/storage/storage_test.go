package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/seckatie/linkkeeper/internal/config"
)

func TestFSPutGet(t *testing.T) {
	ctx := context.Background()
	store := NewFS(t.TempDir())

	if err := store.Put(ctx, "archives/3/7.html", []byte("<html>v1</html>"), "text/html"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "archives/3/7.html", []byte("<html>v2</html>"), "text/html"); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}

	got, err := store.Get(ctx, "archives/3/7.html")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "<html>v2</html>" {
		t.Errorf("Get = %q, want overwritten body", got)
	}

	matches, _ := filepath.Glob(filepath.Join(store.root, "archives", "3", ".tmp-*"))
	if len(matches) != 0 {
		t.Errorf("expected temp files to be cleaned up, found %v", matches)
	}
}

func TestFSGetMissing(t *testing.T) {
	_, err := NewFS(t.TempDir()).Get(context.Background(), "archives/1/1.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFSRejectsEscapingKeys(t *testing.T) {
	store := NewFS(t.TempDir())
	for _, key := range []string{"", "../outside", "/etc/passwd", "archives/../../x"} {
		if err := store.Put(context.Background(), key, []byte("x"), ""); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}

// fakeS3 serves path-style PutObject and GetObject requests.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.types[key] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
			return
		}
		w.Header().Set("Content-Type", f.types[key])
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) object(key string) (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.objects[key]), f.types[key]
}

func setTestAWSEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
}

func TestS3PutGet(t *testing.T) {
	setTestAWSEnv(t)
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	ts := httptest.NewServer(fake)
	defer ts.Close()

	ctx := context.Background()
	store, err := NewS3(ctx, S3Options{
		Bucket:       "archives",
		Region:       "us-east-1",
		Endpoint:     ts.URL,
		UsePathStyle: true,
	})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}

	if err := store.Put(ctx, "archives/1/2.pdf", []byte("%PDF-1.4"), "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	body, ct := fake.object("archives/archives/1/2.pdf")
	if body != "%PDF-1.4" {
		t.Errorf("stored object = %q", body)
	}
	if ct != "application/pdf" {
		t.Errorf("stored content type = %q", ct)
	}

	got, err := store.Get(ctx, "archives/1/2.pdf")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "%PDF-1.4" {
		t.Errorf("Get = %q", got)
	}

	if _, err := store.Get(ctx, "archives/1/missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenDefaultsToFilesystem(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(context.Background(), config.Config{StorageFolder: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fsStore, ok := store.(*FS)
	if !ok {
		t.Fatalf("expected *FS, got %T", store)
	}
	if fsStore.root != dir {
		t.Errorf("root = %q, want %q", fsStore.root, dir)
	}
}
