package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestContentKey(t *testing.T) {
	tests := []struct {
		digest, ext, want string
	}{
		{"ABCDEF", "pdf", "ab/abcdef.pdf"},
		{"abcdef", ".html", "ab/abcdef.html"},
		{"abcdef", "", "ab/abcdef"},
	}
	for _, tt := range tests {
		if got := ContentKey(tt.digest, tt.ext); got != tt.want {
			t.Fatalf("ContentKey(%q, %q) = %q, want %q", tt.digest, tt.ext, got, tt.want)
		}
	}
}

func TestLocalPutIsWriteOnce(t *testing.T) {
	store, err := NewLocal(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()
	key := ContentKey("abcdef", "pdf")

	written, err := store.Put(ctx, key, []byte("first"))
	if err != nil || !written {
		t.Fatalf("first Put: written=%v err=%v", written, err)
	}
	written, err = store.Put(ctx, key, []byte("second"))
	if err != nil || written {
		t.Fatalf("second Put: written=%v err=%v", written, err)
	}
	data, err := store.Get(ctx, key)
	if err != nil || string(data) != "first" {
		t.Fatalf("Get = %q, %v", data, err)
	}
	ok, err := store.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	entries, err := os.ReadDir(filepath.Dir(store.Location(key)))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestLocalMissingAndInvalidKeys(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Get(ctx, "ab/missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, err := store.Exists(ctx, "ab/missing.pdf"); err != nil || ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	for _, key := range []string{"", "../escape", "/abs", "a/../b"} {
		if _, err := store.Put(ctx, key, nil); err == nil {
			t.Fatalf("expected invalid key error for %q", key)
		}
	}
}

func TestPreconditionFailed(t *testing.T) {
	wrapped := fmt.Errorf("close: %w", &googleapi.Error{Code: 412})
	if !preconditionFailed(wrapped) {
		t.Fatal("412 should count as an existing object")
	}
	if preconditionFailed(&googleapi.Error{Code: 500}) {
		t.Fatal("500 is not a precondition failure")
	}
}
