package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/edushare/edushare-backend/internal/pkg/logger"
)

func newTestLocalDriver(t *testing.T) Driver {
	t.Helper()
	d, err := NewLocalDriver(logger.NewNop(), t.TempDir(), "http://localhost:8080")
	if err != nil {
		t.Fatalf("NewLocalDriver: %v", err)
	}
	return d
}

func TestLocalDriverStoreAndOpen(t *testing.T) {
	d := newTestLocalDriver(t)
	ctx := context.Background()

	content := []byte("worksheet bytes")
	key := "resources/school-1/res-1"
	if err := d.Store(ctx, key, bytes.NewReader(content), int64(len(content)), "application/pdf"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	opener, ok := d.(Opener)
	if !ok {
		t.Fatalf("local driver must implement Opener")
	}
	f, err := opener.Open(key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("stored bytes mismatch: %q", got)
	}
}

func TestLocalDriverStoreShortWrite(t *testing.T) {
	d := newTestLocalDriver(t)
	ctx := context.Background()

	err := d.Store(ctx, "k", strings.NewReader("abc"), 10, "text/plain")
	if err == nil {
		t.Fatalf("expected short-write error")
	}
	if !IsFailure(err) {
		t.Fatalf("expected a storage failure, got %v", err)
	}
}

func TestLocalDriverDownloadURL(t *testing.T) {
	d := newTestLocalDriver(t)
	ctx := context.Background()

	key := "resources/school-1/res-2"
	if err := d.Store(ctx, key, strings.NewReader("x"), 1, "text/plain"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	u, expiresAt, err := d.DownloadURL(ctx, key, "My Lesson.pdf")
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	if !strings.HasPrefix(u, "http://localhost:8080/files/"+key) {
		t.Fatalf("unexpected URL: %q", u)
	}
	if !strings.Contains(u, "filename=My+Lesson.pdf") {
		t.Fatalf("display name not propagated: %q", u)
	}
	if expiresAt.IsZero() {
		t.Fatalf("expected an expiry on the URL")
	}

	if _, _, err := d.DownloadURL(ctx, "resources/nope", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing object: expected ErrNotFound, got %v", err)
	}
}

func TestLocalDriverDeleteIdempotent(t *testing.T) {
	d := newTestLocalDriver(t)
	ctx := context.Background()

	key := "resources/school-1/res-3"
	if err := d.Store(ctx, key, strings.NewReader("x"), 1, "text/plain"); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := d.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Deleting an already-deleted object is not an error.
	if err := d.Delete(ctx, key); err != nil {
		t.Fatalf("Delete (again): %v", err)
	}
	if _, _, err := d.DownloadURL(ctx, key, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLocalDriverRejectsTraversal(t *testing.T) {
	d := newTestLocalDriver(t)
	ctx := context.Background()

	for _, key := range []string{
		"../outside",
		"..",
		"/etc/passwd",
		"a/../../outside",
	} {
		if err := d.Store(ctx, key, strings.NewReader("x"), 1, "text/plain"); err == nil {
			t.Fatalf("Store(%q): expected traversal rejection", key)
		}
		if err := d.Delete(ctx, key); err == nil {
			t.Fatalf("Delete(%q): expected traversal rejection", key)
		}
	}
}
