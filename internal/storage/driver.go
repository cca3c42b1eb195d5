package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Driver abstracts where resource bytes live so the rest of the system never
// branches on storage medium. Keys are opaque to callers.
type Driver interface {
	// Store streams the file to the backing medium under key. It must not
	// buffer the whole file in memory.
	Store(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// DownloadURL returns a consumable URL for the object. For the local
	// driver this is a path behind the authenticated /files route; for S3 a
	// presigned URL. Callers must not rely on the URL past expiresAt.
	DownloadURL(ctx context.Context, key, displayName string) (url string, expiresAt time.Time, err error)

	// Delete removes the object. Deleting an absent key is not an error: a
	// delete racing an earlier failed delete must still converge to
	// "file gone".
	Delete(ctx context.Context, key string) error
}

// ErrNotFound is returned by DownloadURL when the key does not resolve.
var ErrNotFound = errors.New("storage: object not found")

// FailureError marks an underlying medium failure (disk full, network
// partition) so callers can distinguish it from bad input and roll back any
// metadata written alongside the bytes.
type FailureError struct {
	Op  string
	Key string
	Err error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("storage %s failed for key %q: %v", e.Op, e.Key, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

func failure(op, key string, err error) error {
	return &FailureError{Op: op, Key: key, Err: err}
}

// IsFailure reports whether err is a storage medium failure.
func IsFailure(err error) bool {
	var fe *FailureError
	return errors.As(err, &fe)
}
