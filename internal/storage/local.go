package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edushare/edushare-backend/internal/pkg/logger"
)

const localURLTTL = time.Hour

// localDriver keeps objects as plain files under a root directory. URLs point
// at the authenticated /files route served by the API itself.
type localDriver struct {
	log     *logger.Logger
	root    string
	baseURL string
}

func NewLocalDriver(log *logger.Logger, root, baseURL string) (Driver, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage root: %w", err)
	}
	return &localDriver{
		log:     log.With("driver", "LocalDriver"),
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// path resolves key inside the root, rejecting traversal outside it.
func (d *localDriver) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(d.root, clean), nil
}

func (d *localDriver) Store(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return failure("store", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return failure("store", key, err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		return failure("store", key, err)
	}
	if size > 0 && written != size {
		return failure("store", key, fmt.Errorf("short write: got %d bytes, want %d", written, size))
	}
	if err := tmp.Close(); err != nil {
		return failure("store", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return failure("store", key, err)
	}
	return nil
}

func (d *localDriver) DownloadURL(ctx context.Context, key, displayName string) (string, time.Time, error) {
	p, err := d.path(key)
	if err != nil {
		return "", time.Time{}, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", time.Time{}, ErrNotFound
		}
		return "", time.Time{}, failure("stat", key, err)
	}
	u := d.baseURL + "/files/" + key
	if displayName != "" {
		u += "?filename=" + url.QueryEscape(displayName)
	}
	return u, time.Now().Add(localURLTTL), nil
}

func (d *localDriver) Delete(ctx context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.log.Warn("Delete of absent object, treating as already gone", "storage_key", key)
			return nil
		}
		return failure("delete", key, err)
	}
	return nil
}

// Open hands the raw bytes to the /files route in local mode.
func (d *localDriver) Open(key string) (io.ReadSeekCloser, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, failure("open", key, err)
	}
	return f, nil
}

// Opener is implemented by drivers that can serve bytes directly. Only the
// local driver does; S3 clients fetch from the presigned URL instead.
type Opener interface {
	Open(key string) (io.ReadSeekCloser, error)
}
