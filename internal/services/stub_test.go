package services

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edushare/edushare-backend/internal/storage"
)

// memDriver is an in-memory storage.Driver for service tests.
type memDriver struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemDriver() *memDriver {
	return &memDriver{objects: map[string][]byte{}}
}

func (d *memDriver) Store(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[key] = data
	return nil
}

func (d *memDriver) DownloadURL(ctx context.Context, key, displayName string) (string, time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.objects[key]; !ok {
		return "", time.Time{}, storage.ErrNotFound
	}
	return "https://files.test/" + key, time.Now().Add(time.Hour), nil
}

func (d *memDriver) Delete(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objects, key)
	return nil
}

func (d *memDriver) has(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.objects[key]
	return ok
}

func (d *memDriver) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.objects)
}

// recordingStats captures cache invalidations.
type recordingStats struct {
	mu     sync.Mutex
	caught []uuid.UUID
}

func (s *recordingStats) Invalidate(ctx context.Context, schoolID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caught = append(s.caught, schoolID)
}

func fileOf(content string) io.Reader {
	return bytes.NewReader([]byte(content))
}
