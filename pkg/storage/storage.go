// Package storage writes downloaded artifacts to a blob bucket: a local
// directory, an in-memory bucket, or any gocloud.dev bucket URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

type Storage struct {
	bucket   *blob.Bucket
	location string
}

// FileStats holds metadata about a stored file without reading its contents.
type FileStats struct {
	SizeBytes   int64
	ModTime     time.Time
	ContentType string
}

// Open opens location. A value containing "://" is treated as a bucket URL
// (file://, mem://); anything else is a local directory, created if needed.
func Open(ctx context.Context, location string) (*Storage, error) {
	if strings.Contains(location, "://") {
		bucket, err := blob.OpenBucket(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("failed to open bucket %s: %w", location, err)
		}
		return &Storage{bucket: bucket, location: location}, nil
	}

	dir, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open output dir %s: %w", dir, err)
	}
	return &Storage{bucket: bucket, location: dir}, nil
}

// New wraps an already opened bucket.
func New(bucket *blob.Bucket, location string) *Storage {
	return &Storage{bucket: bucket, location: location}
}

// Location is the directory or bucket URL the storage writes to.
func (s *Storage) Location() string { return s.location }

func (s *Storage) Close() error { return s.bucket.Close() }

func (s *Storage) SaveFile(ctx context.Context, key string, content []byte, contentType string) error {
	opts := &blob.WriterOptions{ContentType: contentType}
	if err := s.bucket.WriteAll(ctx, key, content, opts); err != nil {
		return fmt.Errorf("error saving file %s: %w", key, err)
	}
	return nil
}

func (s *Storage) ReadFile(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("error reading file %s: %w", key, err)
	}
	return data, nil
}

func (s *Storage) HasFile(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("error checking file %s: %w", key, err)
	}
	return ok, nil
}

// GetFileStats returns metadata about a stored file.
func (s *Storage) GetFileStats(ctx context.Context, key string) (*FileStats, error) {
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("error getting file stats %s: %w", key, os.ErrNotExist)
		}
		return nil, fmt.Errorf("error getting file stats %s: %w", key, err)
	}
	return &FileStats{
		SizeBytes:   attrs.Size,
		ModTime:     attrs.ModTime,
		ContentType: attrs.ContentType,
	}, nil
}

// Path returns where key lives, as a filesystem path for local directories.
func (s *Storage) Path(key string) string {
	if strings.Contains(s.location, "://") {
		return strings.TrimSuffix(s.location, "/") + "/" + key
	}
	return filepath.Join(s.location, filepath.FromSlash(key))
}

// IsNotExist reports whether err means a missing file.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist) || gcerrors.Code(err) == gcerrors.NotFound
}
