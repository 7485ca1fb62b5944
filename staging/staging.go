// Package staging holds uploaded CSV content between the API process and the worker.
package staging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	aws_pkg "product-importer/pkg/aws"
)

// ErrNotFound is returned by Get when nothing is staged under key.
var ErrNotFound = errors.New("staged file not found")

// Stager stores upload bodies under a key derived from the task id.
type Stager interface {
	Put(ctx context.Context, taskID string, content []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// DirStager stages files in a local (or shared) directory as {task_id}.csv.
type DirStager struct {
	dir string
}

func NewDirStager(dir string) (*DirStager, error) {
	if dir == "" {
		dir = "./data/bulk_imports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &DirStager{dir: dir}, nil
}

func (s *DirStager) Put(_ context.Context, taskID string, content []byte) (string, error) {
	key := taskID + ".csv"
	if err := os.WriteFile(s.path(key), content, 0o644); err != nil {
		return "", fmt.Errorf("failed to persist file: %w", err)
	}
	return key, nil
}

func (s *DirStager) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *DirStager) Delete(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// path keeps keys inside dir.
func (s *DirStager) path(key string) string {
	return filepath.Join(s.dir, filepath.Base(filepath.Clean(key)))
}

// ObjectStore is the object storage S3Stager writes to.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

var _ ObjectStore = (*aws_pkg.S3Store)(nil)

// S3Stager stages files as objects under prefix, for workers that do not share a disk
// with the API.
type S3Stager struct {
	store  ObjectStore
	prefix string
}

func NewS3Stager(store ObjectStore, prefix string) *S3Stager {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Stager{store: store, prefix: prefix}
}

func (s *S3Stager) Put(ctx context.Context, taskID string, content []byte) (string, error) {
	key := s.prefix + taskID + ".csv"
	if err := s.store.Put(ctx, key, content, "text/csv"); err != nil {
		return "", err
	}
	return key, nil
}

func (s *S3Stager) Get(ctx context.Context, key string) ([]byte, error) {
	return s.store.Get(ctx, key)
}

func (s *S3Stager) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}
