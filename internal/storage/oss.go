package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/ncsedu/grading-service/internal/config"
)

// ObjectStorage stores submission files and hands out time-limited links.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error
	SignedURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// BuildSubmissionKey produces the object key for a student upload:
// {studentID}/{unix-timestamp}.{ext}. The timestamp keeps repeated uploads
// from the same student distinct.
func BuildSubmissionKey(studentID, filename string, now time.Time) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%d.%s", studentID, now.Unix(), ext)
}

// OSSStorage is the Aliyun OSS implementation.
type OSSStorage struct {
	client       *oss.Client
	bucket       *oss.Bucket
	bucketName   string
	signedURLTTL time.Duration
}

func NewOSSStorage(cfg config.OSSConfig) (*OSSStorage, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("missing OSS configuration: endpoint, access key and bucket are required")
	}

	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("oss.New: %w", err)
	}

	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("client.Bucket: %w", err)
	}

	return &OSSStorage{
		client:       client,
		bucket:       bucket,
		bucketName:   cfg.Bucket,
		signedURLTTL: cfg.SignedURLTTL,
	}, nil
}

func (s *OSSStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	opts := []oss.Option{
		oss.WithContext(ctx),
		oss.ContentType(contentType),
		oss.ContentDisposition("inline"),
	}
	if err := s.bucket.PutObject(key, reader, opts...); err != nil {
		return fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	return nil
}

// SignedURL returns a GET link valid for the configured TTL. The bucket is
// private; these links are the only read path for submission files.
func (s *OSSStorage) SignedURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}

	url, err := s.bucket.SignURL(key, oss.HTTPGet, int64(s.signedURLTTL.Seconds()))
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for %s: %w", key, err)
	}

	return url, nil
}

func (s *OSSStorage) Delete(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}

	if err := s.bucket.DeleteObject(key, oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}

	return nil
}

// MemoryStorage is an in-memory ObjectStorage for tests.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func (s *MemoryStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *MemoryStorage) SignedURL(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return "", fmt.Errorf("object not found: %s", key)
	}
	return "https://storage.test/" + key + "?signature=test", nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Get returns stored bytes, for test assertions.
func (s *MemoryStorage) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}
