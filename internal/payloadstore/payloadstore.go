// Package payloadstore offloads oversized payload documents to the object
// store. Objects are content-addressed, so repeated deliveries of the same
// document land on the same key.
package payloadstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/seqportal/runhub/internal/platform/env"
)

// DefaultThreshold is the inline size limit. Documents at or below it stay
// in the database row.
const DefaultThreshold = 256 * 1024

type objectClient interface {
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// Store writes payload documents past the threshold into one bucket.
// A nil Store disables offloading.
type Store struct {
	client    objectClient
	bucket    string
	threshold int
}

// ThresholdFromEnv reads the offload threshold. Zero disables offloading.
func ThresholdFromEnv() (int, error) {
	v, err := env.Int("RUNHUB_PAYLOAD_OFFLOAD_BYTES", DefaultThreshold)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("RUNHUB_PAYLOAD_OFFLOAD_BYTES must not be negative")
	}
	return v, nil
}

func New(client *minio.Client, bucket string, threshold int) *Store {
	if client == nil || strings.TrimSpace(bucket) == "" || threshold <= 0 {
		return nil
	}
	return &Store{client: client, bucket: bucket, threshold: threshold}
}

func newOver(client objectClient, bucket string, threshold int) *Store {
	return &Store{client: client, bucket: bucket, threshold: threshold}
}

// ShouldOffload reports whether a document of the given size leaves the row.
func (s *Store) ShouldOffload(size int) bool {
	return s != nil && s.client != nil && size > s.threshold
}

// ObjectKey derives the content-addressed key for a payload hash.
func ObjectKey(contentHash string) string {
	contentHash = strings.TrimSpace(contentHash)
	if len(contentHash) < 2 {
		return "payloads/" + contentHash + ".json"
	}
	return "payloads/" + contentHash[:2] + "/" + contentHash + ".json"
}

// Put uploads the document and returns its object key.
func (s *Store) Put(ctx context.Context, contentHash string, data []byte) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("payload store not initialized")
	}
	if strings.TrimSpace(contentHash) == "" {
		return "", fmt.Errorf("content hash is required")
	}
	key := ObjectKey(contentHash)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("put payload object: %w", err)
	}
	return key, nil
}

// Get fetches an offloaded document by key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("payload store not initialized")
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get payload object: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read payload object: %w", err)
	}
	return data, nil
}
