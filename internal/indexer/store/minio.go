package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio stores blobs in a MinIO (or any S3-compatible) bucket.
type Minio struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinio connects to endpoint and creates bucket if it does not exist.
func NewMinio(ctx context.Context, endpoint, accessKey, secretKey string, useSSL bool, bucket, prefix string) (*Minio, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %q: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %q: %w", bucket, err)
		}
	}
	return &Minio{client: client, bucket: bucket, prefix: prefix}, nil
}

func (m *Minio) key(name string) string {
	return path.Join(m.prefix, name)
}

func isMinioNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (m *Minio) Put(ctx context.Context, name string, data []byte) error {
	if !validName(name) {
		return fmt.Errorf("invalid blob name %q", name)
	}
	_, err := m.client.PutObject(ctx, m.bucket, m.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("putting %q: %w", name, err)
	}
	return nil
}

func (m *Minio) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, m.key(name), minio.GetObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("getting %q: %w", name, err)
	}
	defer obj.Close()
	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		if isMinioNotFound(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %q: %w", name, err)
	}
	return data, nil
}

func (m *Minio) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    m.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing %q: %w", prefix, obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, m.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" && strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Minio) Delete(ctx context.Context, name string) error {
	err := m.client.RemoveObject(ctx, m.bucket, m.key(name), minio.RemoveObjectOptions{})
	if err != nil && !isMinioNotFound(err) {
		return fmt.Errorf("deleting %q: %w", name, err)
	}
	return nil
}

func (m *Minio) Close() error { return nil }
