package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore keeps objects in a Cloud Storage bucket under an optional prefix.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a store backed by bucket. It assumes Application Default
// Credentials are configured unless opts say otherwise.
func NewGCSStore(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewGCSStore: bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: create storage client: %w", err)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Put uploads data, overwriting any object with the same name.
func (s *GCSStore) Put(ctx context.Context, name string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(s.prefix + name).NewWriter(ctx)
	w.ContentType = contentType(name)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("GCSStore.Put: writing %q: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("GCSStore.Put: finalize upload %q: %w", name, err)
	}
	return nil
}

// Get downloads the object bytes.
func (s *GCSStore) Get(ctx context.Context, name string) ([]byte, error) {
	data, err := s.read(ctx, s.bucket, s.prefix+name)
	if err != nil {
		return nil, fmt.Errorf("GCSStore.Get: %w", err)
	}
	return data, nil
}

// List returns the names of all objects under the prefix.
func (s *GCSStore) List(ctx context.Context) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("GCSStore.List: iterating bucket %s: %w", s.bucket, err)
		}
		name := strings.TrimPrefix(attrs.Name, s.prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the object.
func (s *GCSStore) Delete(ctx context.Context, name string) error {
	err := s.client.Bucket(s.bucket).Object(s.prefix + name).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("GCSStore.Delete: %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("GCSStore.Delete: %q: %w", name, err)
	}
	return nil
}

// ReadURI downloads any object addressed as gs://bucket/path.
func (s *GCSStore) ReadURI(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := SplitGCSURI(uri)
	if err != nil {
		return nil, fmt.Errorf("GCSStore.ReadURI: %w", err)
	}
	data, err := s.read(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("GCSStore.ReadURI: %w", err)
	}
	return data, nil
}

func (s *GCSStore) read(ctx context.Context, bucket, object string) ([]byte, error) {
	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("reading object %s/%s: %w", bucket, object, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading bytes of %s/%s: %w", bucket, object, err)
	}
	return data, nil
}

// SplitGCSURI splits "gs://bucket/path/to/file" into bucket and object path.
func SplitGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// BaseName returns the file name of a local path or gs:// URI.
func BaseName(uri string) string {
	if _, object, err := SplitGCSURI(uri); err == nil {
		return path.Base(object)
	}
	return path.Base(uri)
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
