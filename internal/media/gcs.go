// Google Cloud Storage media store backend.
//
// Media files live in an upstream GCS bucket under {prefix}{kind}/{name}.
// Credentials are resolved via Application Default Credentials
// (GOOGLE_APPLICATION_CREDENTIALS, gcloud auth, metadata server) unless a
// service account key file is configured.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSAPI defines the subset of the GCS client interface that the media store
// uses. This allows mocking in tests.
type GCSAPI interface {
	// NewWriter returns a writer for the given GCS object.
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
	// NewReader returns a reader for the given GCS object.
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	// Delete deletes the given GCS object.
	Delete(ctx context.Context, bucket, object string) error
	// Attrs returns the attributes of the given GCS object.
	Attrs(ctx context.Context, bucket, object string) (*GCSAttrs, error)
	// ListObjects lists objects with the given prefix.
	ListObjects(ctx context.Context, bucket, prefix string) ([]GCSAttrs, error)
}

// GCSAttrs holds object attributes returned from GCS operations.
type GCSAttrs struct {
	Name    string
	Size    int64
	Updated int64 // Unix seconds
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	return c.client.Bucket(bucket).Object(object).NewWriter(ctx)
}

func (c *realGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (c *realGCSClient) Delete(ctx context.Context, bucket, object string) error {
	return c.client.Bucket(bucket).Object(object).Delete(ctx)
}

func (c *realGCSClient) Attrs(ctx context.Context, bucket, object string) (*GCSAttrs, error) {
	attrs, err := c.client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSAttrs{Name: attrs.Name, Size: attrs.Size, Updated: attrs.Updated.Unix()}, nil
}

func (c *realGCSClient) ListObjects(ctx context.Context, bucket, prefix string) ([]GCSAttrs, error) {
	it := c.client.Bucket(bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	var out []GCSAttrs
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, GCSAttrs{Name: attrs.Name, Size: attrs.Size, Updated: attrs.Updated.Unix()})
	}
	return out, nil
}

// GCSStore implements the Store interface on an upstream GCS bucket.
type GCSStore struct {
	// Bucket is the upstream GCS bucket name.
	Bucket string
	// Prefix is the object name prefix for all media in the bucket.
	Prefix string
	// client is the GCS client (satisfying GCSAPI interface).
	client GCSAPI
}

// NewGCSStore creates a GCSStore for the given bucket using Application
// Default Credentials or the given service account key file.
func NewGCSStore(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	s := &GCSStore{
		Bucket: bucket,
		Prefix: prefix,
		client: &realGCSClient{client: client},
	}

	// Verify the upstream bucket is accessible.
	if _, err := s.client.ListObjects(ctx, bucket, "\x00nonexistent\x00"); err != nil {
		return nil, fmt.Errorf("cannot access upstream GCS bucket %q: %w", bucket, err)
	}

	slog.Info("GCS media store initialized", "bucket", bucket, "prefix", prefix)
	return s, nil
}

// NewGCSStoreWithClient creates a GCSStore with a pre-configured client.
// This is primarily used for testing with mock clients.
func NewGCSStoreWithClient(bucket, prefix string, client GCSAPI) *GCSStore {
	return &GCSStore{Bucket: bucket, Prefix: prefix, client: client}
}

// object maps a media reference to an upstream GCS object name.
func (s *GCSStore) object(ref string) string {
	return s.Prefix + ref
}

func (s *GCSStore) Put(ctx context.Context, kind, ext string, r io.Reader) (string, error) {
	ref, ok := CleanRef(kind + "/" + newName(ext))
	if !ok {
		return "", fmt.Errorf("invalid media kind %q", kind)
	}

	w := s.client.NewWriter(ctx, s.Bucket, s.object(ref))
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("writing media to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing media in GCS: %w", err)
	}
	return ref, nil
}

func (s *GCSStore) Open(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	clean, ok := CleanRef(ref)
	if !ok {
		return nil, 0, fmt.Errorf("invalid media reference %q", ref)
	}

	attrs, err := s.client.Attrs(ctx, s.Bucket, s.object(clean))
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, 0, fmt.Errorf("media file not found: %s: %w", clean, fs.ErrNotExist)
		}
		return nil, 0, fmt.Errorf("stat media in GCS: %w", err)
	}

	rc, err := s.client.NewReader(ctx, s.Bucket, s.object(clean))
	if err != nil {
		return nil, 0, fmt.Errorf("reading media from GCS: %w", err)
	}
	return rc, attrs.Size, nil
}

// Remove deletes the media object. A missing object is not an error.
func (s *GCSStore) Remove(ctx context.Context, ref string) error {
	clean, ok := CleanRef(ref)
	if !ok {
		return nil
	}

	err := s.client.Delete(ctx, s.Bucket, s.object(clean))
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("deleting media from GCS: %w", err)
	}
	return nil
}

func (s *GCSStore) List(ctx context.Context) ([]Object, error) {
	attrs, err := s.client.ListObjects(ctx, s.Bucket, s.Prefix)
	if err != nil {
		return nil, fmt.Errorf("listing media in GCS: %w", err)
	}

	objects := make([]Object, 0, len(attrs))
	for _, a := range attrs {
		objects = append(objects, Object{
			Ref:     strings.TrimPrefix(a.Name, s.Prefix),
			Size:    a.Size,
			ModTime: unixTime(a.Updated),
		})
	}
	return objects, nil
}

func (s *GCSStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.ListObjects(ctx, s.Bucket, "\x00nonexistent\x00")
	return err
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
