// Azure Blob Storage media store backend.
//
// Media files live in an upstream Azure Blob container under
// {prefix}{kind}/{name}. Credentials are resolved via a connection string,
// managed identity, or DefaultAzureCredential, in that order of preference.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"
)

// AzureBlobAPI defines the subset of the Azure Blob Storage client interface
// that the media store uses. This allows mocking in tests.
type AzureBlobAPI interface {
	// UploadBlob uploads data to a blob, overwriting if it already exists.
	UploadBlob(ctx context.Context, containerName, blobName string, data []byte) error
	// DownloadBlob downloads a blob's contents.
	DownloadBlob(ctx context.Context, containerName, blobName string) ([]byte, error)
	// DeleteBlob deletes a blob. Returns an error if the blob does not exist.
	DeleteBlob(ctx context.Context, containerName, blobName string) error
	// BlobExists checks if a blob exists.
	BlobExists(ctx context.Context, containerName, blobName string) (bool, error)
	// ListBlobs lists blobs with the given prefix.
	ListBlobs(ctx context.Context, containerName, prefix string) ([]AzureBlobItem, error)
}

// AzureBlobItem holds blob attributes returned from list operations.
type AzureBlobItem struct {
	Name         string
	Size         int64
	LastModified time.Time
}

// AzureStore implements the Store interface on an upstream Azure Blob
// container.
type AzureStore struct {
	// Container is the upstream Azure Blob container name.
	Container string
	// AccountURL is the Azure storage account URL.
	AccountURL string
	// Prefix is the blob name prefix for all media in the container.
	Prefix string
	// client is the Azure Blob client (satisfying AzureBlobAPI interface).
	client AzureBlobAPI
}

// NewAzureStore creates an AzureStore for the given container.
func NewAzureStore(ctx context.Context, container, accountURL, connectionString string, useManagedIdentity bool, prefix string) (*AzureStore, error) {
	client, err := newRealAzureClient(accountURL, connectionString, useManagedIdentity)
	if err != nil {
		return nil, fmt.Errorf("creating Azure client: %w", err)
	}

	s := &AzureStore{
		Container:  container,
		AccountURL: accountURL,
		Prefix:     prefix,
		client:     client,
	}

	// Verify the upstream container is accessible.
	if _, err := s.client.BlobExists(ctx, container, "\x00nonexistent\x00"); err != nil {
		return nil, fmt.Errorf("cannot access upstream Azure container %q: %w", container, err)
	}

	slog.Info("Azure media store initialized", "container", container, "account", accountURL, "prefix", prefix)
	return s, nil
}

// NewAzureStoreWithClient creates an AzureStore with a pre-configured client.
// This is primarily used for testing with mock clients.
func NewAzureStoreWithClient(container, accountURL, prefix string, client AzureBlobAPI) *AzureStore {
	return &AzureStore{Container: container, AccountURL: accountURL, Prefix: prefix, client: client}
}

// blobName maps a media reference to an upstream blob name.
func (s *AzureStore) blobName(ref string) string {
	return s.Prefix + ref
}

func (s *AzureStore) Put(ctx context.Context, kind, ext string, r io.Reader) (string, error) {
	ref, ok := CleanRef(kind + "/" + newName(ext))
	if !ok {
		return "", fmt.Errorf("invalid media kind %q", kind)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading media data: %w", err)
	}

	if err := s.client.UploadBlob(ctx, s.Container, s.blobName(ref), data); err != nil {
		return "", fmt.Errorf("uploading media to Azure: %w", err)
	}
	return ref, nil
}

func (s *AzureStore) Open(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	clean, ok := CleanRef(ref)
	if !ok {
		return nil, 0, fmt.Errorf("invalid media reference %q", ref)
	}

	data, err := s.client.DownloadBlob(ctx, s.Container, s.blobName(clean))
	if err != nil {
		if isAzureNotFound(err) {
			return nil, 0, fmt.Errorf("media file not found: %s: %w", clean, fs.ErrNotExist)
		}
		return nil, 0, fmt.Errorf("downloading media from Azure: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// Remove deletes the media blob. A missing blob is not an error.
func (s *AzureStore) Remove(ctx context.Context, ref string) error {
	clean, ok := CleanRef(ref)
	if !ok {
		return nil
	}

	err := s.client.DeleteBlob(ctx, s.Container, s.blobName(clean))
	if err != nil && !isAzureNotFound(err) {
		return fmt.Errorf("deleting media from Azure: %w", err)
	}
	return nil
}

func (s *AzureStore) List(ctx context.Context) ([]Object, error) {
	items, err := s.client.ListBlobs(ctx, s.Container, s.Prefix)
	if err != nil {
		return nil, fmt.Errorf("listing media in Azure: %w", err)
	}

	objects := make([]Object, 0, len(items))
	for _, item := range items {
		objects = append(objects, Object{
			Ref:     strings.TrimPrefix(item.Name, s.Prefix),
			Size:    item.Size,
			ModTime: item.LastModified,
		})
	}
	return objects, nil
}

func (s *AzureStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.BlobExists(ctx, s.Container, "\x00nonexistent\x00")
	return err
}
