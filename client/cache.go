package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Record is a client-side view of one persisted item.
type Record struct {
	ID        string
	CreatedAt time.Time
	Fields    map[string]string
	MediaRef  string
}

// Cursor is the pagination state derived from the last listing response.
// Page is 1-based; TotalPages is ceil(Total/Limit), zero for an empty
// collection.
type Cursor struct {
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// ResourceCache holds the client-side state for one resource collection:
// the most recently fetched items, pagination metadata, and the in-flight
// and error status of the last call. Successful mutations are applied to
// the local items optimistically, without refetching.
//
// All methods are safe for concurrent use. Mutations to the item list are
// serialized under a single mutex so overlapping calls cannot interleave
// and lose updates.
type ResourceCache struct {
	client     *Client
	path       string
	mediaField string

	mu      sync.Mutex
	items   []Record
	cursor  Cursor
	loading bool
	lastErr string
}

// NewResourceCache creates a cache for one collection. The path is the
// collection segment of the API URL, e.g. "team". mediaField names the
// upload form field for media-bearing collections ("image", "video") and is
// empty for collections without an upload step.
func NewResourceCache(c *Client, path, mediaField string) *ResourceCache {
	return &ResourceCache{client: c, path: path, mediaField: mediaField}
}

// Items returns a copy of the cached item list.
func (rc *ResourceCache) Items() []Record {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]Record, len(rc.items))
	copy(out, rc.items)
	return out
}

// Cursor returns the pagination state from the last successful fetch.
func (rc *ResourceCache) Cursor() Cursor {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.cursor
}

// Loading reports whether a fetch is in flight.
func (rc *ResourceCache) Loading() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.loading
}

// Err returns the message of the last failed call, or "" if the last call
// succeeded.
func (rc *ResourceCache) Err() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.lastErr
}

// FetchPage fetches one page and replaces the cached items and cursor
// wholesale. On failure the previous items stay visible and the error is
// recorded and returned.
func (rc *ResourceCache) FetchPage(ctx context.Context, page, limit int) ([]Record, error) {
	rc.mu.Lock()
	rc.loading = true
	rc.mu.Unlock()

	var envelope listEnvelope
	url := fmt.Sprintf("/api/%s?page=%d&limit=%d", rc.path, page, limit)
	err := rc.client.doJSON(ctx, rc.client.httpClient, http.MethodGet, url, nil, &envelope)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.loading = false
	if err != nil {
		rc.lastErr = err.Error()
		return nil, err
	}

	items := make([]Record, 0, len(envelope.Data))
	for _, raw := range envelope.Data {
		items = append(items, rc.decodeRecord(raw))
	}
	rc.items = items
	rc.cursor = Cursor{
		Page:       envelope.Page,
		Limit:      envelope.Limit,
		Total:      envelope.Total,
		TotalPages: envelope.TotalPages,
	}
	rc.lastErr = ""

	out := make([]Record, len(items))
	copy(out, items)
	return out, nil
}

// Create creates a record and prepends the server's copy to the cached
// items. The cursor is not touched: the local total drifts until the next
// fetch, which is authoritative. On failure the items are left unchanged
// and the error is recorded and returned.
func (rc *ResourceCache) Create(ctx context.Context, fields map[string]string, mediaRef string) (Record, error) {
	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	if mediaRef != "" && rc.mediaField != "" {
		payload[rc.mediaField] = mediaRef
	}

	var envelope itemEnvelope
	err := rc.client.doJSON(ctx, rc.client.httpClient, http.MethodPost, "/api/"+rc.path, payload, &envelope)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err != nil {
		rc.lastErr = err.Error()
		return Record{}, err
	}

	rec := rc.decodeRecord(envelope.Data)
	rc.items = append([]Record{rec}, rc.items...)
	rc.lastErr = ""
	return rec, nil
}

// Update updates a record and replaces the matching cached item in place.
// On failure the items are left unchanged and the error is recorded and
// returned.
func (rc *ResourceCache) Update(ctx context.Context, id string, fields map[string]string) (Record, error) {
	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		payload[k] = v
	}

	var envelope itemEnvelope
	err := rc.client.doJSON(ctx, rc.client.httpClient, http.MethodPut, "/api/"+rc.path+"/"+id, payload, &envelope)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err != nil {
		rc.lastErr = err.Error()
		return Record{}, err
	}

	rec := rc.decodeRecord(envelope.Data)
	for i := range rc.items {
		if rc.items[i].ID == rec.ID {
			rc.items[i] = rec
			break
		}
	}
	rc.lastErr = ""
	return rec, nil
}

// Delete deletes a record and removes the matching cached item. On failure
// the items are left unchanged and the error is recorded and returned.
func (rc *ResourceCache) Delete(ctx context.Context, id string) error {
	err := rc.client.doJSON(ctx, rc.client.httpClient, http.MethodDelete, "/api/"+rc.path+"/"+id, nil, nil)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err != nil {
		rc.lastErr = err.Error()
		return err
	}

	kept := rc.items[:0]
	for _, item := range rc.items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	rc.items = kept
	rc.lastErr = ""
	return nil
}

// UploadMedia uploads one binary to the collection's upload endpoint and
// returns the stored reference to attach to a subsequent Create or Update.
// An oversized payload surfaces as ErrPayloadTooLarge so callers can show
// an actionable message; as with every other call, the failure is also
// recorded in cache state.
func (rc *ResourceCache) UploadMedia(ctx context.Context, filename string, r io.Reader) (string, error) {
	if rc.mediaField == "" {
		return "", fmt.Errorf("collection %q does not accept media uploads", rc.path)
	}

	ref, err := rc.client.upload(ctx, "/api/"+rc.path+"/upload", rc.mediaField, filename, r)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if err != nil {
		rc.lastErr = err.Error()
		return "", err
	}
	rc.lastErr = ""
	return ref, nil
}

// decodeRecord converts a wire map into a Record. The id, createdAt, and
// media reference keys are pulled out; every other string value lands in
// Fields.
func (rc *ResourceCache) decodeRecord(raw map[string]any) Record {
	rec := Record{Fields: make(map[string]string)}
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch k {
		case "id":
			rec.ID = s
		case "createdAt":
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				rec.CreatedAt = t
			}
		case rc.mediaField:
			if rc.mediaField != "" {
				rec.MediaRef = s
			}
		default:
			rec.Fields[k] = s
		}
	}
	return rec
}
