// Package media defines the interface and implementations for Folio's media
// file store. Uploaded binaries are persisted under a collection-specific
// kind subdirectory ("photos", "videos") with a collision-resistant generated
// filename and addressed by a root-relative reference string that records
// carry in their MediaRef field.
package media

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Object describes one stored media file, as reported by List.
type Object struct {
	// Ref is the root-relative reference (e.g., "photos/3f2a....jpg").
	Ref string
	// Size is the file size in bytes.
	Size int64
	// ModTime is when the file was last written.
	ModTime time.Time
}

// Store is the media file store. All methods must be safe for concurrent use.
//
// Remove is advisory cleanup: implementations treat an empty or out-of-tree
// reference as a no-op and a missing file as success. A returned error means
// a real removal failure; callers log it rather than surfacing it, because
// file removal must never block record deletion.
type Store interface {
	// Put persists the binary under the given kind subdirectory with a
	// generated filename carrying ext, and returns the new reference.
	Put(ctx context.Context, kind, ext string, r io.Reader) (string, error)

	// Open returns the file at the given reference for reading, plus its
	// size. The caller closes the returned ReadCloser.
	Open(ctx context.Context, ref string) (io.ReadCloser, int64, error)

	// Remove deletes the file at the given reference, best-effort.
	Remove(ctx context.Context, ref string) error

	// List returns every stored media file. Used by the orphaned-upload sweep.
	List(ctx context.Context) ([]Object, error)

	// HealthCheck verifies that the store is operational.
	HealthCheck(ctx context.Context) error
}

// CleanRef normalizes a reference and reports whether it resolves to a path
// under the storage root. References that are empty, absolute, contain
// backslashes, or escape the root via ".." segments are rejected. This is
// the path-traversal defense every backend relies on.
func CleanRef(ref string) (string, bool) {
	if ref == "" || strings.ContainsAny(ref, "\\\x00") {
		return "", false
	}
	if path.IsAbs(ref) {
		return "", false
	}
	clean := path.Clean(ref)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}

// newName generates a collision-resistant filename with the given extension.
func newName(ext string) string {
	return uuid.NewString() + sanitizeExt(ext)
}

// sanitizeExt lowercases ext and strips anything that is not alphanumeric,
// returning it with a leading dot (or "" when nothing survives).
func sanitizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	var b strings.Builder
	for _, c := range ext {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "." + b.String()
}
