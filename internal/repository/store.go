// Package repository defines the interface and implementations for Folio's
// durable record store. Each collection occupies its own namespace; listings
// are reverse chronological with an exact total count.
package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/foliocms/folio/internal/resource"
)

// ErrNotFound is returned when a well-formed identifier matches no record.
var ErrNotFound = errors.New("record not found")

// ValidationError reports that an update merge would leave a required field
// empty or whitespace-only.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return e.Field + " cannot be empty"
}

// Store is the durable record store. All methods must be safe for concurrent
// use. Callers are responsible for validating identifiers and clamping
// page/limit before calling; List treats an out-of-range page as an empty
// slice with the correct total.
type Store interface {
	// Insert persists a new record with a freshly assigned ID and CreatedAt
	// and returns it.
	Insert(ctx context.Context, def *resource.Definition, fields map[string]string, mediaRef string) (*resource.Record, error)

	// FindByID returns the record with the given ID, or ErrNotFound.
	FindByID(ctx context.Context, def *resource.Definition, id string) (*resource.Record, error)

	// Update merges the supplied fields into the existing record. Fields not
	// supplied are left untouched. A non-nil mediaRef replaces the record's
	// media reference. Returns ErrNotFound if no such record exists, or a
	// *ValidationError if the merged result leaves a required field blank.
	Update(ctx context.Context, def *resource.Definition, id string, fields map[string]string, mediaRef *string) (*resource.Record, error)

	// DeleteByID removes the record and returns it, specifically so the
	// caller can read its MediaRef before it is gone. Returns ErrNotFound if
	// no such record exists.
	DeleteByID(ctx context.Context, def *resource.Definition, id string) (*resource.Record, error)

	// List returns the page-th slice (1-based) of limit records ordered by
	// CreatedAt descending, plus the full collection count.
	List(ctx context.Context, def *resource.Definition, page, limit int) ([]*resource.Record, int, error)

	// Count returns the number of records in the collection.
	Count(ctx context.Context, def *resource.Definition) (int, error)

	// MediaRefs returns every non-empty media reference across all
	// collections. Used by the orphaned-upload sweep.
	MediaRefs(ctx context.Context) ([]string, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// mergeFields applies partial onto base and enforces the definition's
// required-field constraints on the merged result.
func mergeFields(def *resource.Definition, base, partial map[string]string) (map[string]string, error) {
	merged := make(map[string]string, len(base)+len(partial))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range partial {
		if def.AllowsField(k) {
			merged[k] = v
		}
	}
	for _, f := range def.Required {
		if strings.TrimSpace(merged[f]) == "" {
			return nil, &ValidationError{Field: f}
		}
	}
	return merged, nil
}
