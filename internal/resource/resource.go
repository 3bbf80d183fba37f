// Package resource defines the record model and the per-collection
// definitions that parameterize the generic CRUD machinery: which scalar
// fields a collection carries, which of them are mandatory, and whether the
// collection owns uploaded media.
package resource

import (
	"strings"
	"time"
)

// Record is a single persisted item within a collection.
type Record struct {
	// ID is the opaque 24-hex identifier assigned at insert. Immutable.
	ID string
	// Fields holds the collection-specific scalar attributes.
	Fields map[string]string
	// MediaRef is the root-relative path of the media file this record owns,
	// or empty for records with no file obligation.
	MediaRef string
	// CreatedAt is the insert timestamp, the sort key for listings.
	CreatedAt time.Time
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Fields = make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		cp.Fields[k] = v
	}
	return &cp
}

// Definition describes one content collection. The same handler, repository,
// and cache code serves every collection; only the Definition differs.
type Definition struct {
	// Name is the collection name, used as the repository namespace
	// (e.g., "team").
	Name string
	// Path is the collection segment of the API base path (e.g., "team"
	// for /api/team).
	Path string
	// Fields lists the scalar attributes records of this collection may carry.
	Fields []string
	// Required lists the fields that must be present and non-blank at create
	// time and must stay non-blank after an update merge.
	Required []string
	// RejectEmptyOnUpdate lists fields that may be omitted from an update but
	// may not be explicitly set to an empty or whitespace-only value.
	RejectEmptyOnUpdate []string
	// MediaKind is the subdirectory uploads for this collection are stored
	// under (e.g., "photos", "videos"). Empty for collections without media.
	MediaKind string
	// MediaField is the request/response field name carrying the media
	// reference (e.g., "image"). Empty for collections without media.
	MediaField string
}

// HasMedia reports whether records of this collection own an uploaded file.
func (d *Definition) HasMedia() bool {
	return d.MediaKind != "" && d.MediaField != ""
}

// AllowsField reports whether name is one of the collection's scalar fields.
func (d *Definition) AllowsField(name string) bool {
	for _, f := range d.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// IsRequired reports whether name is a mandatory field.
func (d *Definition) IsRequired(name string) bool {
	for _, f := range d.Required {
		if f == name {
			return true
		}
	}
	return false
}

// MissingRequired returns the first required field that is absent or blank
// in fields, or "" if all required fields are satisfied.
func (d *Definition) MissingRequired(fields map[string]string) string {
	for _, f := range d.Required {
		if strings.TrimSpace(fields[f]) == "" {
			return f
		}
	}
	return ""
}

// Encode renders a record as the wire representation: id, createdAt, every
// scalar field, and the media reference under the collection's media field
// name.
func (d *Definition) Encode(r *Record) map[string]any {
	m := make(map[string]any, len(d.Fields)+3)
	m["id"] = r.ID
	m["createdAt"] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	for _, f := range d.Fields {
		m[f] = r.Fields[f]
	}
	if d.HasMedia() {
		m[d.MediaField] = r.MediaRef
	}
	return m
}

// Definitions returns the built-in content collections served by Folio.
func Definitions() []*Definition {
	return []*Definition{
		{
			Name:                "team",
			Path:                "team",
			Fields:              []string{"name", "role", "description"},
			Required:            []string{"name", "role"},
			RejectEmptyOnUpdate: []string{"name"},
			MediaKind:           "photos",
			MediaField:          "image",
		},
		{
			Name:       "stories",
			Path:       "stories",
			Fields:     []string{"title", "description"},
			Required:   []string{"title"},
			MediaKind:  "videos",
			MediaField: "video",
		},
		{
			Name:     "faqs",
			Path:     "faqs",
			Fields:   []string{"question", "answer"},
			Required: []string{"question", "answer"},
		},
	}
}
