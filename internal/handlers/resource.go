// Package handlers implements the HTTP request handlers for Folio's
// collection API. One ResourceHandler serves every collection; the
// resource.Definition it is constructed with decides field names, required
// fields, and media ownership.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foliocms/folio/internal/apierr"
	"github.com/foliocms/folio/internal/httpjson"
	"github.com/foliocms/folio/internal/media"
	"github.com/foliocms/folio/internal/metrics"
	"github.com/foliocms/folio/internal/repository"
	"github.com/foliocms/folio/internal/resource"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	// maxPage and maxLimit bound the pagination window so the page offset
	// arithmetic downstream stays within int range. A page past the end of
	// the collection yields an empty slice either way.
	maxPage  = 1_000_000
	maxLimit = 1_000
)

// ResourceHandler contains the handlers for one collection's CRUD and upload
// operations. Each request is handled independently and statelessly.
type ResourceHandler struct {
	def           *resource.Definition
	repo          repository.Store
	media         media.Store
	maxUploadSize int64
}

// NewResourceHandler creates a ResourceHandler with the given dependencies.
func NewResourceHandler(def *resource.Definition, repo repository.Store, mediaStore media.Store, maxUploadSize int64) *ResourceHandler {
	return &ResourceHandler{
		def:           def,
		repo:          repo,
		media:         mediaStore,
		maxUploadSize: maxUploadSize,
	}
}

// Definition returns the collection definition this handler serves.
func (h *ResourceHandler) Definition() *resource.Definition {
	return h.def
}

// List handles GET /api/{collection}. Page and limit default to 1 and 10
// when absent, non-numeric, or below 1, and are clamped to maxPage/maxLimit;
// an out-of-range page yields an empty data slice with the correct total.
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r.URL.Query().Get("page"), defaultPage, maxPage)
	limit := parseIntParam(r.URL.Query().Get("limit"), defaultLimit, maxLimit)

	records, total, err := h.repo.List(r.Context(), h.def, page, limit)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	data := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		data = append(data, h.def.Encode(rec))
	}

	httpjson.Write(w, http.StatusOK, httpjson.ListEnvelope{
		Success:    true,
		Total:      total,
		Page:       page,
		TotalPages: totalPages(total, limit),
		Limit:      limit,
		Data:       data,
	})
}

// Create handles POST /api/{collection}. The payload carries the scalar
// fields plus an optional media reference obtained from a prior Upload call;
// Create never accepts a binary itself.
func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	fields, mediaRef := h.splitPayload(body)
	if missing := h.def.MissingRequired(fields); missing != "" {
		httpjson.WriteError(w, apierr.ErrMissingRequiredField.WithMessage(missing+" is required"))
		return
	}

	ref := ""
	if mediaRef != nil {
		ref = *mediaRef
	}

	rec, err := h.repo.Insert(r.Context(), h.def, fields, ref)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	h.refreshCountGauge(r)

	httpjson.Write(w, http.StatusCreated, httpjson.ItemEnvelope{
		Success: true,
		Message: "Created successfully",
		Data:    h.def.Encode(rec),
	})
}

// Get handles GET /api/{collection}/{id}. The identifier gate runs before
// any repository access.
func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(r)
	if !ok {
		httpjson.WriteError(w, apierr.ErrInvalidIdentifier)
		return
	}

	rec, err := h.repo.FindByID(r.Context(), h.def, id)
	if err != nil {
		httpjson.WriteError(w, mapRepoError(err))
		return
	}

	httpjson.Write(w, http.StatusOK, httpjson.ItemEnvelope{
		Success: true,
		Data:    h.def.Encode(rec),
	})
}

// Update handles PUT /api/{collection}/{id}. The payload is a partial merge;
// fields not supplied are left untouched. Fields in the collection's
// reject-empty set may not be explicitly blanked.
func (h *ResourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(r)
	if !ok {
		httpjson.WriteError(w, apierr.ErrInvalidIdentifier)
		return
	}

	body, err := decodeBody(r)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}

	for _, f := range h.def.RejectEmptyOnUpdate {
		if raw, present := body[f]; present {
			if str, _ := raw.(string); strings.TrimSpace(str) == "" {
				httpjson.WriteError(w, apierr.ErrValidation.WithMessage(f+" cannot be empty"))
				return
			}
		}
	}

	fields, mediaRef := h.splitPayload(body)

	rec, err := h.repo.Update(r.Context(), h.def, id, fields, mediaRef)
	if err != nil {
		httpjson.WriteError(w, mapRepoError(err))
		return
	}

	httpjson.Write(w, http.StatusOK, httpjson.ItemEnvelope{
		Success: true,
		Message: "Updated successfully",
		Data:    h.def.Encode(rec),
	})
}

// Delete handles DELETE /api/{collection}/{id}. The record is deleted first;
// the media reference the repository held at that moment is then removed
// best-effort. File removal failure is logged and counted, never surfaced:
// the delete has already succeeded.
func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(r)
	if !ok {
		httpjson.WriteError(w, apierr.ErrInvalidIdentifier)
		return
	}

	rec, err := h.repo.DeleteByID(r.Context(), h.def, id)
	if err != nil {
		httpjson.WriteError(w, mapRepoError(err))
		return
	}
	h.refreshCountGauge(r)

	if rec.MediaRef != "" {
		if err := h.media.Remove(r.Context(), rec.MediaRef); err != nil {
			slog.Warn("removing media for deleted record",
				"collection", h.def.Name, "id", id, "ref", rec.MediaRef, "error", err)
			metrics.MediaRemovalFailures.Inc()
			metrics.MediaOperationsTotal.WithLabelValues("remove", "error").Inc()
		} else {
			metrics.MediaOperationsTotal.WithLabelValues("remove", "ok").Inc()
		}
	}

	httpjson.Write(w, http.StatusOK, httpjson.ItemEnvelope{
		Success: true,
		Message: "Deleted successfully",
	})
}

// Upload handles POST /api/{collection}/upload. It accepts exactly one
// multipart file under the collection's media field name, stores it, and
// returns the reference only, without touching the repository. The caller
// includes the reference in a subsequent create or update.
func (h *ResourceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	file, header, err := r.FormFile(h.def.MediaField)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httpjson.WriteError(w, apierr.ErrPayloadTooLarge)
			return
		}
		httpjson.WriteError(w, apierr.ErrMissingFile)
		return
	}
	defer file.Close()

	ext := filepath.Ext(header.Filename)
	ref, err := h.media.Put(r.Context(), h.def.MediaKind, ext, file)
	if err != nil {
		slog.Error("storing uploaded media",
			"collection", h.def.Name, "filename", header.Filename, "error", err)
		metrics.MediaOperationsTotal.WithLabelValues("put", "error").Inc()
		httpjson.WriteError(w, apierr.ErrStorageWrite)
		return
	}
	metrics.MediaOperationsTotal.WithLabelValues("put", "ok").Inc()

	httpjson.Write(w, http.StatusCreated, map[string]any{
		"success":        true,
		h.def.MediaField: ref,
	})
}

// splitPayload extracts the collection's scalar fields and, for media-bearing
// collections, the media reference from a decoded request body. The returned
// fields map contains only keys present in the body; mediaRef is nil when
// the body does not mention the media field.
func (h *ResourceHandler) splitPayload(body map[string]any) (map[string]string, *string) {
	fields := make(map[string]string)
	for _, f := range h.def.Fields {
		if raw, present := body[f]; present {
			if str, ok := raw.(string); ok {
				fields[f] = str
			}
		}
	}

	var mediaRef *string
	if h.def.HasMedia() {
		if raw, present := body[h.def.MediaField]; present {
			str, _ := raw.(string)
			mediaRef = &str
		}
	}
	return fields, mediaRef
}

// refreshCountGauge updates the per-collection record gauge after a mutation.
func (h *ResourceHandler) refreshCountGauge(r *http.Request) {
	count, err := h.repo.Count(r.Context(), h.def)
	if err != nil {
		slog.Debug("refreshing record count", "collection", h.def.Name, "error", err)
		return
	}
	metrics.RecordsTotal.WithLabelValues(h.def.Name).Set(float64(count))
}

// recordID extracts and validates the identifier path segment. A malformed
// identifier is rejected in O(1) with no repository access.
func recordID(r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !resource.ValidID(id) {
		return "", false
	}
	return id, true
}

// parseIntParam parses a positive integer query parameter, falling back to
// def when the value is absent, non-numeric, or below 1, and clamping it to
// max otherwise.
func parseIntParam(raw string, def, max int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// totalPages computes ceil(total/limit), with 0 for an empty collection.
func totalPages(total, limit int) int {
	if total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// mapRepoError translates repository errors into API errors. Anything
// unrecognized passes through and is collapsed to a generic server error at
// the write boundary.
func mapRepoError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apierr.ErrNotFound
	}
	var vErr *repository.ValidationError
	if errors.As(err, &vErr) {
		return apierr.ErrValidation.WithMessage(vErr.Error())
	}
	return err
}

// decodeBody parses a JSON request body into a generic map.
func decodeBody(r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, apierr.ErrValidation.WithMessage("Invalid request body")
	}
	return body, nil
}
