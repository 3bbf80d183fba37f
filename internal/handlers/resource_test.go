package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/foliocms/folio/internal/media"
	"github.com/foliocms/folio/internal/repository"
	"github.com/foliocms/folio/internal/resource"
)

const testMaxUpload = 1 << 20

func teamDef(t *testing.T) *resource.Definition {
	t.Helper()
	for _, d := range resource.Definitions() {
		if d.Name == "team" {
			return d
		}
	}
	t.Fatal("team definition missing")
	return nil
}

// newTestHandler wires a ResourceHandler for the team collection against
// in-memory stores and mounts it on a router the way the server does.
func newTestHandler(t *testing.T) (*ResourceHandler, repository.Store, *media.MemoryStore, http.Handler) {
	t.Helper()
	repo := repository.NewMemoryStore()
	mediaStore := media.NewMemoryStore()
	h := NewResourceHandler(teamDef(t), repo, mediaStore, testMaxUpload)

	router := chi.NewRouter()
	router.Route("/api/team", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Post("/upload", h.Upload)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
	return h, repo, mediaStore, router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		r = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestCreateSuccess(t *testing.T) {
	_, _, _, router := newTestHandler(t)

	rec := doJSON(t, router, http.MethodPost, "/api/team", map[string]any{
		"name": "Ada Lovelace",
		"role": "Engineer",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	body := decodeJSON(t, rec)
	if body["success"] != true || body["message"] != "Created successfully" {
		t.Errorf("envelope = %v", body)
	}
	data, _ := body["data"].(map[string]any)
	if data == nil {
		t.Fatal("response missing data")
	}
	id, _ := data["id"].(string)
	if !resource.ValidID(id) {
		t.Errorf("returned id %q is not valid", id)
	}
	if data["name"] != "Ada Lovelace" {
		t.Errorf("data.name = %v", data["name"])
	}
}

func TestCreateMissingRequiredField(t *testing.T) {
	_, repo, _, router := newTestHandler(t)

	rec := doJSON(t, router, http.MethodPost, "/api/team", map[string]any{
		"role": "Engineer",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "name") {
		t.Errorf("message = %q, want field name mentioned", msg)
	}

	count, _ := repo.Count(context.Background(), teamDef(t))
	if count != 0 {
		t.Errorf("record count = %d after rejected create, want 0", count)
	}
}

func TestCreateWithMediaRef(t *testing.T) {
	_, repo, _, router := newTestHandler(t)

	rec := doJSON(t, router, http.MethodPost, "/api/team", map[string]any{
		"name":  "Ada",
		"role":  "Engineer",
		"image": "photos/ada.jpg",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	data := decodeJSON(t, rec)["data"].(map[string]any)
	id := data["id"].(string)

	stored, err := repo.FindByID(context.Background(), teamDef(t), id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.MediaRef != "photos/ada.jpg" {
		t.Errorf("stored MediaRef = %q", stored.MediaRef)
	}
}

// countingStore wraps a Store and records whether any method was called.
// Used to prove the identifier gate rejects malformed ids with zero
// repository access.
type countingStore struct {
	repository.Store
	calls int
}

func (c *countingStore) FindByID(ctx context.Context, def *resource.Definition, id string) (*resource.Record, error) {
	c.calls++
	return c.Store.FindByID(ctx, def, id)
}

func (c *countingStore) Update(ctx context.Context, def *resource.Definition, id string, fields map[string]string, mediaRef *string) (*resource.Record, error) {
	c.calls++
	return c.Store.Update(ctx, def, id, fields, mediaRef)
}

func (c *countingStore) DeleteByID(ctx context.Context, def *resource.Definition, id string) (*resource.Record, error) {
	c.calls++
	return c.Store.DeleteByID(ctx, def, id)
}

func TestInvalidIdentifierShortCircuits(t *testing.T) {
	counting := &countingStore{Store: repository.NewMemoryStore()}
	h := NewResourceHandler(teamDef(t), counting, media.NewMemoryStore(), testMaxUpload)

	router := chi.NewRouter()
	router.Get("/api/team/{id}", h.Get)
	router.Put("/api/team/{id}", h.Update)
	router.Delete("/api/team/{id}", h.Delete)

	for _, tc := range []struct {
		method string
		body   any
	}{
		{http.MethodGet, nil},
		{http.MethodPut, map[string]any{"role": "Lead"}},
		{http.MethodDelete, nil},
	} {
		rec := doJSON(t, router, tc.method, "/api/team/not-a-valid-hex-id", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", tc.method, rec.Code)
		}
		body := decodeJSON(t, rec)
		if body["success"] != false {
			t.Errorf("%s success = %v, want false", tc.method, body["success"])
		}
	}

	if counting.calls != 0 {
		t.Errorf("repository called %d times for malformed ids, want 0", counting.calls)
	}
}

func TestGetNotFound(t *testing.T) {
	_, _, _, router := newTestHandler(t)

	rec := doJSON(t, router, http.MethodGet, "/api/team/507f1f77bcf86cd799439011", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUpdatePartialAndRejectEmptyName(t *testing.T) {
	_, repo, _, router := newTestHandler(t)
	ctx := context.Background()

	created, err := repo.Insert(ctx, teamDef(t), map[string]string{
		"name":        "Ada",
		"role":        "Engineer",
		"description": "First programmer",
	}, "")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Partial update touches only role.
	rec := doJSON(t, router, http.MethodPut, "/api/team/"+created.ID, map[string]any{"role": "Lead"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	data := decodeJSON(t, rec)["data"].(map[string]any)
	if data["role"] != "Lead" || data["name"] != "Ada" || data["description"] != "First programmer" {
		t.Errorf("updated data = %v", data)
	}

	// Explicitly blank name is rejected before the repository sees it.
	rec = doJSON(t, router, http.MethodPut, "/api/team/"+created.ID, map[string]any{"name": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if msg, _ := decodeJSON(t, rec)["message"].(string); msg != "name cannot be empty" {
		t.Errorf("message = %q", msg)
	}

	stored, _ := repo.FindByID(ctx, teamDef(t), created.ID)
	if stored.Fields["name"] != "Ada" {
		t.Errorf("name after rejected update = %q", stored.Fields["name"])
	}
}

func TestUpdateNotFound(t *testing.T) {
	_, _, _, router := newTestHandler(t)

	rec := doJSON(t, router, http.MethodPut, "/api/team/507f1f77bcf86cd799439011", map[string]any{"role": "Lead"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteCascadesFile(t *testing.T) {
	_, repo, mediaStore, router := newTestHandler(t)
	ctx := context.Background()

	ref, err := mediaStore.Put(ctx, "photos", ".jpg", strings.NewReader("image"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	created, err := repo.Insert(ctx, teamDef(t), map[string]string{"name": "Ada", "role": "Engineer"}, ref)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rec := doJSON(t, router, http.MethodDelete, "/api/team/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if body := decodeJSON(t, rec); body["message"] != "Deleted successfully" {
		t.Errorf("envelope = %v", body)
	}

	if mediaStore.Contains(ref) {
		t.Error("media file survived record deletion")
	}
	if _, err := repo.FindByID(ctx, teamDef(t), created.ID); err == nil {
		t.Error("record survived deletion")
	}
}

// failingRemoveStore fails every Remove call so the best-effort contract can
// be exercised.
type failingRemoveStore struct {
	*media.MemoryStore
}

func (f *failingRemoveStore) Remove(ctx context.Context, ref string) error {
	return fmt.Errorf("disk on fire")
}

func TestDeleteSucceedsWhenFileRemovalFails(t *testing.T) {
	repo := repository.NewMemoryStore()
	mediaStore := &failingRemoveStore{MemoryStore: media.NewMemoryStore()}
	h := NewResourceHandler(teamDef(t), repo, mediaStore, testMaxUpload)

	router := chi.NewRouter()
	router.Delete("/api/team/{id}", h.Delete)

	ctx := context.Background()
	created, err := repo.Insert(ctx, teamDef(t), map[string]string{"name": "Ada", "role": "Engineer"}, "photos/ada.jpg")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rec := doJSON(t, router, http.MethodDelete, "/api/team/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite removal failure", rec.Code)
	}
	if _, err := repo.FindByID(ctx, teamDef(t), created.ID); err == nil {
		t.Error("record survived deletion")
	}
}

func TestListDefaultsAndPagination(t *testing.T) {
	_, repo, _, router := newTestHandler(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		if _, err := repo.Insert(ctx, teamDef(t), map[string]string{
			"name": fmt.Sprintf("Member %d", i),
			"role": "Engineer",
		}, ""); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	// Defaults: page 1, limit 10.
	rec := doJSON(t, router, http.MethodGet, "/api/team", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["total"] != float64(15) || body["page"] != float64(1) || body["totalPages"] != float64(2) || body["limit"] != float64(10) {
		t.Errorf("pagination metadata = %v", body)
	}
	if data, _ := body["data"].([]any); len(data) != 10 {
		t.Errorf("default page length = %d, want 10", len(data))
	}

	// Page 2 holds the remaining 5.
	rec = doJSON(t, router, http.MethodGet, "/api/team?page=2&limit=10", nil)
	body = decodeJSON(t, rec)
	if data, _ := body["data"].([]any); len(data) != 5 {
		t.Errorf("page 2 length = %d, want 5", len(data))
	}
	if body["total"] != float64(15) || body["totalPages"] != float64(2) {
		t.Errorf("page 2 metadata = %v", body)
	}

	// Garbage parameters fall back to defaults.
	rec = doJSON(t, router, http.MethodGet, "/api/team?page=zero&limit=-3", nil)
	body = decodeJSON(t, rec)
	if body["page"] != float64(1) || body["limit"] != float64(10) {
		t.Errorf("metadata with garbage params = %v", body)
	}
}

func TestListExtremePageAndLimit(t *testing.T) {
	_, repo, _, router := newTestHandler(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repo.Insert(ctx, teamDef(t), map[string]string{
			"name": fmt.Sprintf("Member %d", i),
			"role": "Engineer",
		}, ""); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	// A page value large enough to overflow the offset product must still
	// answer 200 with an empty slice and the correct total.
	rec := doJSON(t, router, http.MethodGet, "/api/team?page=922337203685477580&limit=100", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["success"] != true || body["total"] != float64(3) {
		t.Errorf("huge page metadata = %v", body)
	}
	if data, _ := body["data"].([]any); len(data) != 0 {
		t.Errorf("huge page data length = %d, want 0", len(data))
	}

	// A page value past int range is non-numeric to the parser and falls
	// back to the default.
	rec = doJSON(t, router, http.MethodGet, "/api/team?page=99999999999999999999999", nil)
	body = decodeJSON(t, rec)
	if body["page"] != float64(1) {
		t.Errorf("out-of-int-range page metadata = %v", body)
	}
	if data, _ := body["data"].([]any); len(data) != 3 {
		t.Errorf("out-of-int-range page data length = %d, want 3", len(data))
	}

	// An absurd limit is clamped, not trusted.
	rec = doJSON(t, router, http.MethodGet, "/api/team?page=1&limit=999999999", nil)
	body = decodeJSON(t, rec)
	if body["limit"] != float64(1000) || body["totalPages"] != float64(1) {
		t.Errorf("huge limit metadata = %v", body)
	}
	if data, _ := body["data"].([]any); len(data) != 3 {
		t.Errorf("huge limit data length = %d, want 3", len(data))
	}
}

func TestListEmptyCollection(t *testing.T) {
	_, _, _, router := newTestHandler(t)

	rec := doJSON(t, router, http.MethodGet, "/api/team", nil)
	body := decodeJSON(t, rec)
	if body["total"] != float64(0) || body["totalPages"] != float64(0) {
		t.Errorf("empty collection metadata = %v", body)
	}
	if data, _ := body["data"].([]any); len(data) != 0 {
		t.Errorf("empty collection data = %v", data)
	}
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/team/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	_, _, mediaStore, router := newTestHandler(t)

	req := uploadRequest(t, "image", "photo.jpg", []byte("jpeg bytes"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	ref, _ := body["image"].(string)
	if !strings.HasPrefix(ref, "photos/") || !strings.HasSuffix(ref, ".jpg") {
		t.Errorf("ref = %q, want photos/{name}.jpg", ref)
	}
	if !mediaStore.Contains(ref) {
		t.Error("uploaded file not in store")
	}
}

func TestUploadMissingFile(t *testing.T) {
	_, _, _, router := newTestHandler(t)

	// Wrong field name: the handler expects "image".
	req := uploadRequest(t, "wrong", "photo.jpg", []byte("bytes"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeJSON(t, rec); body["success"] != false {
		t.Errorf("envelope = %v", body)
	}
}

func TestUploadPayloadTooLarge(t *testing.T) {
	repo := repository.NewMemoryStore()
	mediaStore := media.NewMemoryStore()
	// 128-byte cap so a small body trips the limit.
	h := NewResourceHandler(teamDef(t), repo, mediaStore, 128)

	router := chi.NewRouter()
	router.Post("/api/team/upload", h.Upload)

	req := uploadRequest(t, "image", "big.jpg", bytes.Repeat([]byte("x"), 4096))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413: %s", rec.Code, rec.Body.String())
	}
}
