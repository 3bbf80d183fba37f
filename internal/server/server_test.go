package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/foliocms/folio/internal/config"
	"github.com/foliocms/folio/internal/media"
	"github.com/foliocms/folio/internal/repository"
)

// newTestServer builds a Server over in-memory stores and returns an
// httptest server wrapping its full middleware chain.
func newTestServer(t *testing.T) (*httptest.Server, *media.MemoryStore) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.MaxUploadSize = 1 << 20
	mediaStore := media.NewMemoryStore()

	srv, err := New(cfg, repository.NewMemoryStore(), mediaStore)
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}

	ts := httptest.NewServer(metricsMiddleware(commonHeaders(recoverPanics(srv.Handler()))))
	t.Cleanup(ts.Close)
	return ts, mediaStore
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decoding GET %s response: %v", url, err)
	}
	return resp.StatusCode, m
}

func postJSON(t *testing.T, url string, body any) (int, map[string]any) {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var m map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatalf("decoding POST %s response: %v", url, err)
	}
	return resp.StatusCode, m
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	status, body := getJSON(t, ts.URL+"/health")
	if status != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", status)
	}
	if body["status"] != "ok" {
		t.Errorf("health body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", resp.StatusCode)
	}
}

func TestCommonHeaders(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header missing")
	}
	if resp.Header.Get("Server") != "Folio" {
		t.Errorf("Server header = %q", resp.Header.Get("Server"))
	}
}

// TestCollectionRoundTrip walks one record through create, get, list,
// update, and delete over the wire.
func TestCollectionRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)
	base := ts.URL + "/api/faqs"

	status, body := postJSON(t, base, map[string]any{
		"question": "What is Folio?",
		"answer":   "A content service.",
	})
	if status != http.StatusCreated {
		t.Fatalf("create = %d: %v", status, body)
	}
	id := body["data"].(map[string]any)["id"].(string)

	status, body = getJSON(t, base+"/"+id)
	if status != http.StatusOK {
		t.Fatalf("get = %d: %v", status, body)
	}
	if body["data"].(map[string]any)["question"] != "What is Folio?" {
		t.Errorf("get data = %v", body["data"])
	}

	status, body = getJSON(t, base+"?page=1&limit=10")
	if status != http.StatusOK || body["total"] != float64(1) {
		t.Fatalf("list = %d: %v", status, body)
	}

	req, _ := http.NewRequest(http.MethodPut, base+"/"+id, strings.NewReader(`{"answer":"A CMS backend."}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update = %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, base+"/"+id, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete = %d", resp.StatusCode)
	}

	status, _ = getJSON(t, base+"/"+id)
	if status != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", status)
	}
}

func TestUploadAndServeMedia(t *testing.T) {
	ts, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "photo.jpg")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write([]byte("jpeg bytes"))
	mw.Close()

	resp, err := http.Post(ts.URL+"/api/team/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding upload response: %v", err)
	}
	ref := body["image"].(string)

	// The uploaded file is served back under /uploads/.
	got, err := http.Get(ts.URL + "/uploads/" + ref)
	if err != nil {
		t.Fatalf("GET /uploads/%s: %v", ref, err)
	}
	defer got.Body.Close()
	if got.StatusCode != http.StatusOK {
		t.Fatalf("GET /uploads/%s = %d", ref, got.StatusCode)
	}
	data, _ := io.ReadAll(got.Body)
	if string(data) != "jpeg bytes" {
		t.Errorf("served content = %q", data)
	}
	if ct := got.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", ct)
	}
}

func TestServeMediaRejectsTraversal(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/uploads/photos/%2e%2e/%2e%2e/etc/passwd")
	if err != nil {
		t.Fatalf("GET traversal: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("traversal = %d, want 404", resp.StatusCode)
	}
}

func TestFaqsHasNoUploadRoute(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/faqs/upload", "multipart/form-data", nil)
	if err != nil {
		t.Fatalf("POST /api/faqs/upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusCreated {
		t.Error("faqs accepted an upload but carries no media")
	}
}

// TestListHugePageStaysEnveloped covers page values big enough to overflow
// the page offset arithmetic: the response must stay a normal empty listing.
func TestListHugePageStaysEnveloped(t *testing.T) {
	ts, _ := newTestServer(t)

	status, body := postJSON(t, ts.URL+"/api/faqs", map[string]any{
		"question": "Still here?",
		"answer":   "Yes.",
	})
	if status != http.StatusCreated {
		t.Fatalf("create = %d: %v", status, body)
	}

	status, body = getJSON(t, ts.URL+"/api/faqs?page=922337203685477580&limit=100")
	if status != http.StatusOK {
		t.Fatalf("huge page = %d, want 200", status)
	}
	if body["success"] != true || body["total"] != float64(1) {
		t.Errorf("huge page body = %v", body)
	}
	if data, _ := body["data"].([]any); len(data) != 0 {
		t.Errorf("huge page data = %v", data)
	}
}

func TestRecoverPanicsWritesServerError(t *testing.T) {
	handler := metricsMiddleware(commonHeaders(recoverPanics(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))))
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	status, body := getJSON(t, ts.URL+"/api/team")
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if body["success"] != false || body["message"] != "Server Error" {
		t.Errorf("body = %v", body)
	}
}
