package media

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	return store
}

func TestLocalPutAndOpen(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	ref, err := store.Put(ctx, "photos", ".jpg", strings.NewReader("fake image bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(ref, "photos/") || !strings.HasSuffix(ref, ".jpg") {
		t.Errorf("ref = %q, want photos/{name}.jpg", ref)
	}

	rc, size, err := store.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading opened file: %v", err)
	}
	if string(data) != "fake image bytes" {
		t.Errorf("content = %q", data)
	}
	if size != int64(len(data)) {
		t.Errorf("size = %d, want %d", size, len(data))
	}
}

func TestLocalPutGeneratesUniqueNames(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	ref1, err := store.Put(ctx, "photos", ".png", strings.NewReader("one"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	ref2, err := store.Put(ctx, "photos", ".png", strings.NewReader("two"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref1 == ref2 {
		t.Errorf("two puts produced the same reference %q", ref1)
	}
}

func TestLocalRemove(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	ref, err := store.Put(ctx, "photos", ".jpg", strings.NewReader("bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := store.Remove(ctx, ref); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.RootDir, filepath.FromSlash(ref))); !os.IsNotExist(err) {
		t.Errorf("file still present after Remove: %v", err)
	}

	// Removing again is not an error.
	if err := store.Remove(ctx, ref); err != nil {
		t.Errorf("second Remove: %v", err)
	}
}

func TestLocalRemoveRejectsTraversal(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	// Plant a file outside the upload root. A traversal reference must not
	// reach it.
	outside := filepath.Join(filepath.Dir(store.RootDir), "victim.txt")
	if err := os.WriteFile(outside, []byte("do not delete"), 0o644); err != nil {
		t.Fatalf("writing outside file: %v", err)
	}

	for _, ref := range []string{
		"",
		"../victim.txt",
		"photos/../../victim.txt",
		"/etc/passwd",
		"photos\\..\\victim.txt",
	} {
		if err := store.Remove(ctx, ref); err != nil {
			t.Errorf("Remove(%q) = %v, want nil no-op", ref, err)
		}
	}

	if _, err := os.Stat(outside); err != nil {
		t.Errorf("outside file was touched: %v", err)
	}
}

func TestLocalList(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	refs := make(map[string]bool)
	for i := 0; i < 3; i++ {
		ref, err := store.Put(ctx, "videos", ".mp4", strings.NewReader("vid"))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		refs[ref] = true
	}

	objects, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 3 {
		t.Fatalf("List returned %d objects, want 3", len(objects))
	}
	for _, obj := range objects {
		if !refs[obj.Ref] {
			t.Errorf("List returned unexpected ref %q", obj.Ref)
		}
		if obj.Size != 3 {
			t.Errorf("object %q size = %d, want 3", obj.Ref, obj.Size)
		}
	}
}

func TestLocalListSkipsTempFiles(t *testing.T) {
	store := newTestLocalStore(t)

	tmpFile := filepath.Join(store.RootDir, ".tmp", "tmp-abandoned")
	if err := os.WriteFile(tmpFile, []byte("partial"), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}

	objects, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("List returned %d objects, want 0 (temp files skipped)", len(objects))
	}
}

func TestCleanTempFiles(t *testing.T) {
	store := newTestLocalStore(t)

	tmpFile := filepath.Join(store.RootDir, ".tmp", "tmp-abandoned")
	if err := os.WriteFile(tmpFile, []byte("partial"), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}

	if err := store.CleanTempFiles(); err != nil {
		t.Fatalf("CleanTempFiles: %v", err)
	}
	if _, err := os.Stat(tmpFile); !os.IsNotExist(err) {
		t.Errorf("temp file survived CleanTempFiles: %v", err)
	}
}

func TestCleanRef(t *testing.T) {
	tests := []struct {
		ref  string
		want string
		ok   bool
	}{
		{"photos/a.jpg", "photos/a.jpg", true},
		{"photos//a.jpg", "photos/a.jpg", true},
		{"videos/clip.mp4", "videos/clip.mp4", true},
		{"", "", false},
		{".", "", false},
		{"..", "", false},
		{"../escape.jpg", "", false},
		{"photos/../../escape.jpg", "", false},
		{"/absolute/path.jpg", "", false},
		{"photos\\a.jpg", "", false},
		{"photos/a\x00.jpg", "", false},
	}
	for _, tt := range tests {
		got, ok := CleanRef(tt.ref)
		if ok != tt.ok || got != tt.want {
			t.Errorf("CleanRef(%q) = (%q, %v), want (%q, %v)", tt.ref, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSanitizeExt(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{".jpg", ".jpg"},
		{".JPG", ".jpg"},
		{"png", ".png"},
		{".mp4", ".mp4"},
		{"", ""},
		{".", ""},
		{".j;rm -rf /", ".jrmrf"},
	}
	for _, tt := range tests {
		if got := sanitizeExt(tt.in); got != tt.want {
			t.Errorf("sanitizeExt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
