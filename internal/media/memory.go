package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements the Store interface with in-process maps. It is
// used by tests and by ephemeral runs.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]*memoryFile
}

type memoryFile struct {
	data    []byte
	modTime time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]*memoryFile)}
}

func (s *MemoryStore) Put(ctx context.Context, kind, ext string, r io.Reader) (string, error) {
	ref, ok := CleanRef(kind + "/" + newName(ext))
	if !ok {
		return "", fmt.Errorf("invalid media kind %q", kind)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading media data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[ref] = &memoryFile{data: data, modTime: time.Now()}
	return ref, nil
}

func (s *MemoryStore) Open(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	clean, ok := CleanRef(ref)
	if !ok {
		return nil, 0, fmt.Errorf("invalid media reference %q", ref)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	f, exists := s.files[clean]
	if !exists {
		return nil, 0, fmt.Errorf("media file not found: %s: %w", clean, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(f.data)), int64(len(f.data)), nil
}

func (s *MemoryStore) Remove(ctx context.Context, ref string) error {
	clean, ok := CleanRef(ref)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, clean)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects := make([]Object, 0, len(s.files))
	for ref, f := range s.files {
		objects = append(objects, Object{Ref: ref, Size: int64(len(f.data)), ModTime: f.modTime})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Ref < objects[j].Ref })
	return objects, nil
}

func (s *MemoryStore) HealthCheck(ctx context.Context) error { return nil }

// Contains reports whether a file exists at the given reference. Test helper.
func (s *MemoryStore) Contains(ref string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.files[ref]
	return ok
}

// SetModTime overrides a stored file's modification time. Test helper for
// exercising the sweep grace period.
func (s *MemoryStore) SetModTime(ref string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[ref]; ok {
		f.modTime = t
	}
}
