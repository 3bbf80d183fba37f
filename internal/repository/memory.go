package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/foliocms/folio/internal/resource"
)

// MemoryStore implements the Store interface with in-process maps. It is
// used by tests and by ephemeral runs where durability is not needed.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]*resource.Record // collection -> id -> record
	seq     map[string]int64                       // id -> insertion sequence, breaks CreatedAt ties
	nextSeq int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]map[string]*resource.Record),
		seq:     make(map[string]int64),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Insert(ctx context.Context, def *resource.Definition, fields map[string]string, mediaRef string) (*resource.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &resource.Record{
		ID:        resource.NewID(),
		Fields:    copyFields(fields),
		MediaRef:  mediaRef,
		CreatedAt: time.Now().UTC(),
	}

	coll := s.records[def.Name]
	if coll == nil {
		coll = make(map[string]*resource.Record)
		s.records[def.Name] = coll
	}
	coll[rec.ID] = rec
	s.nextSeq++
	s.seq[rec.ID] = s.nextSeq

	return rec.Clone(), nil
}

func (s *MemoryStore) FindByID(ctx context.Context, def *resource.Definition, id string) (*resource.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[def.Name][id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, def *resource.Definition, id string, fields map[string]string, mediaRef *string) (*resource.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[def.Name][id]
	if !ok {
		return nil, ErrNotFound
	}

	merged, err := mergeFields(def, rec.Fields, fields)
	if err != nil {
		return nil, err
	}
	rec.Fields = merged
	if mediaRef != nil {
		rec.MediaRef = *mediaRef
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) DeleteByID(ctx context.Context, def *resource.Definition, id string) (*resource.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[def.Name][id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.records[def.Name], id)
	delete(s.seq, id)
	return rec, nil
}

func (s *MemoryStore) List(ctx context.Context, def *resource.Definition, page, limit int) ([]*resource.Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll := s.records[def.Name]
	all := make([]*resource.Record, 0, len(coll))
	for _, rec := range coll {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return s.seq[all[i].ID] > s.seq[all[j].ID]
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	start := (page - 1) * limit
	// A negative start means the offset product overflowed; treat it like
	// any other out-of-range page.
	if start < 0 || start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]*resource.Record, 0, end-start)
	for _, rec := range all[start:end] {
		out = append(out, rec.Clone())
	}
	return out, total, nil
}

func (s *MemoryStore) Count(ctx context.Context, def *resource.Definition) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[def.Name]), nil
}

func (s *MemoryStore) MediaRefs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var refs []string
	for _, coll := range s.records {
		for _, rec := range coll {
			if rec.MediaRef != "" {
				refs = append(refs, rec.MediaRef)
			}
		}
	}
	return refs, nil
}
