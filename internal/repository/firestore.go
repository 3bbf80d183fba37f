package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/foliocms/folio/internal/resource"
)

const firestoreTimeFormat = "2006-01-02T15:04:05.000Z"

// FirestoreStore implements the Store interface on Google Cloud Firestore.
// Records live under {root}/{collection}/records/{id}; listings use
// OrderBy(created_at desc) with Offset/Limit, which keeps the offset
// pagination contract at the cost of server-side skipping.
type FirestoreStore struct {
	client *firestore.Client
	root   string
	defs   []*resource.Definition
}

// NewFirestoreStore creates a FirestoreStore for the given project. The root
// collection namespaces all Folio data; defs is the set of collections the
// store serves (needed to enumerate media references for the sweep).
func NewFirestoreStore(ctx context.Context, projectID, root, credentialsFile string, defs []*resource.Definition) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	if root == "" {
		root = "folio"
	}
	return &FirestoreStore{client: client, root: root, defs: defs}, nil
}

func (s *FirestoreStore) records(collection string) *firestore.CollectionRef {
	return s.client.Collection(s.root).Doc(collection).Collection("records")
}

func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.client.Collection(s.root).Limit(1).Documents(ctx).Next()
	if err != nil && err != iterator.Done {
		return err
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// docData is the Firestore document layout for a record.
func docData(rec *resource.Record) map[string]any {
	fields := make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	return map[string]any{
		"fields":     fields,
		"media_ref":  rec.MediaRef,
		"created_at": rec.CreatedAt.UTC().Format(firestoreTimeFormat),
	}
}

// docToRecord converts a Firestore document back into a record.
func docToRecord(id string, data map[string]any) (*resource.Record, error) {
	rec := &resource.Record{ID: id, Fields: map[string]string{}}

	if raw, ok := data["fields"].(map[string]any); ok {
		for k, v := range raw {
			if str, ok := v.(string); ok {
				rec.Fields[k] = str
			}
		}
	}
	if ref, ok := data["media_ref"].(string); ok {
		rec.MediaRef = ref
	}

	createdAt, _ := data["created_at"].(string)
	t, err := time.Parse(firestoreTimeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	rec.CreatedAt = t
	return rec, nil
}

func (s *FirestoreStore) Insert(ctx context.Context, def *resource.Definition, fields map[string]string, mediaRef string) (*resource.Record, error) {
	rec := &resource.Record{
		ID:        resource.NewID(),
		Fields:    copyFields(fields),
		MediaRef:  mediaRef,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if _, err := s.records(def.Name).Doc(rec.ID).Create(ctx, docData(rec)); err != nil {
		return nil, fmt.Errorf("inserting record into %q: %w", def.Name, err)
	}
	return rec, nil
}

func (s *FirestoreStore) FindByID(ctx context.Context, def *resource.Definition, id string) (*resource.Record, error) {
	doc, err := s.records(def.Name).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting record %q/%q: %w", def.Name, id, err)
	}
	return docToRecord(id, doc.Data())
}

func (s *FirestoreStore) Update(ctx context.Context, def *resource.Definition, id string, fields map[string]string, mediaRef *string) (*resource.Record, error) {
	ref := s.records(def.Name).Doc(id)

	var updated *resource.Record
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}

		rec, err := docToRecord(id, doc.Data())
		if err != nil {
			return err
		}

		merged, err := mergeFields(def, rec.Fields, fields)
		if err != nil {
			return err
		}
		rec.Fields = merged
		if mediaRef != nil {
			rec.MediaRef = *mediaRef
		}

		updated = rec
		return tx.Set(ref, docData(rec))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *FirestoreStore) DeleteByID(ctx context.Context, def *resource.Definition, id string) (*resource.Record, error) {
	ref := s.records(def.Name).Doc(id)

	var deleted *resource.Record
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrNotFound
			}
			return err
		}

		rec, err := docToRecord(id, doc.Data())
		if err != nil {
			return err
		}
		deleted = rec
		return tx.Delete(ref)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *FirestoreStore) List(ctx context.Context, def *resource.Definition, page, limit int) ([]*resource.Record, int, error) {
	total, err := s.Count(ctx, def)
	if err != nil {
		return nil, 0, err
	}

	// A negative offset means the product overflowed; either way the page is
	// past the end of the collection, so skip the query entirely.
	offset := (page - 1) * limit
	if offset < 0 || offset >= total {
		return nil, total, nil
	}

	it := s.records(def.Name).
		OrderBy("created_at", firestore.Desc).
		Offset(offset).
		Limit(limit).
		Documents(ctx)
	defer it.Stop()

	var records []*resource.Record
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("listing records in %q: %w", def.Name, err)
		}
		rec, err := docToRecord(doc.Ref.ID, doc.Data())
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, nil
}

// Count iterates key-only snapshots; Select with no fields keeps the reads
// cheap for the collection sizes Folio serves.
func (s *FirestoreStore) Count(ctx context.Context, def *resource.Definition) (int, error) {
	it := s.records(def.Name).Select().Documents(ctx)
	defer it.Stop()

	total := 0
	for {
		_, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("counting records in %q: %w", def.Name, err)
		}
		total++
	}
	return total, nil
}

func (s *FirestoreStore) MediaRefs(ctx context.Context) ([]string, error) {
	var refs []string
	for _, def := range s.defs {
		if !def.HasMedia() {
			continue
		}
		it := s.records(def.Name).Select("media_ref").Documents(ctx)
		for {
			doc, err := it.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				it.Stop()
				return nil, fmt.Errorf("listing media refs in %q: %w", def.Name, err)
			}
			if ref, ok := doc.Data()["media_ref"].(string); ok && ref != "" {
				refs = append(refs, ref)
			}
		}
		it.Stop()
	}
	return refs, nil
}
