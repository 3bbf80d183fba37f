package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/foliocms/folio/internal/config"
	"github.com/foliocms/folio/internal/resource"
)

// Open constructs the record store selected by the configuration.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Repository.Engine {
	case "sqlite":
		path := cfg.Repository.SQLite.Path
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating repository directory: %w", err)
		}
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	case "firestore":
		fs := cfg.Repository.Firestore
		if fs.ProjectID == "" {
			return nil, fmt.Errorf("repository.firestore.project_id is required when engine is 'firestore'")
		}
		return NewFirestoreStore(ctx, fs.ProjectID, fs.Root, fs.CredentialsFile, resource.Definitions())
	default:
		return nil, fmt.Errorf("unknown repository engine: %q", cfg.Repository.Engine)
	}
}
