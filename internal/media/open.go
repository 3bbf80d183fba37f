package media

import (
	"context"
	"fmt"

	"github.com/foliocms/folio/internal/config"
)

// Open constructs the media store selected by the configuration.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Media.Backend {
	case "local":
		store, err := NewLocalStore(cfg.Media.Local.RootDir)
		if err != nil {
			return nil, err
		}
		// Crash-only recovery: drop temp files from interrupted writes.
		if err := store.CleanTempFiles(); err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		s3cfg := cfg.Media.S3
		if s3cfg.Bucket == "" {
			return nil, fmt.Errorf("media.s3.bucket is required when backend is 's3'")
		}
		return NewS3Store(ctx, s3cfg.Bucket, s3cfg.Region, s3cfg.Prefix,
			s3cfg.EndpointURL, s3cfg.UsePathStyle, s3cfg.AccessKeyID, s3cfg.SecretAccessKey)
	case "gcs":
		gcscfg := cfg.Media.GCS
		if gcscfg.Bucket == "" {
			return nil, fmt.Errorf("media.gcs.bucket is required when backend is 'gcs'")
		}
		return NewGCSStore(ctx, gcscfg.Bucket, gcscfg.Prefix, gcscfg.CredentialsFile)
	case "azure":
		azcfg := cfg.Media.Azure
		if azcfg.Container == "" {
			return nil, fmt.Errorf("media.azure.container is required when backend is 'azure'")
		}
		return NewAzureStore(ctx, azcfg.Container, azcfg.AzureURL(),
			azcfg.ConnectionString, azcfg.UseManagedIdentity, azcfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown media backend: %q", cfg.Media.Backend)
	}
}
