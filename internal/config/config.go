// Package config handles loading and parsing of Folio configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for Folio.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Repository RepositoryConfig `yaml:"repository"`
	Media      MediaConfig      `yaml:"media"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout is the graceful shutdown timeout in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
	// MaxUploadSize is the maximum accepted upload body in bytes. Requests
	// over the limit are rejected with 413.
	MaxUploadSize int64 `yaml:"max_upload_size"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: text or json.
	Format string `yaml:"format"`
}

// RepositoryConfig holds record store settings.
type RepositoryConfig struct {
	// Engine is the record store engine ("sqlite", "memory", "firestore").
	Engine    string          `yaml:"engine"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Firestore FirestoreConfig `yaml:"firestore"`
}

// SQLiteConfig holds SQLite-specific record store settings.
type SQLiteConfig struct {
	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`
}

// FirestoreConfig holds Firestore-specific record store settings.
type FirestoreConfig struct {
	// ProjectID is the GCP project ID.
	ProjectID string `yaml:"project_id"`
	// Root is the top-level Firestore collection namespacing all Folio data.
	Root string `yaml:"root"`
	// CredentialsFile is an optional service account key file. When empty,
	// Application Default Credentials are used.
	CredentialsFile string `yaml:"credentials_file"`
}

// MediaConfig holds media store settings.
type MediaConfig struct {
	// Backend is the media store backend ("local", "memory", "s3", "gcs",
	// "azure").
	Backend string      `yaml:"backend"`
	Local   LocalConfig `yaml:"local"`
	S3      S3Config    `yaml:"s3"`
	GCS     GCSConfig   `yaml:"gcs"`
	Azure   AzureConfig `yaml:"azure"`
	// SweepInterval is how often the server sweeps orphaned uploads, in
	// seconds. Zero disables the in-server sweep (folio-meta can still run
	// one on demand).
	SweepInterval int `yaml:"sweep_interval"`
	// SweepGrace is the minimum age in seconds before an unreferenced upload
	// is eligible for removal. Protects uploads whose create call is still
	// in flight.
	SweepGrace int `yaml:"sweep_grace"`
}

// LocalConfig holds local filesystem media store settings.
type LocalConfig struct {
	// RootDir is the upload root under which all media files are stored.
	RootDir string `yaml:"root_dir"`
}

// S3Config holds AWS S3 media store settings.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	// Prefix is the optional key prefix for all media objects.
	Prefix string `yaml:"prefix"`
	// EndpointURL overrides the S3 endpoint (for S3-compatible stores).
	EndpointURL string `yaml:"endpoint_url"`
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool `yaml:"use_path_style"`
	// AccessKeyID and SecretAccessKey are optional static credentials; when
	// empty the default AWS credential chain is used.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GCSConfig holds Google Cloud Storage media store settings.
type GCSConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	// CredentialsFile is an optional service account key file.
	CredentialsFile string `yaml:"credentials_file"`
}

// AzureConfig holds Azure Blob Storage media store settings.
type AzureConfig struct {
	Container string `yaml:"container"`
	// Account is the storage account name, used to construct the account URL
	// https://{account}.blob.core.windows.net when AccountURL is empty.
	Account string `yaml:"account"`
	// AccountURL is the full storage account URL.
	AccountURL string `yaml:"account_url"`
	// ConnectionString, when set, takes precedence over credential auth.
	ConnectionString string `yaml:"connection_string"`
	// UseManagedIdentity selects managed identity credentials instead of
	// DefaultAzureCredential.
	UseManagedIdentity bool   `yaml:"use_managed_identity"`
	Prefix             string `yaml:"prefix"`
}

// Load reads a YAML configuration file from the given path and returns a
// parsed Config. It applies sensible defaults for unset values. If the
// primary path fails, it falls back to folio.example.yaml in the same
// directory or parent directory.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		fallbackPaths := []string{
			filepath.Join(filepath.Dir(path), "folio.example.yaml"),
			filepath.Join(filepath.Dir(path), "..", "folio.example.yaml"),
		}
		var fallbackErr error
		for _, fp := range fallbackPaths {
			data, fallbackErr = os.ReadFile(fp)
			if fallbackErr == nil {
				break
			}
		}
		if fallbackErr != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// AzureURL returns the effective storage account URL.
func (c *AzureConfig) AzureURL() string {
	if c.AccountURL != "" {
		return c.AccountURL
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net", c.Account)
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ShutdownTimeout: 30,
			MaxUploadSize:   100 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Repository: RepositoryConfig{
			Engine: "sqlite",
			SQLite: SQLiteConfig{
				Path: "./data/folio.db",
			},
		},
		Media: MediaConfig{
			Backend: "local",
			Local: LocalConfig{
				RootDir: "./data/uploads",
			},
			SweepGrace: 24 * 60 * 60,
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Server.MaxUploadSize == 0 {
		cfg.Server.MaxUploadSize = 100 << 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Repository.Engine == "" {
		cfg.Repository.Engine = "sqlite"
	}
	if cfg.Repository.SQLite.Path == "" {
		cfg.Repository.SQLite.Path = "./data/folio.db"
	}
	if cfg.Media.Backend == "" {
		cfg.Media.Backend = "local"
	}
	if cfg.Media.Local.RootDir == "" {
		cfg.Media.Local.RootDir = "./data/uploads"
	}
	if cfg.Media.SweepGrace == 0 {
		cfg.Media.SweepGrace = 24 * 60 * 60
	}
}
