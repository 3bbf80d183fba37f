package media

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/foliocms/folio/internal/resource"
)

// LocalStore implements the Store interface on the local filesystem. Files
// are stored as {root}/{kind}/{generated-name}; writes go through a temp
// file, fsync, and an atomic rename so a crash never leaves a partial file
// at a referenced path.
type LocalStore struct {
	// RootDir is the upload root under which all media files are stored.
	RootDir string
}

// NewLocalStore creates a LocalStore rooted at the given directory. It
// creates the root directory and the temp directory if they do not exist.
func NewLocalStore(rootDir string) (*LocalStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload root %q: %w", rootDir, err)
	}
	tmpDir := filepath.Join(rootDir, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory %q: %w", tmpDir, err)
	}
	return &LocalStore{RootDir: rootDir}, nil
}

// CleanTempFiles removes all files in the .tmp directory. Called on startup;
// any temp files left behind indicate incomplete writes from a previous crash.
func (s *LocalStore) CleanTempFiles() error {
	tmpDir := filepath.Join(s.RootDir, ".tmp")
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading temp directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(tmpDir, entry.Name()))
		}
	}
	return nil
}

// filePath resolves a clean reference to its filesystem path.
func (s *LocalStore) filePath(ref string) string {
	return filepath.Join(s.RootDir, filepath.FromSlash(ref))
}

// tempPath returns a unique temporary file path in the .tmp directory.
func (s *LocalStore) tempPath() string {
	return filepath.Join(s.RootDir, ".tmp", "tmp-"+resource.NewID())
}

// Put writes the binary to a temp file, fsyncs, and renames it into place
// under the kind subdirectory. Returns the root-relative reference.
func (s *LocalStore) Put(ctx context.Context, kind, ext string, r io.Reader) (string, error) {
	ref, ok := CleanRef(kind + "/" + newName(ext))
	if !ok {
		return "", fmt.Errorf("invalid media kind %q", kind)
	}

	finalPath := s.filePath(ref)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", fmt.Errorf("creating kind directory for %q: %w", ref, err)
	}

	tmpPath := s.tempPath()
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing media data: %w", err)
	}

	// Fsync before rename to guarantee durability.
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("syncing temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming temp file to final path: %w", err)
	}

	return ref, nil
}

// Open opens the file at the given reference for reading. The caller is
// responsible for closing the returned ReadCloser.
func (s *LocalStore) Open(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	clean, ok := CleanRef(ref)
	if !ok {
		return nil, 0, fmt.Errorf("invalid media reference %q", ref)
	}

	file, err := os.Open(s.filePath(clean))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("media file not found: %s: %w", clean, fs.ErrNotExist)
		}
		return nil, 0, fmt.Errorf("opening media file %q: %w", clean, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("stat media file %q: %w", clean, err)
	}

	return file, info.Size(), nil
}

// Remove deletes the file at the given reference. No-op for empty or
// out-of-tree references; a missing file is not an error. Cleans up the kind
// directory if it became empty.
func (s *LocalStore) Remove(ctx context.Context, ref string) error {
	clean, ok := CleanRef(ref)
	if !ok {
		return nil
	}

	filePath := s.filePath(clean)
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing media file %q: %w", clean, err)
	}

	dir := filepath.Dir(filePath)
	if dir != s.RootDir {
		// Directory not empty or other error: leave it.
		os.Remove(dir)
	}
	return nil
}

// List walks the upload root and returns every stored media file, skipping
// the temp directory.
func (s *LocalStore) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	err := filepath.WalkDir(s.RootDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.RootDir, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{
			Ref:     filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking upload root: %w", err)
	}
	return objects, nil
}

// HealthCheck verifies the upload root is accessible.
func (s *LocalStore) HealthCheck(ctx context.Context) error {
	_, err := os.Stat(s.RootDir)
	return err
}
