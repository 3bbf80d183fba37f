// Package janitor removes orphaned media files. A file becomes orphaned when
// its owning record is deleted but the best-effort file removal fails, or
// when an upload is never followed by a record create. The sweeper reconciles
// the media store against the repository on an interval and deletes files no
// record references, once they are older than a grace period. The grace
// period keeps the sweeper from racing an upload that has not been attached
// to a record yet.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foliocms/folio/internal/media"
	"github.com/foliocms/folio/internal/metrics"
	"github.com/foliocms/folio/internal/repository"
)

// Sweeper reconciles stored media files against record references.
type Sweeper struct {
	repo  repository.Store
	media media.Store
	grace time.Duration
}

// New creates a Sweeper. Files younger than grace are never removed.
func New(repo repository.Store, mediaStore media.Store, grace time.Duration) *Sweeper {
	return &Sweeper{repo: repo, media: mediaStore, grace: grace}
}

// Sweep performs a single reconciliation pass. It returns the number of
// files removed. Removal errors are logged and do not abort the pass.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	refs, err := s.repo.MediaRefs(ctx)
	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("listing media references: %w", err)
	}
	referenced := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if clean, ok := media.CleanRef(ref); ok {
			referenced[clean] = struct{}{}
		}
	}

	objects, err := s.media.List(ctx)
	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("listing media files: %w", err)
	}

	cutoff := time.Now().Add(-s.grace)
	removed := 0
	for _, obj := range objects {
		if _, ok := referenced[obj.Ref]; ok {
			continue
		}
		if obj.ModTime.After(cutoff) {
			continue
		}
		if err := s.media.Remove(ctx, obj.Ref); err != nil {
			slog.Warn("orphan removal failed", "ref", obj.Ref, "error", err)
			continue
		}
		slog.Info("removed orphaned media file", "ref", obj.Ref, "size", obj.Size)
		metrics.SweepRemovedTotal.Inc()
		removed++
	}

	metrics.SweepRunsTotal.WithLabelValues("ok").Inc()
	return removed, nil
}

// Run sweeps on the given interval until the context is cancelled. The first
// pass runs after one full interval, not immediately, so a restart loop does
// not hammer the media backend.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				slog.Error("media sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("media sweep finished", "removed", removed)
			}
		}
	}
}
