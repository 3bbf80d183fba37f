// Package main is the entry point for folio-meta, the content store admin tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/foliocms/folio/internal/config"
	"github.com/foliocms/folio/internal/janitor"
	"github.com/foliocms/folio/internal/media"
	"github.com/foliocms/folio/internal/repository"
	"github.com/foliocms/folio/internal/resource"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: folio-meta <stats|list|sweep> [flags]")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "stats":
		os.Exit(runStats(os.Args[2:]))
	case "list":
		os.Exit(runList(os.Args[2:]))
	case "sweep":
		os.Exit(runSweep(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\nUsage: folio-meta <stats|list|sweep> [flags]\n", command)
		os.Exit(1)
	}
}

func openStores(configPath string) (*config.Config, repository.Store, media.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	repo, err := repository.Open(context.Background(), cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening repository: %w", err)
	}
	mediaStore, err := media.Open(context.Background(), cfg)
	if err != nil {
		repo.Close()
		return nil, nil, nil, fmt.Errorf("opening media store: %w", err)
	}
	return cfg, repo, mediaStore, nil
}

// runStats prints the record count per collection and the media file totals.
func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "folio.yaml", "Config file path")
	fs.Parse(args)

	_, repo, mediaStore, err := openStores(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer repo.Close()

	ctx := context.Background()
	for _, def := range resource.Definitions() {
		count, err := repo.Count(ctx, def)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error counting %s: %v\n", def.Name, err)
			return 1
		}
		fmt.Printf("%-10s %d records\n", def.Path, count)
	}

	objects, err := mediaStore.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing media files: %v\n", err)
		return 1
	}
	var totalBytes int64
	for _, obj := range objects {
		totalBytes += obj.Size
	}
	fmt.Printf("%-10s %d files, %d bytes\n", "media", len(objects), totalBytes)
	return 0
}

// runList prints every record in one collection, newest first.
func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "folio.yaml", "Config file path")
	collection := fs.String("collection", "", "Collection to list (team, stories, faqs)")
	limit := fs.Int("limit", 100, "Maximum records to print")
	fs.Parse(args)

	if *collection == "" {
		fmt.Fprintln(os.Stderr, "Error: -collection is required")
		return 1
	}
	var def *resource.Definition
	for _, d := range resource.Definitions() {
		if d.Path == *collection || d.Name == *collection {
			def = d
			break
		}
	}
	if def == nil {
		fmt.Fprintf(os.Stderr, "Error: unknown collection: %s\n", *collection)
		return 1
	}

	_, repo, _, err := openStores(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer repo.Close()

	records, total, err := repo.List(context.Background(), def, 1, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing %s: %v\n", def.Name, err)
		return 1
	}

	for _, rec := range records {
		line := fmt.Sprintf("%s  %s", rec.ID, rec.CreatedAt.Format(time.RFC3339))
		for _, field := range def.Fields {
			if v := rec.Fields[field]; v != "" {
				line += fmt.Sprintf("  %s=%q", field, v)
			}
		}
		if rec.MediaRef != "" {
			line += fmt.Sprintf("  %s=%s", def.MediaField, rec.MediaRef)
		}
		fmt.Println(line)
	}
	fmt.Printf("(%d of %d records)\n", len(records), total)
	return 0
}

// runSweep runs one orphan-file reconciliation pass and exits.
func runSweep(args []string) int {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	configPath := fs.String("config", "folio.yaml", "Config file path")
	grace := fs.Int("grace", 0, "Minimum file age in seconds (default: from config)")
	fs.Parse(args)

	cfg, repo, mediaStore, err := openStores(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer repo.Close()

	graceSeconds := cfg.Media.SweepGrace
	if *grace > 0 {
		graceSeconds = *grace
	}

	sweeper := janitor.New(repo, mediaStore, time.Duration(graceSeconds)*time.Second)
	removed, err := sweeper.Sweep(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("removed %d orphaned media files\n", removed)
	return 0
}
