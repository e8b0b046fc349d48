package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/selitys/selitys/internal/config"
	"github.com/selitys/selitys/internal/extract"
	"github.com/selitys/selitys/internal/extract/heuristic"
	"github.com/selitys/selitys/internal/extract/jsextractor"
	"github.com/selitys/selitys/internal/extract/pyextractor"
	"github.com/selitys/selitys/internal/facts"
	"github.com/selitys/selitys/internal/pipeline"
	"github.com/selitys/selitys/internal/scan"
)

func main() {
	log.SetOutput(os.Stderr)

	cfgPath := flag.String("config", "selitys.yaml", "configuration file")
	root := flag.String("root", "", "repository root to analyze (overrides config)")
	workers := flag.Int("workers", 0, "parallel extraction workers (overrides config)")
	noCache := flag.Bool("no-cache", false, "disable the extraction cache")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, using defaults\n", err)
		cfg = config.Default()
	}
	if *root != "" {
		cfg.Root = *root
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	registry := extract.NewRegistry()
	registry.Register(pyextractor.New(), "Python")
	registry.Register(jsextractor.New(),
		"JavaScript", "TypeScript", "JavaScript (React)", "TypeScript (React)")
	registry.SetFallback(heuristic.New())

	outDir := cfg.Output.Dir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(cfg.Root, outDir)
	}
	cachePath := filepath.Join(outDir, "cache.json")

	var cache *extract.Cache
	if !*noCache {
		cache, err = extract.NewCache(cfg.CacheSize)
		if err != nil {
			log.Fatalf("failed to create cache: %v", err)
		}
		cache.Load(cachePath)
	}

	pl := pipeline.New(pipeline.Options{
		Scan: scan.Options{
			Root:           cfg.Root,
			Include:        cfg.Include,
			Exclude:        cfg.Exclude,
			MaxFileSize:    cfg.MaxFileSize,
			RespectIgnores: cfg.RespectIgnores,
		},
		Workers:     cfg.Workers,
		FileTimeout: time.Duration(cfg.FileTimeout),
	}, registry, cache)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model, err := pl.Run(ctx)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}

	if err := writeArtifacts(outDir, model); err != nil {
		log.Fatalf("failed to write artifacts: %v", err)
	}
	if cache != nil {
		if err := cache.Save(cachePath); err != nil {
			log.Printf("[main] warning: %v", err)
		}
	}

	fmt.Fprintf(os.Stderr, "\nAnalysis complete:\n")
	fmt.Fprintf(os.Stderr, "  Repository:   %s\n", model.RepoPath)
	fmt.Fprintf(os.Stderr, "  Facts:        %d\n", len(model.Facts))
	fmt.Fprintf(os.Stderr, "  Entry points: %d\n", len(model.EntryPoints))
	fmt.Fprintf(os.Stderr, "  Endpoints:    %d\n", len(model.APIEndpoints))
	fmt.Fprintf(os.Stderr, "  Risks:        %d\n", len(model.RiskAreas))
	if model.Partial {
		fmt.Fprintf(os.Stderr, "  NOTE: run was interrupted, model is partial\n")
	}
	fmt.Fprintf(os.Stderr, "  Output:       %s\n", outDir)
}

// writeArtifacts persists the model and its facts outside the analyzed
// tree's source files: model.json for consumers, facts.jsonl for
// incremental tooling.
func writeArtifacts(outDir string, model *facts.UnifiedModel) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	data, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "model.json"), data, 0o644); err != nil {
		return fmt.Errorf("writing model.json: %w", err)
	}

	store := facts.NewStore()
	store.Add(model.Facts...)
	if err := store.WriteJSONLFile(filepath.Join(outDir, "facts.jsonl")); err != nil {
		return fmt.Errorf("writing facts.jsonl: %w", err)
	}
	return nil
}
