package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/selitys/selitys/internal/analyze"
	"github.com/selitys/selitys/internal/extract"
	"github.com/selitys/selitys/internal/facts"
	"github.com/selitys/selitys/internal/merge"
	"github.com/selitys/selitys/internal/scan"
)

// Options configures a pipeline run.
type Options struct {
	Scan        scan.Options
	Workers     int
	FileTimeout time.Duration
}

// Pipeline runs the full analysis: scan the tree, extract facts from
// each file in parallel, merge, build the dependency graph and analyze.
// The repository is never written to; all artifacts stay in memory
// until the caller persists them.
type Pipeline struct {
	opts     Options
	registry *extract.Registry
	cache    *extract.Cache
}

// New creates a pipeline. The cache may be nil to disable memoization.
func New(opts Options, registry *extract.Registry, cache *extract.Cache) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.FileTimeout <= 0 {
		opts.FileTimeout = 10 * time.Second
	}
	return &Pipeline{opts: opts, registry: registry, cache: cache}
}

// Run executes one analysis pass. Cancellation mid-extraction is not an
// error: the model is built from whatever facts were gathered and
// marked partial.
func (p *Pipeline) Run(ctx context.Context) (*facts.UnifiedModel, error) {
	start := time.Now()

	scanner, err := scan.New(p.opts.Scan)
	if err != nil {
		return nil, fmt.Errorf("creating scanner: %w", err)
	}
	scanRes, err := scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", p.opts.Scan.Root, err)
	}

	store := facts.NewStore()
	var partial atomic.Bool

	g := &errgroup.Group{}
	g.SetLimit(p.opts.Workers)
	for _, file := range scanRes.Files {
		select {
		case <-ctx.Done():
			partial.Store(true)
		default:
		}
		if partial.Load() {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				partial.Store(true)
				return nil
			}
			store.Add(p.extractFile(ctx, file)...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		partial.Store(true)
	}

	all := merge.ApplyRouterPrefixes(store.All(), filePaths(scanRes))
	merged := merge.Merge(all)
	model := merge.BuildModel(merged, scanRes)
	analyze.Run(&model, scanRes)
	model.Partial = partial.Load()

	log.Printf("[pipeline] %d files, %d facts, %d endpoints in %s",
		len(scanRes.Files), len(merged), len(model.APIEndpoints), time.Since(start).Round(time.Millisecond))
	return &model, nil
}

// extractFile routes one file to its extractor, consulting the cache
// and enforcing the per-file timeout. A file that cannot be read or
// does not finish in time degrades to an unparseable fact.
func (p *Pipeline) extractFile(ctx context.Context, file scan.SourceFile) []facts.Fact {
	ext := p.registry.For(file)
	if ext == nil {
		return nil
	}

	key := extract.CacheKey{Path: file.Path, Fingerprint: file.Fingerprint, Version: ext.Name() + "/" + ext.Version()}
	if p.cache != nil {
		if ff, ok := p.cache.Get(key); ok {
			return ff
		}
	}

	src, err := os.ReadFile(file.AbsPath)
	if err != nil {
		log.Printf("[pipeline] reading %s: %v", file.Path, err)
		return []facts.Fact{facts.Unparseable(file.Path, fmt.Sprintf("read error: %v", err))}
	}

	fctx, cancel := context.WithTimeout(ctx, p.opts.FileTimeout)
	defer cancel()

	done := make(chan []facts.Fact, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[pipeline] extractor %s panicked on %s: %v", ext.Name(), file.Path, r)
				done <- []facts.Fact{facts.Unparseable(file.Path, fmt.Sprintf("extractor panic: %v", r))}
			}
		}()
		done <- ext.Extract(fctx, file, src)
	}()

	var ff []facts.Fact
	select {
	case ff = <-done:
	case <-fctx.Done():
		// The goroutine is abandoned; its late result is dropped.
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("[pipeline] extraction of %s exceeded %s", file.Path, p.opts.FileTimeout)
		return []facts.Fact{facts.Unparseable(file.Path, "extraction timed out")}
	}

	if p.cache != nil && ctx.Err() == nil {
		p.cache.Put(key, ff)
	}
	return ff
}

func filePaths(res *scan.Result) []string {
	out := make([]string, len(res.Files))
	for i, f := range res.Files {
		out[i] = f.Path
	}
	return out
}
