package landtypes

import (
	"context"
	"fmt"
	"sync"

	"github.com/paddockmaps/landtypes/internal/arcgis"
)

// prepare runs the per-lot pipeline stages for every requested lot/plan
// and returns the bundles in request order.
//
// Lots are prepared concurrently on a bounded worker pool. The first
// error aborts the whole request; duplicate lot/plans are prepared
// again rather than deduplicated, so a degenerate self-merge yields
// duplicated features over an unchanged bounding box.
func (e *Exporter) prepare(ctx context.Context, lotplans []string, opts ExportOptions) ([]*lotBundle, error) {
	if len(lotplans) == 0 {
		return nil, fmt.Errorf("at least one lotplan is required")
	}
	for _, lp := range lotplans {
		if arcgis.NormalizeLotPlan(lp) == "" {
			return nil, fmt.Errorf("empty lotplan in request")
		}
	}

	if len(lotplans) == 1 {
		b, err := e.prepareLot(ctx, lotplans[0], opts)
		if err != nil {
			return nil, err
		}
		return []*lotBundle{b}, nil
	}

	workers := opts.Workers
	if workers > len(lotplans) {
		workers = len(lotplans)
	}

	type prepResult struct {
		index  int
		bundle *lotBundle
		err    error
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int, len(lotplans))
	results := make(chan prepResult, len(lotplans))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				bundle, err := e.prepareLot(ctx, lotplans[index], opts)
				results <- prepResult{index: index, bundle: bundle, err: err}
			}
		}()
	}

	for i := range lotplans {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect results, aborting on the first failure. cancel() stops
	// in-flight fetches; remaining results drain before return.
	bundles := make([]*lotBundle, len(lotplans))
	var firstErr error
	for result := range results {
		if result.err != nil {
			if firstErr == nil {
				firstErr = result.err
				cancel()
			}
			continue
		}
		bundles[result.index] = result.bundle
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return bundles, nil
}
