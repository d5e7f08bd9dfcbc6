// Package worker provides parallel batch snapshot regeneration.
//
// Definitions in a package derive from one another, so they cannot be
// regenerated in arbitrary parallel order: a profile's base must carry a
// snapshot before the profile is expanded. The updater schedules the set
// in dependency waves; definitions within a wave are independent and run
// in parallel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/gofhir/snapshot/service"
)

// ErrDependencyOrder marks definitions that never became ready: their
// base chain is cyclic within the batch or depends on a member that
// failed.
var ErrDependencyOrder = errors.New("worker: definition has an unsatisfiable base dependency in this batch")

// GeneratorFactory creates one snapshot generator per worker goroutine.
// Generators are not safe for concurrent use; the resolver behind them
// may be shared.
type GeneratorFactory func() service.SnapshotGenerator

// BatchUpdater regenerates snapshots for sets of definitions.
type BatchUpdater struct {
	factory GeneratorFactory
	workers int
}

// NewBatchUpdater creates a batch updater running at most workers
// generations in parallel. Zero or negative workers defaults to the
// number of CPUs.
func NewBatchUpdater(factory GeneratorFactory, workers int) *BatchUpdater {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &BatchUpdater{
		factory: factory,
		workers: workers,
	}
}

// BatchResult reports the outcome of one UpdateAll run.
type BatchResult struct {
	// Updated lists canonical URLs that received a snapshot, in
	// completion order.
	Updated []string
	// Failed maps canonical URLs to the error that stopped them.
	Failed map[string]error
	// Waves is the number of dependency waves executed.
	Waves int
}

// Ok returns true if every definition was updated.
func (r *BatchResult) Ok() bool {
	return len(r.Failed) == 0
}

// UpdateAll generates snapshots for every definition in defns, writing
// each result onto its definition. Bases outside the set must already
// carry snapshots or be reachable through the generators' resolver.
// A definition whose in-set base fails is reported with the base's
// failure wrapped in ErrDependencyOrder.
func (b *BatchUpdater) UpdateAll(ctx context.Context, defns []*service.StructureDefinition) *BatchResult {
	res := &BatchResult{Failed: make(map[string]error)}
	if len(defns) == 0 {
		return res
	}

	pending := make(map[string]*service.StructureDefinition, len(defns))
	for _, d := range defns {
		if d != nil && d.URL != "" {
			pending[d.URL] = d
		}
	}

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			for url := range pending {
				res.Failed[url] = err
			}
			return res
		}

		wave := make([]*service.StructureDefinition, 0, len(pending))
		dropped := 0
		for _, d := range pending {
			if _, waiting := pending[d.BaseDefinition]; waiting {
				continue
			}
			if baseErr, failed := res.Failed[d.BaseDefinition]; failed {
				delete(pending, d.URL)
				res.Failed[d.URL] = fmt.Errorf("%w: base %s failed: %v", ErrDependencyOrder, d.BaseDefinition, baseErr)
				dropped++
				continue
			}
			wave = append(wave, d)
		}
		if len(wave) == 0 {
			if dropped > 0 {
				continue
			}
			// Every remaining definition waits on another remaining one.
			for url := range pending {
				res.Failed[url] = ErrDependencyOrder
			}
			return res
		}
		res.Waves++

		for _, r := range b.runWave(ctx, wave) {
			delete(pending, r.url)
			if r.err != nil {
				res.Failed[r.url] = r.err
			} else {
				res.Updated = append(res.Updated, r.url)
			}
		}
	}
	return res
}

type waveResult struct {
	url string
	err error
}

// runWave generates the definitions of one wave, at most b.workers at a
// time, each worker with its own generator.
func (b *BatchUpdater) runWave(ctx context.Context, wave []*service.StructureDefinition) []waveResult {
	if len(wave) == 1 {
		return []waveResult{b.updateOne(ctx, b.factory(), wave[0])}
	}

	workers := b.workers
	if workers > len(wave) {
		workers = len(wave)
	}

	jobs := make(chan *service.StructureDefinition)
	out := make(chan waveResult, len(wave))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen := b.factory()
			for d := range jobs {
				out <- b.updateOne(ctx, gen, d)
			}
		}()
	}

	for _, d := range wave {
		select {
		case <-ctx.Done():
			out <- waveResult{url: d.URL, err: ctx.Err()}
		case jobs <- d:
		}
	}
	close(jobs)
	wg.Wait()
	close(out)

	results := make([]waveResult, 0, len(wave))
	for r := range out {
		results = append(results, r)
	}
	return results
}

func (b *BatchUpdater) updateOne(ctx context.Context, gen service.SnapshotGenerator, d *service.StructureDefinition) waveResult {
	if d.HasSnapshot() {
		return waveResult{url: d.URL}
	}
	updated, err := gen.GenerateSnapshot(ctx, d)
	if err != nil {
		return waveResult{url: d.URL, err: err}
	}
	d.Snapshot = updated.Snapshot
	return waveResult{url: d.URL}
}
