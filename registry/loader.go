package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/snapshot/loader"
)

// LoadStats summarizes what a package contributed to the profile store.
type LoadStats struct {
	// StructureDefinitions is the number of definitions loaded.
	StructureDefinitions int64
	// WithSnapshot counts loaded definitions that already carry a
	// snapshot. Core packages ship fully expanded.
	WithSnapshot int64
	// DifferentialOnly counts definitions that still need snapshot
	// generation. IG packages are typically in this state.
	DifferentialOnly int64
	// Errors counts files that could not be parsed or loaded.
	Errors int64
	// PackagesLoaded is the number of packages processed.
	PackagesLoaded int
}

// PackageLoader feeds the StructureDefinitions of downloaded FHIR
// packages into an in-memory profile store, tracking which of them still
// need their snapshots generated.
type PackageLoader struct {
	store *loader.InMemoryProfileService
	mu    sync.Mutex
}

// NewPackageLoader creates a loader targeting store.
func NewPackageLoader(store *loader.InMemoryProfileService) *PackageLoader {
	return &PackageLoader{store: store}
}

// LoadPackage loads every StructureDefinition of a single extracted
// package directory. Other resource types in the package are skipped.
func (l *PackageLoader) LoadPackage(packageDir string) (*LoadStats, error) {
	stats := &LoadStats{}

	files, err := definitionFiles(packageDir)
	if err != nil {
		return nil, err
	}
	for _, filePath := range files {
		if err := l.loadFile(filePath, stats); err != nil {
			atomic.AddInt64(&stats.Errors, 1)
		}
	}

	stats.PackagesLoaded = 1
	return stats, nil
}

// LoadPackages loads a resolved package set in order: core first, so
// base definitions are present before the profiles constraining them.
func (l *PackageLoader) LoadPackages(resolved *ResolvedPackages) (*LoadStats, error) {
	total := &LoadStats{}
	for _, path := range resolved.Paths() {
		stats, err := l.LoadPackage(path)
		if err != nil {
			return nil, fmt.Errorf("loading package %s: %w", path, err)
		}
		mergeStats(total, stats)
	}
	return total, nil
}

// LoadPackageParallel loads a package's definition files across several
// goroutines. The store handles its own locking; the loader only guards
// the shared decode path.
func (l *PackageLoader) LoadPackageParallel(packageDir string, workers int) (*LoadStats, error) {
	stats := &LoadStats{}

	files, err := definitionFiles(packageDir)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 4
	}

	fileChan := make(chan string, len(files))
	for _, f := range files {
		fileChan <- f
	}
	close(fileChan)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for filePath := range fileChan {
				if err := l.loadFile(filePath, stats); err != nil {
					atomic.AddInt64(&stats.Errors, 1)
				}
			}
		}()
	}
	wg.Wait()

	stats.PackagesLoaded = 1
	return stats, nil
}

// definitionFiles lists the JSON files of a package that may hold
// StructureDefinitions, using the conventional file naming of FHIR
// packages to skip terminology resources without opening them.
func definitionFiles(packageDir string) ([]string, error) {
	contentDir := packageDir
	packageSubDir := filepath.Join(packageDir, "package")
	if _, err := os.Stat(packageSubDir); err == nil {
		contentDir = packageSubDir
	}

	entries, err := os.ReadDir(contentDir)
	if err != nil {
		return nil, fmt.Errorf("reading package directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		switch {
		case name == "package.json" || name == ".index.json":
		case strings.HasPrefix(name, "CodeSystem-"),
			strings.HasPrefix(name, "ValueSet-"),
			strings.HasPrefix(name, "ConceptMap-"):
		default:
			files = append(files, filepath.Join(contentDir, name))
		}
	}
	return files, nil
}

// loadFile loads the StructureDefinitions of a single JSON file.
func (l *PackageLoader) loadFile(filePath string, stats *LoadStats) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch probe.ResourceType {
	case "StructureDefinition":
		return l.loadDefinition(data, stats)
	case "Bundle":
		return l.loadBundle(data, stats)
	}
	return nil
}

func (l *PackageLoader) loadDefinition(data []byte, stats *LoadStats) error {
	var sd r4.StructureDefinition
	if err := json.Unmarshal(data, &sd); err != nil {
		return err
	}

	l.mu.Lock()
	err := l.store.LoadR4StructureDefinition(&sd)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	atomic.AddInt64(&stats.StructureDefinitions, 1)
	if sd.Snapshot != nil && len(sd.Snapshot.Element) > 0 {
		atomic.AddInt64(&stats.WithSnapshot, 1)
	} else {
		atomic.AddInt64(&stats.DifferentialOnly, 1)
	}
	return nil
}

// loadBundle loads the StructureDefinition entries of a bundle, as found
// in spec distribution files like profiles-resources.json.
func (l *PackageLoader) loadBundle(data []byte, stats *LoadStats) error {
	var bundle struct {
		Entry []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return err
	}

	for _, entry := range bundle.Entry {
		if entry.Resource == nil {
			continue
		}
		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(entry.Resource, &probe); err != nil || probe.ResourceType != "StructureDefinition" {
			continue
		}
		if err := l.loadDefinition(entry.Resource, stats); err != nil {
			atomic.AddInt64(&stats.Errors, 1)
		}
	}
	return nil
}

// mergeStats merges source into target.
func mergeStats(target, source *LoadStats) {
	target.StructureDefinitions += source.StructureDefinitions
	target.WithSnapshot += source.WithSnapshot
	target.DifferentialOnly += source.DifferentialOnly
	target.Errors += source.Errors
	target.PackagesLoaded += source.PackagesLoaded
}
