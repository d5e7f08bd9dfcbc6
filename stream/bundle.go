// Package stream extracts StructureDefinitions from large FHIR bundles
// without holding the whole bundle in memory. Spec distribution files
// like profiles-resources.json are bundles of several thousand entries;
// streaming them keeps peak memory proportional to one entry.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/snapshot/loader"
	"github.com/gofhir/snapshot/service"
)

// EntryResult is the outcome of processing one bundle entry.
type EntryResult struct {
	// Index is the position of the entry in the bundle
	Index int

	// FullURL is the fullUrl of the entry (if present)
	FullURL string

	// ResourceType is the type of resource in the entry
	ResourceType string

	// Definition is the converted definition for StructureDefinition
	// entries; nil for entries of other resource types
	Definition *service.StructureDefinition

	// Error is set if the entry could not be decoded or converted
	Error error
}

// BundleReader streams the entries of a FHIR bundle and converts its
// StructureDefinitions to the internal model.
type BundleReader struct {
	converter   *loader.R4Converter
	bufferSize  int
	workerCount int
}

// NewBundleReader creates a streaming bundle reader.
func NewBundleReader() *BundleReader {
	return &BundleReader{
		converter:   loader.NewR4Converter(),
		bufferSize:  64,
		workerCount: 4,
	}
}

// WithBufferSize sets the channel buffer size.
func (b *BundleReader) WithBufferSize(size int) *BundleReader {
	if size > 0 {
		b.bufferSize = size
	}
	return b
}

// WithWorkerCount sets the number of parallel conversion workers used by
// DefinitionsParallel.
func (b *BundleReader) WithWorkerCount(count int) *BundleReader {
	if count > 0 {
		b.workerCount = count
	}
	return b
}

// Definitions streams the bundle from r, emitting one EntryResult per
// entry in bundle order. Entries of resource types other than
// StructureDefinition are emitted with a nil Definition so callers can
// count them. The channel is closed when the bundle is exhausted or the
// context is canceled.
func (b *BundleReader) Definitions(ctx context.Context, r io.Reader) <-chan *EntryResult {
	results := make(chan *EntryResult, b.bufferSize)

	go func() {
		defer close(results)

		decoder := json.NewDecoder(r)

		token, err := decoder.Token()
		if err != nil {
			results <- &EntryResult{Index: -1, Error: fmt.Errorf("reading bundle: %w", err)}
			return
		}
		if delim, ok := token.(json.Delim); !ok || delim != '{' {
			results <- &EntryResult{Index: -1, Error: fmt.Errorf("expected object start, got %v", token)}
			return
		}

		for decoder.More() {
			select {
			case <-ctx.Done():
				results <- &EntryResult{Index: -1, Error: ctx.Err()}
				return
			default:
			}

			token, err := decoder.Token()
			if err != nil {
				results <- &EntryResult{Index: -1, Error: fmt.Errorf("reading field: %w", err)}
				return
			}
			fieldName, ok := token.(string)
			if !ok {
				continue
			}

			if fieldName == "entry" {
				b.streamEntries(ctx, decoder, results)
				return
			}

			// Skip bundle-level fields preceding the entry array.
			var skip any
			if err := decoder.Decode(&skip); err != nil {
				results <- &EntryResult{Index: -1, Error: fmt.Errorf("skipping field %s: %w", fieldName, err)}
				return
			}
		}
	}()

	return results
}

// streamEntries walks the entry array, decoding one entry at a time.
func (b *BundleReader) streamEntries(ctx context.Context, decoder *json.Decoder, results chan<- *EntryResult) {
	token, err := decoder.Token()
	if err != nil {
		results <- &EntryResult{Index: -1, Error: fmt.Errorf("reading entry array: %w", err)}
		return
	}
	if delim, ok := token.(json.Delim); !ok || delim != '[' {
		results <- &EntryResult{Index: -1, Error: fmt.Errorf("expected array start, got %v", token)}
		return
	}

	index := 0
	for decoder.More() {
		select {
		case <-ctx.Done():
			results <- &EntryResult{Index: index, Error: ctx.Err()}
			return
		default:
		}

		var entry rawEntry
		if err := decoder.Decode(&entry); err != nil {
			results <- &EntryResult{Index: index, Error: fmt.Errorf("decoding entry %d: %w", index, err)}
			index++
			continue
		}

		results <- b.convertEntry(&entry, index)
		index++
	}
}

// rawEntry is one bundle entry with its resource left undecoded.
type rawEntry struct {
	FullURL  string          `json:"fullUrl"`
	Resource json.RawMessage `json:"resource"`
}

// convertEntry converts a single bundle entry.
func (b *BundleReader) convertEntry(entry *rawEntry, index int) *EntryResult {
	result := &EntryResult{
		Index:   index,
		FullURL: entry.FullURL,
	}
	if entry.Resource == nil {
		return result
	}

	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(entry.Resource, &probe); err != nil {
		result.Error = fmt.Errorf("probing entry %d: %w", index, err)
		return result
	}
	result.ResourceType = probe.ResourceType
	if probe.ResourceType != "StructureDefinition" {
		return result
	}

	var sd r4.StructureDefinition
	if err := json.Unmarshal(entry.Resource, &sd); err != nil {
		result.Error = fmt.Errorf("decoding entry %d: %w", index, err)
		return result
	}
	result.Definition = b.converter.ConvertStructureDefinition(&sd)
	return result
}

// DefinitionsParallel converts entries across several workers while
// preserving bundle order in the output. The whole entry array is read
// up front; use Definitions when memory matters more than CPU.
func (b *BundleReader) DefinitionsParallel(ctx context.Context, r io.Reader) <-chan *EntryResult {
	results := make(chan *EntryResult, b.bufferSize)

	go func() {
		defer close(results)

		var bundle struct {
			Entry []rawEntry `json:"entry"`
		}
		if err := json.NewDecoder(r).Decode(&bundle); err != nil {
			results <- &EntryResult{Index: -1, Error: fmt.Errorf("decoding bundle: %w", err)}
			return
		}
		if len(bundle.Entry) == 0 {
			return
		}

		type workItem struct {
			index int
			entry *rawEntry
		}
		workChan := make(chan workItem, b.bufferSize)
		resultChan := make(chan *EntryResult, b.bufferSize)

		var wg sync.WaitGroup
		for i := 0; i < b.workerCount; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for work := range workChan {
					select {
					case <-ctx.Done():
						return
					default:
					}
					resultChan <- b.convertEntry(work.entry, work.index)
				}
			}()
		}

		go func() {
			for i := range bundle.Entry {
				select {
				case workChan <- workItem{index: i, entry: &bundle.Entry[i]}:
				case <-ctx.Done():
				}
			}
			close(workChan)
			wg.Wait()
			close(resultChan)
		}()

		// Reorder worker output back into bundle order.
		pending := make(map[int]*EntryResult)
		nextIndex := 0
		for result := range resultChan {
			pending[result.Index] = result
			for {
				r, ok := pending[nextIndex]
				if !ok {
					break
				}
				results <- r
				delete(pending, nextIndex)
				nextIndex++
			}
		}
		for nextIndex < len(bundle.Entry) {
			if r, ok := pending[nextIndex]; ok {
				results <- r
				delete(pending, nextIndex)
			}
			nextIndex++
		}
	}()

	return results
}

// LoadStats aggregates the outcome of loading a streamed bundle.
type LoadStats struct {
	// TotalEntries is the number of entries processed
	TotalEntries int

	// Definitions is the number of StructureDefinitions loaded
	Definitions int

	// WithSnapshot counts loaded definitions that already carry snapshots
	WithSnapshot int

	// Skipped is the number of entries of other resource types
	Skipped int

	// Errors are the per-entry failures encountered during the stream
	Errors []error
}

// HasErrors returns true if any entries failed.
func (s *LoadStats) HasErrors() bool {
	return len(s.Errors) > 0
}

// Summary returns a human-readable summary of the load.
func (s *LoadStats) Summary() string {
	return fmt.Sprintf(
		"Loaded %d definitions from %d entries: %d with snapshots, %d skipped, %d errors",
		s.Definitions, s.TotalEntries, s.WithSnapshot, s.Skipped, len(s.Errors),
	)
}

// Load consumes a result stream and registers every definition with the
// store.
func Load(results <-chan *EntryResult, store *loader.InMemoryProfileService) *LoadStats {
	stats := &LoadStats{}

	for result := range results {
		if result.Error != nil {
			stats.Errors = append(stats.Errors, result.Error)
			continue
		}
		if result.Index < 0 {
			continue
		}
		stats.TotalEntries++

		if result.Definition == nil {
			stats.Skipped++
			continue
		}
		if err := store.LoadStructureDefinition(result.Definition); err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("entry %d (%s): %w", result.Index, result.FullURL, err))
			continue
		}
		stats.Definitions++
		if result.Definition.HasSnapshot() {
			stats.WithSnapshot++
		}
	}

	return stats
}

// LoadBundle streams a bundle from r straight into the store.
func LoadBundle(ctx context.Context, r io.Reader, store *loader.InMemoryProfileService) *LoadStats {
	return Load(NewBundleReader().Definitions(ctx, r), store)
}
