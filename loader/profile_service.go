package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofhir/fhir/r4"
	"github.com/gofhir/snapshot/service"
)

// InMemoryProfileService implements service.SchemaResolver over in-memory
// storage. It stores converted StructureDefinitions indexed by URL and by
// type, and is the usual resolver behind a Generator: load a package
// directory, then generate against it.
//
// Stored definitions are shared, not copied. A batch updater writing
// snapshots onto them makes those snapshots visible to later resolutions,
// which is what lets a package regenerate bottom-up.
type InMemoryProfileService struct {
	mu        sync.RWMutex
	byURL     map[string]*service.StructureDefinition
	byType    map[string]*service.StructureDefinition
	converter *R4Converter
}

// NewInMemoryProfileService creates an empty profile service.
func NewInMemoryProfileService() *InMemoryProfileService {
	return &InMemoryProfileService{
		byURL:     make(map[string]*service.StructureDefinition),
		byType:    make(map[string]*service.StructureDefinition),
		converter: NewR4Converter(),
	}
}

// LoadR4StructureDefinition converts and stores an R4 StructureDefinition.
func (s *InMemoryProfileService) LoadR4StructureDefinition(sd *r4.StructureDefinition) error {
	if sd == nil {
		return fmt.Errorf("structure definition is nil")
	}
	return s.LoadStructureDefinition(s.converter.ConvertStructureDefinition(sd))
}

// LoadStructureDefinition stores an already-converted definition.
func (s *InMemoryProfileService) LoadStructureDefinition(sd *service.StructureDefinition) error {
	if sd == nil {
		return fmt.Errorf("structure definition is nil")
	}
	if sd.URL == "" {
		return fmt.Errorf("structure definition %q has no canonical URL", sd.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byURL[sd.URL] = sd

	// Index by type only for THE base definition of the type, so profiles
	// never shadow their core type.
	switch sd.Kind {
	case "resource", "complex-type", "primitive-type", "logical":
		if sd.Type != "" && sd.URL == service.CanonicalForType(sd.Type) {
			s.byType[sd.Type] = sd
		}
	}

	return nil
}

// FetchStructureDefinition implements service.SchemaResolver.
func (s *InMemoryProfileService) FetchStructureDefinition(ctx context.Context, url string) (*service.StructureDefinition, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sd, ok := s.byURL[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", service.ErrNotFound, url)
	}
	return sd, nil
}

// FetchStructureDefinitionByType implements service.TypeResolver.
func (s *InMemoryProfileService) FetchStructureDefinitionByType(ctx context.Context, typeCode string) (*service.StructureDefinition, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	sd, ok := s.byType[typeCode]
	s.mu.RUnlock()
	if ok {
		return sd, nil
	}
	return s.FetchStructureDefinition(ctx, service.CanonicalForType(typeCode))
}

// Definitions returns every stored definition, ordered by URL. The
// definitions are the stored instances, not copies.
func (s *InMemoryProfileService) Definitions() []*service.StructureDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*service.StructureDefinition, 0, len(s.byURL))
	for _, sd := range s.byURL {
		out = append(out, sd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Count returns the number of stored definitions.
func (s *InMemoryProfileService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byURL)
}

// Clear removes all stored definitions.
func (s *InMemoryProfileService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byURL = make(map[string]*service.StructureDefinition)
	s.byType = make(map[string]*service.StructureDefinition)
}

// LoadFromFile loads StructureDefinitions from a JSON file holding a
// single StructureDefinition or a Bundle.
func (s *InMemoryProfileService) LoadFromFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return s.LoadFromJSON(data)
}

// LoadFromJSON loads StructureDefinitions from JSON data, auto-detecting
// Bundle vs single StructureDefinition format.
func (s *InMemoryProfileService) LoadFromJSON(data []byte) (int, error) {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("invalid JSON: %w", err)
	}

	switch probe.ResourceType {
	case "Bundle":
		return s.LoadFromBundle(data)
	case "StructureDefinition":
		var sd r4.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			return 0, fmt.Errorf("failed to parse StructureDefinition: %w", err)
		}
		if err := s.LoadR4StructureDefinition(&sd); err != nil {
			return 0, err
		}
		return 1, nil
	default:
		return 0, fmt.Errorf("unsupported resourceType: %q", probe.ResourceType)
	}
}

// LoadFromBundle loads every StructureDefinition entry of a FHIR Bundle.
// Entries of other resource types, and entries that fail to parse, are
// skipped.
func (s *InMemoryProfileService) LoadFromBundle(data []byte) (int, error) {
	var bundle struct {
		ResourceType string `json:"resourceType"`
		Entry        []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return 0, fmt.Errorf("failed to parse Bundle: %w", err)
	}
	if bundle.ResourceType != "Bundle" {
		return 0, fmt.Errorf("expected Bundle, got %q", bundle.ResourceType)
	}

	count := 0
	for _, entry := range bundle.Entry {
		if entry.Resource == nil {
			continue
		}
		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(entry.Resource, &probe); err != nil {
			continue
		}
		if probe.ResourceType != "StructureDefinition" {
			continue
		}
		var sd r4.StructureDefinition
		if err := json.Unmarshal(entry.Resource, &sd); err != nil {
			continue
		}
		if err := s.LoadR4StructureDefinition(&sd); err != nil {
			continue
		}
		count++
	}
	return count, nil
}

// LoadFromDirectory loads StructureDefinition-*.json files from a
// directory, the layout FHIR packages use.
func (s *InMemoryProfileService) LoadFromDirectory(dirPath string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dirPath, "StructureDefinition-*.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to glob directory: %w", err)
	}

	total := 0
	for _, file := range files {
		count, err := s.LoadFromFile(file)
		if err != nil {
			continue
		}
		total += count
	}
	return total, nil
}

// LoadAllFromDirectory loads every JSON file under dirPath recursively,
// skipping files that are not StructureDefinitions or Bundles.
func (s *InMemoryProfileService) LoadAllFromDirectory(dirPath string) (int, error) {
	total := 0
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		count, err := s.LoadFromFile(path)
		if err != nil {
			return nil
		}
		total += count
		return nil
	})
	return total, err
}

// Interface compliance.
var (
	_ service.SchemaResolver = (*InMemoryProfileService)(nil)
	_ service.TypeResolver   = (*InMemoryProfileService)(nil)
)
