package generator

import (
	"strings"

	"github.com/gofhir/snapshot/element"
	"github.com/gofhir/snapshot/service"
)

// completeDifferential turns a sparse differential into a complete,
// navigable pre-order tree. Authors may constrain a deep path without
// listing its ancestors; for every implied but absent ancestor a
// placeholder element is synthesized. Placeholders carry nothing but
// their path: they exist only to give the navigator a walkable structure.
//
// The input is cloned, never mutated: the differential belongs to the
// author.
func completeDifferential(diff []service.ElementDefinition) []*service.ElementDefinition {
	if len(diff) == 0 {
		return nil
	}

	out := make([]*service.ElementDefinition, 0, len(diff))
	seen := make(map[string]bool, len(diff))

	for i := range diff {
		path := diff[i].Path
		for _, ancestor := range ancestorPaths(path) {
			if !seen[ancestor] {
				out = append(out, &service.ElementDefinition{Path: ancestor})
				seen[ancestor] = true
			}
		}
		out = append(out, element.Clone(&diff[i]))
		seen[path] = true
	}

	return out
}

// ancestorPaths returns all strict ancestors of a dotted path, shortest
// first.
func ancestorPaths(path string) []string {
	var out []string
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[:i])
		}
	}
	return out
}

// isPlaceholder reports whether a differential element was synthesized by
// completeDifferential: it has a path and nothing else worth merging.
func isPlaceholder(e *service.ElementDefinition) bool {
	return e.SliceName == "" &&
		e.Slicing == nil &&
		e.Types == nil &&
		e.Min == nil &&
		e.Max == nil &&
		e.Short == nil &&
		e.Definition == nil &&
		e.Fixed == nil &&
		e.Pattern == nil &&
		e.Binding == nil &&
		e.Constraints == nil &&
		e.ContentReference == ""
}

// rootSegment returns the first segment of a dotted path.
func rootSegment(path string) string {
	if idx := strings.IndexByte(path, '.'); idx >= 0 {
		return path[:idx]
	}
	return path
}
