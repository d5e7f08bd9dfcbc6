// Package loader bridges the full FHIR R4 models and the internal
// service models snapshot generation works on.
//
// Key components:
//   - R4Converter: converts r4.StructureDefinition to and from
//     service.StructureDefinition, preserving which element fields a
//     differential actually sets
//   - InMemoryProfileService: a service.SchemaResolver over definitions
//     loaded from files, JSON arrays, bundles, or package directories
//
// Example usage:
//
//	svc := loader.NewInMemoryProfileService()
//	if _, err := svc.LoadFromDirectory("./package"); err != nil {
//	    return err
//	}
//	gen := generator.New(svc)
package loader
