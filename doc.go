// Package fhirsnapshot generates snapshots for FHIR StructureDefinitions.
//
// A profile author writes a differential: the sparse list of constraints a
// derived StructureDefinition adds on top of its base. Consumers (validators,
// UIs, code generators) need the snapshot: the fully expanded element tree
// containing every inherited and overridden ElementDefinition. This package
// performs that expansion, the same way a compiler resolves a derived type's
// full member layout from a base type plus overrides.
//
// # Quick Start
//
//	import (
//	    "github.com/gofhir/snapshot/generator"
//	    "github.com/gofhir/snapshot/loader"
//	)
//
//	profiles := loader.NewInMemoryProfileService()
//	profiles.LoadFromDirectory("path/to/hl7.fhir.r4.core/package")
//
//	gen := generator.New(profiles)
//	if err := gen.Update(ctx, myProfile); err != nil {
//	    log.Fatal(err)
//	}
//	for _, issue := range gen.Outcome().Issues {
//	    fmt.Println(issue)
//	}
//
// # Error Model
//
// Errors come in two tiers. Fatal conditions (missing canonical URL, a
// constraint profile without a resolvable base, a differential that does not
// start at the tree root) abort generation and are returned as errors.
// Recoverable conditions (unresolved type profiles, invalid content
// references, slicing mistakes) degrade to diagnostics on the run's Outcome
// while the rest of the tree is still produced. A non-empty issue list means
// the result may be structurally incomplete.
//
// # Concurrency
//
// A Generator holds run-scoped state (the expansion stack, the issue list)
// and is not safe for concurrent use. Use one Generator per goroutine, or
// worker.BatchUpdater for parallel batch regeneration.
//
// # Architecture
//
// The package follows patterns from HAPI FHIR and Firely, adapted for Go:
//
//   - Small interfaces (1-2 methods each) for composability
//   - Chain of responsibility for profile resolution
//   - Bookmarked cursor over the flattened element sequence
//   - Explicit expansion stack for cycle-safe recursion
package fhirsnapshot
