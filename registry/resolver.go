package registry

import (
	"context"
	"fmt"

	fhirsnapshot "github.com/gofhir/snapshot"
)

// PackageRef references a FHIR package by name and version.
type PackageRef struct {
	Name    string
	Version string
}

// String returns the package reference as "name@version".
func (p PackageRef) String() string {
	if p.Version == "" || p.Version == VersionLatest {
		return p.Name
	}
	return fmt.Sprintf("%s@%s", p.Name, p.Version)
}

// CorePackages maps FHIR versions to the package carrying the core
// StructureDefinitions. Core definitions ship with snapshots and serve
// as the base layer every profile expansion resolves against.
var CorePackages = map[fhirsnapshot.FHIRVersion]PackageRef{
	fhirsnapshot.R4:  {Name: "hl7.fhir.r4.core", Version: "4.0.1"},
	fhirsnapshot.R4B: {Name: "hl7.fhir.r4b.core", Version: "4.3.0"},
	fhirsnapshot.R5:  {Name: "hl7.fhir.r5.core", Version: "5.0.0"},
}

// ExtensionsPackages maps FHIR versions to the standard extensions
// package. Extension definitions are constraint profiles and commonly
// ship differential-only.
var ExtensionsPackages = map[fhirsnapshot.FHIRVersion]PackageRef{
	fhirsnapshot.R4:  {Name: "hl7.fhir.uv.extensions.r4", Version: VersionLatest},
	fhirsnapshot.R4B: {Name: "hl7.fhir.uv.extensions.r4", Version: VersionLatest},
	fhirsnapshot.R5:  {Name: "hl7.fhir.uv.extensions.r5", Version: VersionLatest},
}

// Resolver determines and fetches the packages a generation run needs.
type Resolver struct {
	client *Client
}

// NewResolver creates a new package resolver.
func NewResolver(client *Client) *Resolver {
	return &Resolver{client: client}
}

// ResolveOptions configures package resolution.
type ResolveOptions struct {
	// IncludeExtensions includes the standard extensions package.
	IncludeExtensions bool

	// Packages are additional packages to include, usually the IGs whose
	// snapshots are to be generated.
	Packages []PackageRef

	// FollowDependencies walks the dependency lists in the packages'
	// manifests and fetches those too, so base profiles from other IGs
	// resolve during generation.
	FollowDependencies bool
}

// ResolvedPackages contains the local paths of all fetched packages.
type ResolvedPackages struct {
	// Core is the path to the core package for the requested version.
	Core string
	// Extensions is the path to the extensions package, if requested.
	Extensions string
	// Additional holds the paths of the requested IG packages and, when
	// dependency following is on, their transitive dependencies.
	Additional []string
	// Version is the FHIR version the set was resolved for.
	Version fhirsnapshot.FHIRVersion
}

// Paths returns all resolved package paths, core first. Loading them in
// this order makes base definitions available before the profiles that
// constrain them.
func (r *ResolvedPackages) Paths() []string {
	out := make([]string, 0, len(r.Additional)+2)
	if r.Core != "" {
		out = append(out, r.Core)
	}
	if r.Extensions != "" {
		out = append(out, r.Extensions)
	}
	return append(out, r.Additional...)
}

// Resolve fetches the core package for a FHIR version plus the requested
// IG packages and returns their local paths.
func (r *Resolver) Resolve(ctx context.Context, version fhirsnapshot.FHIRVersion, opts ResolveOptions) (*ResolvedPackages, error) {
	result := &ResolvedPackages{Version: version}

	coreRef, ok := CorePackages[version]
	if !ok {
		return nil, fmt.Errorf("unsupported FHIR version: %s", version)
	}
	corePath, err := r.client.GetPackage(ctx, coreRef.Name, coreRef.Version)
	if err != nil {
		return nil, fmt.Errorf("fetching core package %s: %w", coreRef, err)
	}
	result.Core = corePath

	if opts.IncludeExtensions {
		if extRef, ok := ExtensionsPackages[version]; ok {
			extPath, err := r.client.GetPackage(ctx, extRef.Name, extRef.Version)
			if err != nil {
				return nil, fmt.Errorf("fetching extensions package %s: %w", extRef, err)
			}
			result.Extensions = extPath
		}
	}

	seen := make(map[string]bool)
	for _, ref := range opts.Packages {
		path, err := r.client.GetPackage(ctx, ref.Name, ref.Version)
		if err != nil {
			return nil, fmt.Errorf("fetching package %s: %w", ref, err)
		}
		if !seen[path] {
			seen[path] = true
			result.Additional = append(result.Additional, path)
		}
	}

	if opts.FollowDependencies {
		if err := r.followDependencies(ctx, result, seen); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// followDependencies walks the manifests of the additional packages in
// breadth-first order and fetches every dependency that is not a core or
// terminology package.
func (r *Resolver) followDependencies(ctx context.Context, result *ResolvedPackages, seen map[string]bool) error {
	queue := append([]string(nil), result.Additional...)
	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]

		manifest, err := r.client.ReadManifest(path)
		if err != nil {
			continue
		}
		for depName, depVersion := range manifest.Dependencies {
			if isCoreDependency(depName) {
				continue
			}
			depPath, err := r.client.GetPackage(ctx, depName, depVersion)
			if err != nil {
				return fmt.Errorf("fetching dependency %s@%s of %s: %w", depName, depVersion, manifest.Name, err)
			}
			if !seen[depPath] {
				seen[depPath] = true
				result.Additional = append(result.Additional, depPath)
				queue = append(queue, depPath)
			}
		}
	}
	return nil
}

// isCoreDependency reports whether a package name denotes a core FHIR or
// terminology package, which are handled separately from IG dependencies.
func isCoreDependency(name string) bool {
	corePrefixes := []string{
		"hl7.fhir.r4.core",
		"hl7.fhir.r4b.core",
		"hl7.fhir.r5.core",
		"hl7.terminology",
	}
	for _, prefix := range corePrefixes {
		if name == prefix || (len(name) > len(prefix) && name[:len(prefix)] == prefix) {
			return true
		}
	}
	return false
}
