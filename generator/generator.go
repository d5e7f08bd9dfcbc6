// Package generator implements snapshot generation for FHIR
// StructureDefinitions: expanding a sparse differential against a resolved
// base definition into a complete, ordered snapshot element sequence.
package generator

import (
	"context"
	"errors"
	"strings"

	fhirsnapshot "github.com/gofhir/snapshot"
	"github.com/gofhir/snapshot/cache"
	"github.com/gofhir/snapshot/element"
	"github.com/gofhir/snapshot/navigator"
	"github.com/gofhir/snapshot/pool"
	"github.com/gofhir/snapshot/service"
)

// Generator expands differentials into snapshots. It is not safe for
// concurrent use; create one Generator per goroutine. The resolver and
// the snapshot cache may be shared.
type Generator struct {
	resolver service.SchemaResolver
	merger   service.ElementMerger
	observer service.Observer
	opts     *fhirsnapshot.Options

	// Run-scoped state, reset on every top-level call.
	outcome *fhirsnapshot.Outcome
	stack   *expansionStack
	current *service.StructureDefinition

	exprs     *exprChecker
	snapshots *cache.Cache[string, []service.ElementDefinition]
}

// New creates a Generator resolving profiles through resolver.
func New(resolver service.SchemaResolver, opts ...fhirsnapshot.Option) *Generator {
	options := fhirsnapshot.DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	g := &Generator{
		resolver: resolver,
		merger:   element.NewMerger(),
		observer: service.NopObserver{},
		opts:     options,
		outcome:  &fhirsnapshot.Outcome{},
		stack:    newExpansionStack(),
	}
	if options.CheckConstraintExpressions {
		g.exprs = newExprChecker()
	}
	if options.SnapshotCacheSize > 0 {
		g.snapshots = cache.New[string, []service.ElementDefinition](options.SnapshotCacheSize)
	}
	return g
}

// WithMerger replaces the field-merge primitive.
func (g *Generator) WithMerger(m service.ElementMerger) *Generator {
	if m != nil {
		g.merger = m
	}
	return g
}

// WithObserver installs an observer on the merge engine's extension
// points.
func (g *Generator) WithObserver(o service.Observer) *Generator {
	if o != nil {
		g.observer = o
	}
	return g
}

// Outcome returns the issues recorded by the most recent top-level call.
// The returned value is reused across calls; Clone it to retain.
func (g *Generator) Outcome() *fhirsnapshot.Outcome {
	return g.outcome
}

// Generate produces the snapshot element sequence for defn without
// modifying it. A non-nil error means no usable snapshot was produced;
// recoverable problems are recorded on Outcome instead.
func (g *Generator) Generate(ctx context.Context, defn *service.StructureDefinition) ([]service.ElementDefinition, error) {
	if err := g.beginRun(defn); err != nil {
		return nil, err
	}
	snap, err := g.buildSnapshot(ctx, defn)
	if err != nil {
		return nil, g.fatal(err, defn.URL)
	}
	return snap, nil
}

// Update generates the snapshot for defn and stores it on the definition.
// An existing snapshot is kept unless RegenerateExisting is set.
func (g *Generator) Update(ctx context.Context, defn *service.StructureDefinition) error {
	if err := g.beginRun(defn); err != nil {
		return err
	}
	if defn.HasSnapshot() && !g.opts.RegenerateExisting {
		return nil
	}
	snap, err := g.buildSnapshot(ctx, defn)
	if err != nil {
		return g.fatal(err, defn.URL)
	}
	defn.Snapshot = snap
	return nil
}

// GenerateSnapshot implements service.SnapshotGenerator: it returns a
// copy of defn carrying a generated snapshot, leaving defn untouched.
func (g *Generator) GenerateSnapshot(ctx context.Context, defn *service.StructureDefinition) (*service.StructureDefinition, error) {
	snap, err := g.Generate(ctx, defn)
	if err != nil {
		return nil, err
	}
	out := *defn
	out.Snapshot = snap
	return &out, nil
}

// ExpandElement ensures the children of the element at path are present
// in defn's snapshot, expanding its type or content reference on demand.
// The definition's snapshot is generated first if absent. It returns the
// updated snapshot sequence.
func (g *Generator) ExpandElement(ctx context.Context, defn *service.StructureDefinition, path string) ([]service.ElementDefinition, error) {
	if err := g.beginRun(defn); err != nil {
		return nil, err
	}

	snap := defn.Snapshot
	if !defn.HasSnapshot() || g.opts.RegenerateExisting {
		built, err := g.buildSnapshot(ctx, defn)
		if err != nil {
			return nil, g.fatal(err, defn.URL)
		}
		snap = built
	}

	nav := navigator.FromSnapshot(defn.URL, snap)
	if !nav.JumpToNameReference(path) {
		return nil, g.fatal(fhirsnapshot.Fatal(fhirsnapshot.IssueTypeNotFound, defn.URL,
			"element %s not found in %s", path, defn.URL), defn.URL)
	}
	g.expandElement(ctx, nav)
	return flatten(nav), nil
}

// beginRun validates the input and resets run-scoped state.
func (g *Generator) beginRun(defn *service.StructureDefinition) error {
	if defn == nil {
		return fhirsnapshot.Fatal(fhirsnapshot.IssueTypeInvalid, "", "nil structure definition")
	}
	g.outcome.Reset(defn.URL)
	g.stack.reset()
	g.current = defn
	if defn.URL == "" {
		return g.fatal(fhirsnapshot.Fatal(fhirsnapshot.IssueTypeRequired, "",
			"structure definition has no canonical URL"), "")
	}
	return nil
}

// fatal records a fatal error on the outcome and returns it.
func (g *Generator) fatal(err error, profile string) error {
	var ferr *fhirsnapshot.FatalError
	if !errors.As(err, &ferr) {
		var cerr *CycleError
		if errors.As(err, &cerr) {
			ferr = fhirsnapshot.Fatal(fhirsnapshot.IssueTypeProcessing, profile, "%s", cerr.Error())
		} else {
			ferr = fhirsnapshot.Fatal(fhirsnapshot.IssueTypeProcessing, profile, "%s", err.Error())
		}
	}
	g.record(ferr.Issue())
	return ferr
}

// record adds an issue to the outcome, honoring the MaxIssues cap.
func (g *Generator) record(issue fhirsnapshot.Issue) {
	if g.opts.MaxIssues > 0 && len(g.outcome.Issues) >= g.opts.MaxIssues {
		return
	}
	g.outcome.Add(issue)
}

// buildSnapshot expands defn's differential against its base and returns
// the snapshot sequence. The expansion is registered on the recursion
// guard for the duration of the call; a cyclic base chain surfaces here
// as a CycleError.
func (g *Generator) buildSnapshot(ctx context.Context, defn *service.StructureDefinition) ([]service.ElementDefinition, error) {
	if g.stack.depth() >= g.opts.MaxExpansionDepth {
		return nil, fhirsnapshot.Fatal(fhirsnapshot.IssueTypeProcessing, defn.URL,
			"expansion depth limit %d exceeded", g.opts.MaxExpansionDepth)
	}
	if err := g.stack.push(defn.URL, ""); err != nil {
		return nil, err
	}
	defer g.stack.pop()

	work, err := g.prepareBase(ctx, defn)
	if err != nil {
		return nil, err
	}

	diff := navigator.New(completeDifferential(defn.Differential))
	diff.URL = defn.URL

	work.MoveToRoot()
	diff.MoveToRoot()
	g.mergeChildren(ctx, work, diff)

	g.finalize(work, defn)

	g.stack.registerRoot(defn.URL, work)
	return flatten(work), nil
}

// prepareBase resolves defn's base definition and returns a mutable
// working navigator seeded with the base's snapshot, plus the resolved
// base. For definitions without a base the differential itself seeds the
// tree.
func (g *Generator) prepareBase(ctx context.Context, defn *service.StructureDefinition) (*navigator.Navigator, error) {
	if defn.BaseDefinition == "" {
		if defn.IsConstraint() {
			return nil, fhirsnapshot.Fatal(fhirsnapshot.IssueTypeRequired, defn.URL,
				"constraint profile %s has no base definition", defn.URL)
		}
		if _, err := differentialRoot(defn); err != nil {
			return nil, err
		}
		// A root type: its differential is its complete shape.
		work := navigator.New(completeDifferential(defn.Differential))
		work.URL = defn.URL
		return work, nil
	}

	baseNav, baseSD, err := g.snapshotFor(ctx, defn.BaseDefinition)
	if err != nil {
		var cerr *CycleError
		if errors.As(err, &cerr) {
			return nil, err
		}
		return nil, fhirsnapshot.Fatal(fhirsnapshot.IssueTypeNotFound, defn.URL,
			"base definition %s of %s could not be prepared: %v", defn.BaseDefinition, defn.URL, err)
	}

	if baseSD != nil {
		g.observer.OnPrepareBaseProfile(baseSD, defn)
	}

	work := cloneNav(baseNav)
	work.URL = defn.URL

	baseElems := baseNav.Elements()
	for i, e := range work.Elements() {
		e.ConstrainedByDiff = false
		var origin *service.ElementDefinition
		if i < len(baseElems) {
			origin = baseElems[i]
		}
		g.observer.OnPrepareElement(e, baseSD, origin)
		if e.Base == nil && origin != nil {
			element.StampBase(e, baseNav.URL, origin)
		}
	}

	// A specialization introduces a new root type; its tree is rooted at
	// the first differential node, which must be a root path.
	if defn.Derivation == service.DerivationSpecialization {
		newRoot, err := differentialRoot(defn)
		if err != nil {
			return nil, err
		}
		oldRoot := ""
		if len(work.Elements()) > 0 {
			oldRoot = work.Elements()[0].Path
		}
		if oldRoot != "" && newRoot != "" && oldRoot != newRoot {
			for _, e := range work.Elements() {
				element.Rebase(e, oldRoot, newRoot)
			}
		}
	}

	return work, nil
}

// differentialRoot returns the root path a new-type differential
// declares. The first node must be the tree root; a differential that
// starts below the root cannot define a new type. An empty differential
// falls back to the declared type name.
func differentialRoot(defn *service.StructureDefinition) (string, error) {
	if len(defn.Differential) == 0 {
		return defn.Type, nil
	}
	first := defn.Differential[0].Path
	if first == "" || rootSegment(first) != first {
		return "", fhirsnapshot.Fatal(fhirsnapshot.IssueTypeInvalid, defn.URL,
			"differential of %s does not start at the tree root (first element is %s)", defn.URL, first)
	}
	return first, nil
}

// snapshotFor returns a navigator over the expanded element sequence of
// the definition at url, resolving and generating as needed. Results are
// memoized per run; the returned navigator is shared and must be treated
// as read-only. The returned definition is nil when the sequence came
// from a memo or cache hit.
func (g *Generator) snapshotFor(ctx context.Context, url string) (*navigator.Navigator, *service.StructureDefinition, error) {
	if nav := g.stack.resolveRoot(url); nav != nil {
		return nav, nil, nil
	}

	if g.snapshots != nil {
		if snap, ok := g.snapshots.Get(url); ok {
			nav := navigator.FromSnapshot(url, snap)
			g.stack.registerRoot(url, nav)
			return nav, nil, nil
		}
	}

	sd, err := g.resolver.FetchStructureDefinition(ctx, url)
	if err != nil {
		return nil, nil, err
	}

	var snap []service.ElementDefinition
	if sd.HasSnapshot() {
		snap = sd.Snapshot
	} else {
		snap, err = g.buildSnapshot(ctx, sd)
		if err != nil {
			return nil, nil, err
		}
	}

	nav := g.stack.resolveRoot(url)
	if nav == nil {
		nav = navigator.FromSnapshot(url, snap)
		selfStamp(nav)
		g.stack.registerRoot(url, nav)
	}
	if g.snapshots != nil {
		g.snapshots.Set(url, snap)
	}
	return nav, sd, nil
}

// finalize stamps provenance on elements introduced by the differential
// and derives ids for elements that lack one. Ids are built segment by
// segment from the parent's id, with slice names attached as ":name", so
// an element under a slice inherits the sliced segment: telecom:phone.use.
func (g *Generator) finalize(work *navigator.Navigator, defn *service.StructureDefinition) {
	type frame struct {
		path string
		id   string
	}
	var stack []frame

	for _, e := range work.Elements() {
		if e.Base == nil {
			element.StampBase(e, defn.URL, e)
		}

		parent := ""
		if idx := strings.LastIndex(e.Path, "."); idx >= 0 {
			parent = e.Path[:idx]
		}
		for len(stack) > 0 && stack[len(stack)-1].path != parent {
			stack = stack[:len(stack)-1]
		}

		if e.ID == "" {
			parentID := ""
			if len(stack) > 0 {
				parentID = stack[len(stack)-1].id
			}
			e.ID = pool.ElementID(parentID, e.PathName(), e.SliceName)
		}
		stack = append(stack, frame{path: e.Path, id: e.ID})
	}
}

// selfStamp fills missing base provenance on a loaded snapshot: elements
// without a recorded origin are their own origin.
func selfStamp(nav *navigator.Navigator) {
	for _, e := range nav.Elements() {
		if e.Base == nil {
			element.StampBase(e, nav.URL, e)
		}
	}
}

// cloneNav deep-clones a navigator's element sequence into a fresh
// mutable navigator.
func cloneNav(src *navigator.Navigator) *navigator.Navigator {
	elems := src.Elements()
	clones := make([]*service.ElementDefinition, len(elems))
	for i, e := range elems {
		clones[i] = element.Clone(e)
	}
	nav := navigator.New(clones)
	nav.URL = src.URL
	return nav
}

// flatten copies a navigator's sequence into a value slice suitable for
// storing on a StructureDefinition.
func flatten(nav *navigator.Navigator) []service.ElementDefinition {
	elems := nav.Elements()
	out := make([]service.ElementDefinition, len(elems))
	for i, e := range elems {
		out[i] = *element.Clone(e)
	}
	return out
}
