package generator

import (
	"context"
	"errors"
	"strings"

	fhirsnapshot "github.com/gofhir/snapshot"
	"github.com/gofhir/snapshot/element"
	"github.com/gofhir/snapshot/navigator"
	"github.com/gofhir/snapshot/service"
)

// mergeChildren merges every differential child of diff's current node
// into the corresponding children of snap's current node. Both cursors
// are restored before returning. Recoverable problems are recorded on the
// outcome; the merge continues with the remaining children.
func (g *Generator) mergeChildren(ctx context.Context, snap, diff *navigator.Navigator) {
	parentMark := snap.Bookmark()
	diffMark := diff.Bookmark()
	defer func() {
		snap.ReturnToBookmark(parentMark)
		diff.ReturnToBookmark(diffMark)
	}()

	for _, r := range matchChildren(snap, diff) {
		if err := diff.ReturnToBookmark(r.diff); err != nil {
			continue
		}

		switch r.action {
		case actionMerge:
			if snap.ReturnToBookmark(r.base) != nil {
				continue
			}
			g.mergeElement(ctx, snap, diff)

		case actionSlice:
			if snap.ReturnToBookmark(r.base) != nil {
				continue
			}
			g.startSlice(ctx, snap, diff)

		case actionAdd:
			if snap.ReturnToBookmark(r.base) != nil {
				continue
			}
			g.addSliceMember(ctx, snap, diff)

		case actionNew:
			if snap.ReturnToBookmark(parentMark) != nil {
				continue
			}
			g.createNewElement(ctx, snap, diff)

		case actionInvalid:
			g.record(fhirsnapshot.Error(fhirsnapshot.IssueTypeInvalid).
				Diagnostics("%s", r.diagnostic).
				At(diff.Path()).
				Profile(g.outcome.Profile).
				Build())
		}
	}
}

// mergeElement merges the differential element at diff's cursor onto the
// snapshot element at snap's cursor, then expands and recurses into
// children as needed.
func (g *Generator) mergeElement(ctx context.Context, snap, diff *navigator.Navigator) {
	target := snap.Current()
	src := diff.Current()
	if target == nil || src == nil {
		return
	}

	if target.IsChoice() && !src.IsChoice() && src.SliceName == "" {
		g.renameChoice(target, src)
	}

	if !isPlaceholder(src) {
		g.applyTypeProfile(ctx, target, src)
		g.merger.ApplyOverrides(target, src)
		if src.Slicing != nil {
			target.Slicing = element.CloneSlicing(src.Slicing)
		}
		target.ConstrainedByDiff = true
		g.observer.OnConstraint(target)
		g.checkConstraints(src)
	}

	hasDiffChildren := diff.HasChildren()
	if g.observer.OnBeforeExpand(target, hasDiffChildren) && !snap.HasChildren() {
		g.expandElement(ctx, snap)
	}

	if !hasDiffChildren {
		return
	}
	if !snap.HasChildren() {
		g.record(fhirsnapshot.Error(fhirsnapshot.IssueTypeIncomplete).
			Diagnostics("children of %s could not be expanded; constraints on its descendants were skipped", target.Path).
			At(target.Path).
			Profile(g.outcome.Profile).
			Build())
		return
	}
	g.mergeChildren(ctx, snap, diff)
}

// renameChoice narrows a choice element to the single type the
// differential names: "value[x]" constrained as "valueQuantity" becomes
// an element at path valueQuantity typed Quantity.
func (g *Generator) renameChoice(target, src *service.ElementDefinition) {
	baseLeaf := target.PathName()
	diffLeaf := src.PathName()
	typeName := diffLeaf[len(baseLeaf)-len("[x]"):]

	target.Path = src.Path
	target.ID = ""

	// The differential may restate the type explicitly; otherwise narrow
	// the inherited set to the named one.
	if src.Types != nil {
		return
	}
	kept := make([]service.TypeRef, 0, 1)
	for _, t := range target.Types {
		if capitalize(t.Code) == typeName {
			kept = append(kept, t)
		}
	}
	if len(kept) > 0 {
		target.Types = kept
	}
}

// applyTypeProfile folds the root constraints of a differential type
// profile into the target before the differential's own overrides.
// The target's structural identity and cardinality survive the fold.
func (g *Generator) applyTypeProfile(ctx context.Context, target, src *service.ElementDefinition) {
	if len(src.Types) != 1 {
		return
	}
	url := src.Types[0].ProfileURL()
	if url == "" {
		return
	}

	nav, _, err := g.snapshotFor(ctx, url)
	if err != nil {
		g.record(fhirsnapshot.Warning(fhirsnapshot.IssueTypeNotFound).
			Diagnostics("type profile %s on %s could not be resolved: %v", url, src.Path, err).
			At(src.Path).
			Profile(g.outcome.Profile).
			Build())
		return
	}
	if len(nav.Elements()) == 0 {
		return
	}
	root := nav.Elements()[0]

	id, min, max, types := target.ID, target.Min, target.Max, target.Types
	g.merger.ApplyOverrides(target, root)
	target.ID, target.Min, target.Max, target.Types = id, min, max, types
}

// expandElement materializes the children of snap's current element from
// its content reference or its single type's snapshot. A no-op when
// children are already present. Returns false if the element remains
// childless; the reason is recorded on the outcome.
func (g *Generator) expandElement(ctx context.Context, snap *navigator.Navigator) bool {
	e := snap.Current()
	if e == nil {
		return false
	}
	if snap.HasChildren() {
		return true
	}

	if e.ContentReference != "" {
		return g.expandContentReference(snap, e)
	}

	if len(e.Types) == 0 {
		if !e.IsRoot() {
			g.record(fhirsnapshot.Error(fhirsnapshot.IssueTypeStructure).
				Diagnostics("element %s has no type and cannot be expanded", e.Path).
				At(e.Path).
				Profile(g.outcome.Profile).
				Build())
		}
		return false
	}

	codes := distinctTypeCodes(e.Types)
	if len(codes) > 1 {
		g.record(fhirsnapshot.Error(fhirsnapshot.IssueTypeStructure).
			Diagnostics("element %s has %d types; constrain it to a single type before constraining its children", e.Path, len(codes)).
			At(e.Path).
			Profile(g.outcome.Profile).
			Build())
		return false
	}

	url := e.Types[0].ProfileURL()
	if url == "" {
		url = service.CanonicalForType(codes[0])
	}

	typeNav, typeSD, err := g.snapshotFor(ctx, url)
	if err != nil {
		var cerr *CycleError
		if errors.As(err, &cerr) {
			g.record(fhirsnapshot.Error(fhirsnapshot.IssueTypeProcessing).
				Diagnostics("%s", cerr.Error()).
				At(e.Path).
				Profile(g.outcome.Profile).
				Build())
		} else {
			g.record(fhirsnapshot.Error(fhirsnapshot.IssueTypeNotFound).
				Diagnostics("type %s of %s could not be resolved: %v", url, e.Path, err).
				At(e.Path).
				Profile(g.outcome.Profile).
				Build())
		}
		return false
	}

	tn := typeNav.Fork()
	tn.MoveToRoot()
	if !tn.MoveToFirstChild() {
		return false
	}

	origins := tn.Descendants()
	clones := snap.CopyChildren(tn)
	for i, c := range clones {
		var origin *service.ElementDefinition
		if i < len(origins) {
			origin = origins[i]
		}
		g.observer.OnPrepareElement(c, typeSD, origin)
	}
	return len(clones) > 0
}

// expandContentReference copies the children of the referenced element
// under the current one. The referenced element lives in the same tree.
func (g *Generator) expandContentReference(snap *navigator.Navigator, e *service.ElementDefinition) bool {
	src := snap.Fork()
	if !src.JumpToNameReference(e.ContentReference) {
		g.record(fhirsnapshot.Error(fhirsnapshot.IssueTypeNotFound).
			Diagnostics("content reference %s on %s does not resolve", e.ContentReference, e.Path).
			At(e.Path).
			Profile(g.outcome.Profile).
			Build())
		return false
	}
	if src.Current() == e {
		// A terminal self-reference: there is nothing to copy.
		return false
	}
	clones := snap.CopyChildren(src)
	return len(clones) > 0
}

// startSlice begins a slice group on an unsliced element: the element
// becomes the group's slicing root and the differential child its first
// member. A missing slicing entry is tolerated only for extensions,
// which get the standard url discriminator; elsewhere the slice is
// invalid and the element stays unsliced.
func (g *Generator) startSlice(ctx context.Context, snap, diff *navigator.Navigator) {
	group := snap.Current()
	src := diff.Current()
	if group == nil || src == nil {
		return
	}

	if group.Slicing == nil {
		if !group.IsExtension() {
			g.record(fhirsnapshot.Error(fhirsnapshot.IssueTypeInvalid).
				Diagnostics("slice %s introduced without a slicing entry on %s", src.SliceName, group.Path).
				At(group.Path).
				Profile(g.outcome.Profile).
				Build())
			return
		}
		group.Slicing = &service.Slicing{
			Discriminator: []service.Discriminator{{Type: "value", Path: "url"}},
			Rules:         service.SlicingRulesOpen,
		}
		group.ConstrainedByDiff = true
	}

	g.addSliceMember(ctx, snap, diff)
}

// addSliceMember clones a slice group's template, inserts it at the end
// of its group, and merges the differential slice onto the clone. For a
// re-slice the template is the parent slice and the insertion point stays
// within the parent's lineage.
func (g *Generator) addSliceMember(ctx context.Context, snap, diff *navigator.Navigator) {
	group := snap.Bookmark()
	src := diff.Current()
	if src == nil {
		return
	}

	// Members after a rejected slice start land here via the add action;
	// without a slicing entry the group stays unsliced.
	if e := snap.Current(); e != nil && e.Slicing == nil {
		g.record(fhirsnapshot.Error(fhirsnapshot.IssueTypeInvalid).
			Diagnostics("slice %s introduced without a slicing entry on %s", src.SliceName, snap.Path()).
			At(snap.Path()).
			Profile(g.outcome.Profile).
			Build())
		return
	}

	tmpl, anchor := g.findSliceAnchor(snap, src)

	memberBm, err := snap.DuplicateAfter(tmpl, anchor)
	if err != nil {
		g.record(fhirsnapshot.Error(fhirsnapshot.IssueTypeProcessing).
			Diagnostics("slice %s of %s could not be inserted: %v", src.SliceName, snap.Path(), err).
			At(src.Path).
			Profile(g.outcome.Profile).
			Build())
		return
	}

	if snap.ReturnToBookmark(memberBm) != nil {
		return
	}
	m := snap.Current()
	m.Slicing = nil
	m.SliceName = src.SliceName
	m.ID = ""
	zero := 0
	m.Min = &zero
	m.ConstrainedByDiff = true
	for _, d := range snap.Descendants() {
		d.ID = ""
	}

	g.mergeElement(ctx, snap, diff)

	if m.IsExtension() {
		g.defaultExtensionURL(snap)
	}

	snap.ReturnToBookmark(group)
}

// findSliceAnchor picks the clone template and insertion anchor for a new
// slice member. snap must be positioned at the slicing root; the cursor
// is restored. A plain slice clones the root and lands after the group's
// last member. A re-slice clones its parent slice and lands after the
// last member of the parent's lineage; a re-slice whose parent has not
// appeared yet falls back to the group template with a warning.
func (g *Generator) findSliceAnchor(snap *navigator.Navigator, src *service.ElementDefinition) (tmpl, anchor navigator.Bookmark) {
	group := snap.Bookmark()
	defer snap.ReturnToBookmark(group)

	tmpl = group
	anchor = group
	lineage := src.SliceBase()
	groupPath := snap.Path()

	parentFound := false
	lastMember := navigator.Bookmark{}
	lastLineage := navigator.Bookmark{}

	for snap.MoveToNext() {
		if snap.Path() != groupPath {
			break
		}
		m := snap.Current()
		if m.SliceName == "" {
			continue
		}
		lastMember = snap.Bookmark()
		if lineage == "" {
			continue
		}
		if m.SliceName == lineage {
			tmpl = snap.Bookmark()
			parentFound = true
		}
		if m.SliceName == lineage || strings.HasPrefix(m.SliceName, lineage+"/") {
			lastLineage = snap.Bookmark()
		}
	}

	switch {
	case lineage == "":
		if !lastMember.IsRoot() {
			anchor = lastMember
		}
	case parentFound:
		anchor = lastLineage
	default:
		g.record(fhirsnapshot.Warning(fhirsnapshot.IssueTypeInvalid).
			Diagnostics("re-slice %s of %s appears before its parent slice %s; it inherits from the group instead", src.SliceName, groupPath, lineage).
			At(src.Path).
			Profile(g.outcome.Profile).
			Build())
		if !lastMember.IsRoot() {
			anchor = lastMember
		}
	}
	return tmpl, anchor
}

// createNewElement materializes a differential element that has no base
// counterpart, seeding it from its declared type's root when resolvable.
func (g *Generator) createNewElement(ctx context.Context, snap, diff *navigator.Navigator) {
	src := diff.Current()
	if src == nil {
		return
	}

	e := &service.ElementDefinition{Path: src.Path, SliceName: src.SliceName}

	if len(src.Types) == 1 {
		url := src.Types[0].ProfileURL()
		if url == "" {
			url = service.CanonicalForType(src.Types[0].Code)
		}
		if nav, _, err := g.snapshotFor(ctx, url); err == nil && len(nav.Elements()) > 0 {
			root := nav.Elements()[0]
			seed := element.Clone(root)
			element.Rebase(seed, root.Path, src.Path)
			seed.ID = ""
			seed.SliceName = src.SliceName
			seed.Slicing = nil
			seed.Base = nil
			seed.ConstrainedByDiff = false
			e = seed
		} else if err != nil {
			g.record(fhirsnapshot.Warning(fhirsnapshot.IssueTypeNotFound).
				Diagnostics("type %s of new element %s could not be resolved: %v", url, src.Path, err).
				At(src.Path).
				Profile(g.outcome.Profile).
				Build())
		}
	}

	if g.current != nil && g.current.IsConstraint() {
		g.record(fhirsnapshot.Warning(fhirsnapshot.IssueTypeStructure).
			Diagnostics("element %s is not defined by the base of %s", src.Path, g.current.URL).
			At(src.Path).
			Profile(g.outcome.Profile).
			Build())
	}

	bm := snap.AppendChild(e)
	if snap.ReturnToBookmark(bm) != nil {
		return
	}
	g.mergeElement(ctx, snap, diff)
}

// defaultExtensionURL fixes the url child of an extension slice to the
// slice's profile canonical, the way extension profiles pin their url.
func (g *Generator) defaultExtensionURL(snap *navigator.Navigator) {
	m := snap.Current()
	if m == nil || len(m.Types) != 1 {
		return
	}
	url := m.Types[0].ProfileURL()
	if url == "" {
		return
	}

	mark := snap.Bookmark()
	defer snap.ReturnToBookmark(mark)

	if !snap.MoveToFirstChild() {
		return
	}
	for {
		if snap.PathName() == "url" {
			if e := snap.Current(); e.Fixed == nil {
				e.Fixed = url
				e.ConstrainedByDiff = true
			}
			return
		}
		if !snap.MoveToNext() {
			return
		}
	}
}

// distinctTypeCodes returns the distinct type codes in declaration order.
func distinctTypeCodes(types []service.TypeRef) []string {
	out := make([]string, 0, len(types))
	seen := make(map[string]bool, len(types))
	for _, t := range types {
		if !seen[t.Code] {
			seen[t.Code] = true
			out = append(out, t.Code)
		}
	}
	return out
}

// capitalize upper-cases the first byte of an ASCII type code.
func capitalize(s string) string {
	if s == "" || (s[0] < 'a' || s[0] > 'z') {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
