package generator

import (
	"strings"

	"github.com/gofhir/snapshot/navigator"
	"github.com/gofhir/snapshot/service"
)

// matchAction classifies how a differential child relates to the base
// children of the corresponding parent.
type matchAction int

const (
	// actionMerge merges the differential child onto its base counterpart.
	actionMerge matchAction = iota
	// actionSlice starts a new slice group on an unsliced base element.
	actionSlice
	// actionAdd adds a member to an existing slice group.
	actionAdd
	// actionNew creates an element with no base counterpart.
	actionNew
	// actionInvalid rejects the differential child; no structural change.
	actionInvalid
)

// String returns the action name.
func (a matchAction) String() string {
	switch a {
	case actionMerge:
		return "merge"
	case actionSlice:
		return "slice"
	case actionAdd:
		return "add"
	case actionNew:
		return "new"
	case actionInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// matchResult pairs one differential child with its base counterpart.
// base is the document root bookmark for actionNew.
type matchResult struct {
	base       navigator.Bookmark
	diff       navigator.Bookmark
	action     matchAction
	diagnostic string
}

type child struct {
	bm   navigator.Bookmark
	elem *service.ElementDefinition
}

// matchChildren computes the correspondence between the base children and
// the differential children of two cursors positioned at corresponding
// parent nodes. Results are returned in differential order; the matcher
// never reorders, it only classifies. Both cursors are restored before
// returning.
func matchChildren(snap, diff *navigator.Navigator) []matchResult {
	snapMark := snap.Bookmark()
	diffMark := diff.Bookmark()
	defer func() {
		snap.ReturnToBookmark(snapMark)
		diff.ReturnToBookmark(diffMark)
	}()

	var baseChildren []child
	if snap.MoveToFirstChild() {
		for {
			baseChildren = append(baseChildren, child{bm: snap.Bookmark(), elem: snap.Current()})
			if !snap.MoveToNext() {
				break
			}
		}
	}

	var diffChildren []child
	if diff.MoveToFirstChild() {
		for {
			diffChildren = append(diffChildren, child{bm: diff.Bookmark(), elem: diff.Current()})
			if !diff.MoveToNext() {
				break
			}
		}
	}

	// findBase returns the first base child whose path-name corresponds to
	// the differential name, and optionally a member with an exact slice
	// name.
	findBase := func(diffName, sliceName string) (group *child, member *child) {
		for i := range baseChildren {
			bc := &baseChildren[i]
			if !nameMatches(bc.elem.PathName(), diffName) {
				continue
			}
			if group == nil {
				group = bc
			}
			if sliceName != "" && bc.elem.SliceName == sliceName {
				member = bc
				return
			}
		}
		return
	}

	sliceStarted := make(map[string]bool)
	renamedTo := make(map[*service.ElementDefinition]string)
	results := make([]matchResult, 0, len(diffChildren))

	for i := range diffChildren {
		dc := &diffChildren[i]
		name := dc.elem.PathName()
		group, member := findBase(name, dc.elem.SliceName)

		switch {
		case group == nil:
			// No base counterpart at all.
			results = append(results, matchResult{diff: dc.bm, action: actionNew})

		case dc.elem.SliceName == "" && dc.elem.Slicing == nil:
			// Plain constraint on the group element (or slicing entry).
			// A choice element can only be renamed once; further renames
			// of the same base element become standalone elements.
			if name != group.elem.PathName() {
				if prev, ok := renamedTo[group.elem]; ok && prev != name {
					results = append(results, matchResult{diff: dc.bm, action: actionNew})
					continue
				}
				renamedTo[group.elem] = name
			}
			results = append(results, matchResult{base: group.bm, diff: dc.bm, action: actionMerge})

		case !sliceable(group.elem):
			results = append(results, matchResult{
				base:       group.bm,
				diff:       dc.bm,
				action:     actionInvalid,
				diagnostic: "element " + dc.elem.Path + " is not sliceable",
			})

		case dc.elem.SliceName == "":
			// Slicing entry for the group: merged onto the group element,
			// which becomes the slicing root.
			sliceStarted[name] = true
			results = append(results, matchResult{base: group.bm, diff: dc.bm, action: actionMerge})

		case member != nil:
			// Constrains an existing named slice of the base.
			results = append(results, matchResult{base: member.bm, diff: dc.bm, action: actionMerge})

		case dc.elem.SliceBase() != "":
			// Re-slice of an existing slice; always appended to its group.
			results = append(results, matchResult{base: group.bm, diff: dc.bm, action: actionAdd})

		case !sliceStarted[name] && !baseIsSliced(baseChildren, group, name):
			// First named slice on an unsliced base element.
			sliceStarted[name] = true
			results = append(results, matchResult{base: group.bm, diff: dc.bm, action: actionSlice})

		default:
			results = append(results, matchResult{base: group.bm, diff: dc.bm, action: actionAdd})
		}
	}

	return results
}

// baseIsSliced reports whether the base group already forms a slice
// group: its first element carries a slicing block or named members
// follow it.
func baseIsSliced(children []child, group *child, name string) bool {
	if group.elem.Slicing != nil {
		return true
	}
	for i := range children {
		if children[i].elem != group.elem &&
			nameMatches(children[i].elem.PathName(), name) &&
			children[i].elem.SliceName != "" {
			return true
		}
	}
	return false
}

// sliceable reports whether an element may be sliced: it repeats, is a
// choice element, or is an extension container.
func sliceable(e *service.ElementDefinition) bool {
	if e.IsChoice() || e.IsExtension() {
		return true
	}
	if e.IsRepeating() {
		return true
	}
	if e.Base != nil && e.Base.Max != nil {
		return *e.Base.Max != "0" && *e.Base.Max != "1"
	}
	return false
}

// nameMatches reports whether a differential child name corresponds to a
// base child name. Besides exact equality, a differential may narrow a
// choice element by renaming it: base "value[x]" matches "value[x]",
// "valueQuantity", "valueString", and so on.
func nameMatches(baseName, diffName string) bool {
	if baseName == diffName {
		return true
	}
	if !strings.HasSuffix(baseName, "[x]") {
		return false
	}
	prefix := strings.TrimSuffix(baseName, "[x]")
	if !strings.HasPrefix(diffName, prefix) || len(diffName) == len(prefix) {
		return false
	}
	// The type suffix starts with an upper-case letter: valueQuantity.
	suffix := diffName[len(prefix):]
	return suffix[0] >= 'A' && suffix[0] <= 'Z'
}
