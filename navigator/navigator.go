// Package navigator implements a bookmarked cursor over the flattened,
// dotted-path-ordered element sequence of a StructureDefinition.
//
// The sequence is a pre-order tree serialization: a parent immediately
// precedes its first child and a node's descendants are contiguous. The
// navigator assumes and preserves that invariant across every mutation.
// Bookmarks are element identities, not raw offsets, so insertions made
// between capture and restore do not invalidate them.
package navigator

import (
	"errors"
	"strings"

	"github.com/gofhir/snapshot/element"
	"github.com/gofhir/snapshot/service"
)

// ErrStaleBookmark is returned when a bookmark no longer resolves to an
// element of the sequence. This indicates an engine bug, not bad input.
var ErrStaleBookmark = errors.New("navigator: bookmark no longer resolvable")

// Bookmark is an opaque, restorable handle to a navigator position.
// Equality is positional: two bookmarks are equal when they refer to the
// same element instance (or both to the document root).
type Bookmark struct {
	elem *service.ElementDefinition // nil marks the virtual document root
}

// IsRoot returns true if the bookmark refers to the virtual document root.
func (b Bookmark) IsRoot() bool {
	return b.elem == nil
}

// Navigator is a mutable cursor over an ordered ElementDefinition
// sequence. Position -1 is a virtual document root whose children are the
// sequence's top-level elements; this makes an empty sequence walkable.
type Navigator struct {
	// URL is the canonical URL of the definition the sequence belongs to.
	// Informational; used for provenance stamping by callers.
	URL string

	elems []*service.ElementDefinition
	pos   int

	// index maps element identity to its current position. Rebuilt lazily
	// after insertions.
	index map[*service.ElementDefinition]int
	dirty bool
}

// New creates a navigator over the given element sequence, positioned at
// the virtual document root. The navigator takes ownership of the slice.
func New(elems []*service.ElementDefinition) *Navigator {
	return &Navigator{
		elems: elems,
		pos:   -1,
		dirty: true,
	}
}

// FromSnapshot deep-clones a snapshot sequence into a new navigator, so
// mutations never touch the source definition.
func FromSnapshot(url string, snapshot []service.ElementDefinition) *Navigator {
	nav := New(element.CloneAll(snapshot))
	nav.URL = url
	return nav
}

// Fork returns an independent cursor over the same element sequence.
// Forks share element instances with the parent; they are meant for
// read-only scans and become stale once either navigator mutates the
// sequence.
func (n *Navigator) Fork() *Navigator {
	return &Navigator{
		URL:   n.URL,
		elems: n.elems,
		pos:   n.pos,
		dirty: true,
	}
}

// Current returns the element at the cursor, or nil at the document root.
func (n *Navigator) Current() *service.ElementDefinition {
	if n.pos < 0 || n.pos >= len(n.elems) {
		return nil
	}
	return n.elems[n.pos]
}

// Path returns the current element's path, or "" at the document root.
func (n *Navigator) Path() string {
	if e := n.Current(); e != nil {
		return e.Path
	}
	return ""
}

// PathName returns the leaf segment of the current path.
func (n *Navigator) PathName() string {
	if e := n.Current(); e != nil {
		return e.PathName()
	}
	return ""
}

// Count returns the number of elements in the sequence.
func (n *Navigator) Count() int {
	return len(n.elems)
}

// Elements returns the underlying ordered sequence. Callers must not
// reorder it.
func (n *Navigator) Elements() []*service.ElementDefinition {
	return n.elems
}

// AtRoot returns true if the cursor is at the virtual document root.
func (n *Navigator) AtRoot() bool {
	return n.pos < 0
}

// MoveToRoot positions the cursor at the virtual document root.
func (n *Navigator) MoveToRoot() {
	n.pos = -1
}

// Bookmark captures the current position.
func (n *Navigator) Bookmark() Bookmark {
	return Bookmark{elem: n.Current()}
}

// ReturnToBookmark restores a previously captured position. Insertions
// made since the capture are tolerated; the cursor lands on the same
// element instance.
func (n *Navigator) ReturnToBookmark(b Bookmark) error {
	if b.elem == nil {
		n.pos = -1
		return nil
	}
	idx, ok := n.indexOf(b.elem)
	if !ok {
		return ErrStaleBookmark
	}
	n.pos = idx
	return nil
}

// HasChildren returns true if the element immediately following the
// current one is its strict descendant.
func (n *Navigator) HasChildren() bool {
	if n.AtRoot() {
		return len(n.elems) > 0
	}
	next := n.pos + 1
	return next < len(n.elems) && isDescendant(n.elems[n.pos].Path, n.elems[next].Path)
}

// MoveToFirstChild moves to the current element's first child. The cursor
// is unchanged if there are no children.
func (n *Navigator) MoveToFirstChild() bool {
	if !n.HasChildren() {
		return false
	}
	n.pos++
	return true
}

// MoveToNext moves to the next sibling of the current element, skipping
// the current subtree. The cursor is unchanged if no sibling follows.
func (n *Navigator) MoveToNext() bool {
	if n.AtRoot() {
		return false
	}
	next := n.subtreeEnd(n.pos)
	if next >= len(n.elems) {
		return false
	}
	if parentPath(n.elems[next].Path) != parentPath(n.elems[n.pos].Path) {
		return false
	}
	n.pos = next
	return true
}

// MoveToNextName advances among following siblings until one whose leaf
// path-name equals name is found. The cursor is unchanged on failure.
func (n *Navigator) MoveToNextName(name string) bool {
	mark := n.pos
	for n.MoveToNext() {
		if n.elems[n.pos].PathName() == name {
			return true
		}
	}
	n.pos = mark
	return false
}

// MoveToParent moves to the current element's parent, or to the document
// root for a top-level element.
func (n *Navigator) MoveToParent() bool {
	if n.AtRoot() {
		return false
	}
	parent := parentPath(n.elems[n.pos].Path)
	if parent == "" {
		n.pos = -1
		return true
	}
	for i := n.pos - 1; i >= 0; i-- {
		if n.elems[i].Path == parent {
			n.pos = i
			return true
		}
	}
	return false
}

// JumpToNameReference relocates the cursor to the element whose path or
// slice name equals name, scanning the whole sequence. The cursor is
// unchanged if no such element exists. The leading "#" of a FHIR content
// reference is accepted.
func (n *Navigator) JumpToNameReference(name string) bool {
	name = strings.TrimPrefix(name, "#")
	for i, e := range n.elems {
		if e.Path == name || (e.SliceName != "" && e.SliceName == name) {
			n.pos = i
			return true
		}
	}
	return false
}

// AppendChild inserts an element as the last child of the current node.
// The element's path must already be a child path of the current node.
func (n *Navigator) AppendChild(e *service.ElementDefinition) Bookmark {
	at := len(n.elems)
	if !n.AtRoot() {
		at = n.subtreeEnd(n.pos)
	}
	n.insertAt(at, e)
	return Bookmark{elem: e}
}

// DuplicateAfter deep-clones the subtree rooted at src and inserts it
// immediately after the whole subtree at after. It returns a bookmark of
// the clone's root.
func (n *Navigator) DuplicateAfter(src, after Bookmark) (Bookmark, error) {
	if src.IsRoot() {
		return Bookmark{}, ErrStaleBookmark
	}
	srcIdx, ok := n.indexOf(src.elem)
	if !ok {
		return Bookmark{}, ErrStaleBookmark
	}
	at := len(n.elems)
	if !after.IsRoot() {
		afterIdx, ok := n.indexOf(after.elem)
		if !ok {
			return Bookmark{}, ErrStaleBookmark
		}
		at = n.subtreeEnd(afterIdx)
	}

	end := n.subtreeEnd(srcIdx)
	clones := make([]*service.ElementDefinition, 0, end-srcIdx)
	for i := srcIdx; i < end; i++ {
		clones = append(clones, element.Clone(n.elems[i]))
	}

	n.insertAt(at, clones...)
	return Bookmark{elem: clones[0]}, nil
}

// CopyChildren deep-clones the children of from's current element under
// this navigator's current element, re-homing each clone's path onto the
// destination path. The destination must not already have children. It
// returns the inserted clones in order.
func (n *Navigator) CopyChildren(from *Navigator) []*service.ElementDefinition {
	if n.AtRoot() || n.HasChildren() {
		return nil
	}

	srcIdx := from.pos
	if srcIdx < 0 {
		return nil
	}
	srcBase := from.elems[srcIdx].Path
	dstBase := n.elems[n.pos].Path

	end := from.subtreeEnd(srcIdx)
	clones := make([]*service.ElementDefinition, 0, end-srcIdx-1)
	for i := srcIdx + 1; i < end; i++ {
		clone := element.Clone(from.elems[i])
		element.Rebase(clone, srcBase, dstBase)
		clones = append(clones, clone)
	}

	n.insertAt(n.pos+1, clones...)
	return clones
}

// Descendants returns the elements of the current subtree, excluding the
// current element itself, in document order. At the document root it
// returns the whole sequence.
func (n *Navigator) Descendants() []*service.ElementDefinition {
	if n.AtRoot() {
		return n.elems
	}
	return n.elems[n.pos+1 : n.subtreeEnd(n.pos)]
}

// subtreeEnd returns the index one past the last descendant of the
// element at i.
func (n *Navigator) subtreeEnd(i int) int {
	root := n.elems[i].Path
	j := i + 1
	for j < len(n.elems) && isDescendant(root, n.elems[j].Path) {
		j++
	}
	return j
}

// insertAt splices elements into the sequence, preserving the cursor's
// element.
func (n *Navigator) insertAt(at int, elems ...*service.ElementDefinition) {
	if len(elems) == 0 {
		return
	}
	cur := n.Current()

	n.elems = append(n.elems, make([]*service.ElementDefinition, len(elems))...)
	copy(n.elems[at+len(elems):], n.elems[at:len(n.elems)-len(elems)])
	copy(n.elems[at:], elems)
	n.dirty = true

	if cur != nil {
		if idx, ok := n.indexOf(cur); ok {
			n.pos = idx
		}
	}
}

// indexOf resolves an element identity to its current position.
func (n *Navigator) indexOf(e *service.ElementDefinition) (int, bool) {
	if e == nil {
		return -1, true
	}
	if n.dirty {
		n.index = make(map[*service.ElementDefinition]int, len(n.elems))
		for i, el := range n.elems {
			n.index[el] = i
		}
		n.dirty = false
	}
	idx, ok := n.index[e]
	return idx, ok
}

func parentPath(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return path[:idx]
	}
	return ""
}

func isDescendant(ancestor, path string) bool {
	return strings.HasPrefix(path, ancestor+".")
}
