package generator

import (
	"fmt"
	"strings"

	"github.com/gofhir/snapshot/navigator"
)

// CycleError reports a cyclic profile reference: a canonical URL was
// expanded again while its own expansion was still in progress.
type CycleError struct {
	// URL is the canonical URL that closed the cycle.
	URL string
	// Chain is the stack of in-progress expansions, outermost first.
	Chain []string
}

// Error returns the error string, naming the cycle.
func (e *CycleError) Error() string {
	return fmt.Sprintf("cyclic profile reference: %s (expansion chain: %s)",
		e.URL, strings.Join(e.Chain, " -> "))
}

// stackEntry records one in-progress expansion.
type stackEntry struct {
	url  string
	path string
}

// expansionStack tracks the chain of in-progress snapshot expansions and
// memoizes the root navigator of every profile resolved during the run.
// The memoization gives identity-stable root elements: a second reference
// to the same URL within one run sees the same element instances, so
// observer hooks comparing by identity get consistent values.
//
// All state is run-scoped and reset at the start of each top-level call.
type expansionStack struct {
	entries []stackEntry
	roots   map[string]*navigator.Navigator
}

func newExpansionStack() *expansionStack {
	return &expansionStack{
		roots: make(map[string]*navigator.Navigator),
	}
}

// reset clears the stack and the root cache for a new run.
func (s *expansionStack) reset() {
	s.entries = s.entries[:0]
	s.roots = make(map[string]*navigator.Navigator)
}

// depth returns the number of in-progress expansions.
func (s *expansionStack) depth() int {
	return len(s.entries)
}

// push registers an expansion as in progress. If the URL is already on the
// stack the reference graph is cyclic and a CycleError naming the chain is
// returned; the stack is unchanged in that case.
//
// The degenerate self-referential terminal case (an element whose type is
// the profile being expanded, but with no children to expand, like
// Extension.extension) never reaches push: terminal elements are not
// expanded.
func (s *expansionStack) push(url, path string) error {
	for _, e := range s.entries {
		if e.url == url {
			chain := make([]string, 0, len(s.entries)+1)
			for _, entry := range s.entries {
				chain = append(chain, entry.url)
			}
			chain = append(chain, url)
			return &CycleError{URL: url, Chain: chain}
		}
	}
	s.entries = append(s.entries, stackEntry{url: url, path: path})
	return nil
}

// pop unregisters the most recent expansion.
func (s *expansionStack) pop() {
	if len(s.entries) > 0 {
		s.entries = s.entries[:len(s.entries)-1]
	}
}

// registerRoot memoizes the navigator holding a profile's expanded
// element sequence.
func (s *expansionStack) registerRoot(url string, nav *navigator.Navigator) {
	s.roots[url] = nav
}

// resolveRoot returns the memoized navigator for a URL, or nil.
func (s *expansionStack) resolveRoot(url string) *navigator.Navigator {
	return s.roots[url]
}
