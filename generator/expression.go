package generator

import (
	"github.com/gofhir/fhirpath"

	fhirsnapshot "github.com/gofhir/snapshot"
	"github.com/gofhir/snapshot/service"
)

// exprChecker compile-checks FHIRPath constraint expressions. Compilation
// results are memoized by expression text; profiles repeat the same
// invariants heavily.
type exprChecker struct {
	results map[string]error
}

func newExprChecker() *exprChecker {
	return &exprChecker{results: make(map[string]error)}
}

// check compiles the expression and returns the compilation error, if
// any. The expression is never evaluated.
func (c *exprChecker) check(expr string) error {
	if err, ok := c.results[expr]; ok {
		return err
	}
	_, err := fhirpath.Compile(expr)
	c.results[expr] = err
	return err
}

// checkConstraints compile-checks the constraint expressions a
// differential element introduces, recording failures as warnings.
func (g *Generator) checkConstraints(e *service.ElementDefinition) {
	if g.exprs == nil {
		return
	}
	for _, c := range e.Constraints {
		if c.Expression == "" {
			continue
		}
		if err := g.exprs.check(c.Expression); err != nil {
			g.record(fhirsnapshot.Warning(fhirsnapshot.IssueTypeInvariant).
				Diagnostics("constraint %s on %s does not compile: %v", c.Key, e.Path, err).
				At(e.Path).
				Profile(g.outcome.Profile).
				Build())
		}
	}
}
