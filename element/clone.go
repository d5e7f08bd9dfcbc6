// Package element provides the ElementDefinition primitives the merge
// engine builds on: deep cloning, the field-merge rules, and provenance
// rewriting.
package element

import "github.com/gofhir/snapshot/service"

// Clone returns an owned, unaliased deep copy of an ElementDefinition.
// Provenance is copied too; callers that insert the clone into a new tree
// must rewrite it with Rebase/StampBase rather than trust the source.
func Clone(e *service.ElementDefinition) *service.ElementDefinition {
	if e == nil {
		return nil
	}

	clone := *e
	clone.Base = cloneBase(e.Base)
	clone.Types = cloneTypes(e.Types)
	clone.Slicing = CloneSlicing(e.Slicing)
	clone.Binding = cloneBinding(e.Binding)
	clone.Alias = cloneStrings(e.Alias)
	clone.Condition = cloneStrings(e.Condition)
	clone.Constraints = cloneConstraints(e.Constraints)
	clone.Example = cloneExamples(e.Example)
	clone.Mapping = cloneMappings(e.Mapping)

	clone.Short = cloneString(e.Short)
	clone.Definition = cloneString(e.Definition)
	clone.Comment = cloneString(e.Comment)
	clone.Requirements = cloneString(e.Requirements)
	clone.MeaningWhenMissing = cloneString(e.MeaningWhenMissing)
	clone.IsModifierReason = cloneString(e.IsModifierReason)
	clone.Max = cloneString(e.Max)
	clone.Min = cloneInt(e.Min)
	clone.MaxLength = cloneInt(e.MaxLength)
	clone.MustSupport = cloneBool(e.MustSupport)
	clone.IsModifier = cloneBool(e.IsModifier)
	clone.IsSummary = cloneBool(e.IsSummary)

	return &clone
}

// CloneAll deep-copies a sequence of ElementDefinitions.
func CloneAll(elems []service.ElementDefinition) []*service.ElementDefinition {
	out := make([]*service.ElementDefinition, 0, len(elems))
	for i := range elems {
		out = append(out, Clone(&elems[i]))
	}
	return out
}

// CloneSlicing deep-copies a slicing block.
func CloneSlicing(s *service.Slicing) *service.Slicing {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Discriminator = make([]service.Discriminator, len(s.Discriminator))
	copy(clone.Discriminator, s.Discriminator)
	return &clone
}

func cloneBase(b *service.BaseComponent) *service.BaseComponent {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Min = cloneInt(b.Min)
	clone.Max = cloneString(b.Max)
	return &clone
}

func cloneTypes(types []service.TypeRef) []service.TypeRef {
	if types == nil {
		return nil
	}
	out := make([]service.TypeRef, len(types))
	for i, t := range types {
		out[i] = t
		out[i].Profile = cloneStrings(t.Profile)
		out[i].TargetProfile = cloneStrings(t.TargetProfile)
		out[i].Aggregation = cloneStrings(t.Aggregation)
	}
	return out
}

func cloneBinding(b *service.Binding) *service.Binding {
	if b == nil {
		return nil
	}
	clone := *b
	return &clone
}

func cloneConstraints(cs []service.Constraint) []service.Constraint {
	if cs == nil {
		return nil
	}
	out := make([]service.Constraint, len(cs))
	copy(out, cs)
	return out
}

func cloneExamples(ex []service.Example) []service.Example {
	if ex == nil {
		return nil
	}
	out := make([]service.Example, len(ex))
	copy(out, ex)
	return out
}

func cloneMappings(ms []service.Mapping) []service.Mapping {
	if ms == nil {
		return nil
	}
	out := make([]service.Mapping, len(ms))
	copy(out, ms)
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
