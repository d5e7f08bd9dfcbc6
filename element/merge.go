package element

import (
	"strings"

	"github.com/gofhir/snapshot/service"
)

// Merger is the default ElementMerger. For every constraint field
// explicitly set on the source element it overwrites the same field on the
// target; unset fields keep their inherited values. Path, slice name,
// slicing and base provenance are structural and handled by the merge
// engine, not here.
type Merger struct{}

// NewMerger creates the default field merger.
func NewMerger() *Merger {
	return &Merger{}
}

// ApplyOverrides implements service.ElementMerger.
func (m *Merger) ApplyOverrides(target, source *service.ElementDefinition) {
	if target == nil || source == nil {
		return
	}

	if source.ID != "" {
		target.ID = source.ID
	}
	if source.Short != nil {
		target.Short = cloneString(source.Short)
	}
	if source.Definition != nil {
		target.Definition = cloneString(source.Definition)
	}
	if source.Comment != nil {
		target.Comment = cloneString(source.Comment)
	}
	if source.Requirements != nil {
		target.Requirements = cloneString(source.Requirements)
	}
	if source.Alias != nil {
		target.Alias = mergeStrings(target.Alias, source.Alias)
	}
	if source.Min != nil {
		target.Min = cloneInt(source.Min)
	}
	if source.Max != nil {
		target.Max = cloneString(source.Max)
	}
	if source.Types != nil {
		target.Types = cloneTypes(source.Types)
	}
	if source.DefaultValue != nil {
		target.DefaultValue = source.DefaultValue
	}
	if source.MeaningWhenMissing != nil {
		target.MeaningWhenMissing = cloneString(source.MeaningWhenMissing)
	}
	if source.Fixed != nil {
		target.Fixed = source.Fixed
	}
	if source.Pattern != nil {
		target.Pattern = source.Pattern
	}
	if source.Example != nil {
		target.Example = cloneExamples(source.Example)
	}
	if source.MinValue != nil {
		target.MinValue = source.MinValue
	}
	if source.MaxValue != nil {
		target.MaxValue = source.MaxValue
	}
	if source.MaxLength != nil {
		target.MaxLength = cloneInt(source.MaxLength)
	}
	if source.Condition != nil {
		target.Condition = mergeStrings(target.Condition, source.Condition)
	}
	if source.Constraints != nil {
		target.Constraints = mergeConstraints(target.Constraints, source.Constraints)
	}
	if source.MustSupport != nil {
		target.MustSupport = cloneBool(source.MustSupport)
	}
	if source.IsModifier != nil {
		target.IsModifier = cloneBool(source.IsModifier)
	}
	if source.IsModifierReason != nil {
		target.IsModifierReason = cloneString(source.IsModifierReason)
	}
	if source.IsSummary != nil {
		target.IsSummary = cloneBool(source.IsSummary)
	}
	if source.Binding != nil {
		target.Binding = cloneBinding(source.Binding)
	}
	if source.Mapping != nil {
		target.Mapping = mergeMappings(target.Mapping, source.Mapping)
	}
	if source.ContentReference != "" {
		target.ContentReference = source.ContentReference
	}
}

// mergeStrings unions source into target, preserving target order.
func mergeStrings(target, source []string) []string {
	out := cloneStrings(target)
	for _, s := range source {
		found := false
		for _, t := range out {
			if t == s {
				found = true
				break
			}
		}
		if !found {
			out = append(out, s)
		}
	}
	return out
}

// mergeConstraints unions constraints by key; a source constraint with a
// key already on the target replaces it.
func mergeConstraints(target, source []service.Constraint) []service.Constraint {
	out := cloneConstraints(target)
	for _, s := range source {
		replaced := false
		for i, t := range out {
			if t.Key != "" && t.Key == s.Key {
				out[i] = s
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, s)
		}
	}
	return out
}

// mergeMappings unions mappings by identity+map pair.
func mergeMappings(target, source []service.Mapping) []service.Mapping {
	out := cloneMappings(target)
	for _, s := range source {
		found := false
		for _, t := range out {
			if t.Identity == s.Identity && t.Map == s.Map {
				found = true
				break
			}
		}
		if !found {
			out = append(out, s)
		}
	}
	return out
}

// Rebase rewrites the element's path from one prefix to another. The
// element is unchanged if its path is outside the old prefix.
func Rebase(e *service.ElementDefinition, oldPrefix, newPrefix string) {
	switch {
	case e.Path == oldPrefix:
		e.Path = newPrefix
	case strings.HasPrefix(e.Path, oldPrefix+"."):
		e.Path = newPrefix + e.Path[len(oldPrefix):]
	}
}

// StampBase regenerates the element's base provenance from the element it
// was derived from. Existing provenance on the origin element wins over
// the origin's own position, so a chain of derivations keeps pointing at
// the original defining element.
func StampBase(e *service.ElementDefinition, originProfile string, origin *service.ElementDefinition) {
	if origin == nil {
		e.Base = nil
		return
	}

	base := &service.BaseComponent{
		Profile: originProfile,
		Path:    origin.Path,
		Min:     cloneInt(origin.Min),
		Max:     cloneString(origin.Max),
	}
	if origin.Base != nil {
		if origin.Base.Profile != "" {
			base.Profile = origin.Base.Profile
		}
		if origin.Base.Path != "" {
			base.Path = origin.Base.Path
		}
		if origin.Base.Min != nil {
			base.Min = cloneInt(origin.Base.Min)
		}
		if origin.Base.Max != nil {
			base.Max = cloneString(origin.Base.Max)
		}
	}
	e.Base = base
}
