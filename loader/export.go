package loader

import (
	"github.com/gofhir/fhir/r4"
	"github.com/gofhir/snapshot/service"
)

// ExportStructureDefinition converts an internal definition back to the
// r4 model, carrying the generated snapshot. The polymorphic fixed[x]
// and pattern[x] values round-trip for primitive types; complex values
// extracted as maps are not reattached.
func (c *R4Converter) ExportStructureDefinition(sd *service.StructureDefinition) *r4.StructureDefinition {
	if sd == nil {
		return nil
	}

	out := &r4.StructureDefinition{
		Url:            strPtr(sd.URL),
		Name:           strPtr(sd.Name),
		Type:           strPtr(sd.Type),
		BaseDefinition: strPtr(sd.BaseDefinition),
	}
	if sd.Abstract {
		out.Abstract = boolPtr(true)
	}
	if sd.Kind != "" {
		kind := r4.StructureDefinitionKind(sd.Kind)
		out.Kind = &kind
	}
	if sd.Derivation != "" {
		derivation := r4.TypeDerivationRule(sd.Derivation)
		out.Derivation = &derivation
	}
	if sd.FHIRVersion != "" {
		version := r4.FHIRVersion(sd.FHIRVersion)
		out.FhirVersion = &version
	}

	if len(sd.Differential) > 0 {
		out.Differential = &r4.StructureDefinitionDifferential{
			Element: c.exportElementDefinitions(sd.Differential),
		}
	}
	if len(sd.Snapshot) > 0 {
		out.Snapshot = &r4.StructureDefinitionSnapshot{
			Element: c.exportElementDefinitions(sd.Snapshot),
		}
	}

	return out
}

func (c *R4Converter) exportElementDefinitions(elements []service.ElementDefinition) []r4.ElementDefinition {
	result := make([]r4.ElementDefinition, 0, len(elements))
	for i := range elements {
		result = append(result, c.exportElementDefinition(&elements[i]))
	}
	return result
}

func (c *R4Converter) exportElementDefinition(e *service.ElementDefinition) r4.ElementDefinition {
	out := r4.ElementDefinition{
		Id:                 strPtr(e.ID),
		Path:               strPtr(e.Path),
		SliceName:          strPtr(e.SliceName),
		ContentReference:   strPtr(e.ContentReference),
		Short:              copyString(e.Short),
		Definition:         copyString(e.Definition),
		Comment:            copyString(e.Comment),
		Requirements:       copyString(e.Requirements),
		Alias:              copyStrings(e.Alias),
		Min:                intToUint32(e.Min),
		Max:                copyString(e.Max),
		MeaningWhenMissing: copyString(e.MeaningWhenMissing),
		MaxLength:          copyInt(e.MaxLength),
		Condition:          copyStrings(e.Condition),
		MustSupport:        copyBool(e.MustSupport),
		IsModifier:         copyBool(e.IsModifier),
		IsModifierReason:   copyString(e.IsModifierReason),
		IsSummary:          copyBool(e.IsSummary),
	}

	if e.Base != nil {
		out.Base = &r4.ElementDefinitionBase{
			Path: strPtr(e.Base.Path),
			Min:  intToUint32(e.Base.Min),
			Max:  copyString(e.Base.Max),
		}
	}

	for i := range e.Types {
		t := &e.Types[i]
		out.Type = append(out.Type, r4.ElementDefinitionType{
			Code:          strPtr(t.Code),
			Profile:       copyStrings(t.Profile),
			TargetProfile: copyStrings(t.TargetProfile),
		})
	}

	if e.Slicing != nil {
		slicing := &r4.ElementDefinitionSlicing{
			Description: strPtr(e.Slicing.Description),
		}
		if e.Slicing.Ordered {
			slicing.Ordered = boolPtr(true)
		}
		if e.Slicing.Rules != "" {
			rules := r4.SlicingRules(e.Slicing.Rules)
			slicing.Rules = &rules
		}
		for _, d := range e.Slicing.Discriminator {
			disc := r4.ElementDefinitionSlicingDiscriminator{
				Path: strPtr(d.Path),
			}
			if d.Type != "" {
				dtype := r4.DiscriminatorType(d.Type)
				disc.Type = &dtype
			}
			slicing.Discriminator = append(slicing.Discriminator, disc)
		}
		out.Slicing = slicing
	}

	if e.Binding != nil {
		binding := &r4.ElementDefinitionBinding{
			ValueSet:    strPtr(e.Binding.ValueSet),
			Description: strPtr(e.Binding.Description),
		}
		if e.Binding.Strength != "" {
			strength := r4.BindingStrength(e.Binding.Strength)
			binding.Strength = &strength
		}
		out.Binding = binding
	}

	for _, con := range e.Constraints {
		out.Constraint = append(out.Constraint, c.exportConstraint(con))
	}
	for _, m := range e.Mapping {
		out.Mapping = append(out.Mapping, r4.ElementDefinitionMapping{
			Identity: strPtr(m.Identity),
			Language: strPtr(m.Language),
			Map:      strPtr(m.Map),
			Comment:  strPtr(m.Comment),
		})
	}

	attachFixed(&out, e.Fixed)
	attachPattern(&out, e.Pattern)
	return out
}

func (c *R4Converter) exportConstraint(con service.Constraint) r4.ElementDefinitionConstraint {
	out := r4.ElementDefinitionConstraint{
		Key:        strPtr(con.Key),
		Human:      strPtr(con.Human),
		Expression: strPtr(con.Expression),
		Xpath:      strPtr(con.XPath),
		Source:     strPtr(con.Source),
	}
	if con.Severity != "" {
		severity := r4.ConstraintSeverity(con.Severity)
		out.Severity = &severity
	}
	return out
}

func attachFixed(out *r4.ElementDefinition, v any) {
	switch val := v.(type) {
	case string:
		out.FixedString = &val
	case bool:
		out.FixedBoolean = &val
	case int:
		out.FixedInteger = &val
	case float64:
		out.FixedDecimal = &val
	}
}

func attachPattern(out *r4.ElementDefinition, v any) {
	switch val := v.(type) {
	case string:
		out.PatternString = &val
	case bool:
		out.PatternBoolean = &val
	case int:
		out.PatternInteger = &val
	case float64:
		out.PatternDecimal = &val
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}

func intToUint32(i *int) *uint32 {
	if i == nil {
		return nil
	}
	v := uint32(*i)
	return &v
}
