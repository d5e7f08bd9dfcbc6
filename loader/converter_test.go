package loader

import (
	"testing"

	"github.com/gofhir/fhir/r4"
	"github.com/gofhir/snapshot/service"
)

func strp(s string) *string { return &s }
func u32p(v uint32) *uint32 { return &v }

func TestConvertStructureDefinition_Basics(t *testing.T) {
	kind := r4.StructureDefinitionKind("resource")
	derivation := r4.TypeDerivationRule("constraint")
	abstract := false

	sd := &r4.StructureDefinition{
		Url:            strp("http://example.org/fhir/StructureDefinition/my-patient"),
		Name:           strp("MyPatient"),
		Type:           strp("Patient"),
		Kind:           &kind,
		Abstract:       &abstract,
		BaseDefinition: strp("http://hl7.org/fhir/StructureDefinition/Patient"),
		Derivation:     &derivation,
	}

	got := NewR4Converter().ConvertStructureDefinition(sd)
	if got == nil {
		t.Fatal("ConvertStructureDefinition returned nil")
	}
	if got.URL != "http://example.org/fhir/StructureDefinition/my-patient" {
		t.Errorf("URL = %q", got.URL)
	}
	if got.Type != "Patient" || got.Kind != "resource" {
		t.Errorf("Type/Kind = %q/%q", got.Type, got.Kind)
	}
	if !got.IsConstraint() {
		t.Error("IsConstraint() = false, want true")
	}
}

func TestConvertElementDefinition_PreservesUnsetFields(t *testing.T) {
	sd := &r4.StructureDefinition{
		Url: strp("http://example.org/p"),
		Differential: &r4.StructureDefinitionDifferential{
			Element: []r4.ElementDefinition{
				{
					Path: strp("Patient.name"),
					Max:  strp("1"),
					// Min deliberately unset.
				},
			},
		},
	}

	got := NewR4Converter().ConvertStructureDefinition(sd)
	if len(got.Differential) != 1 {
		t.Fatalf("len(Differential) = %d, want 1", len(got.Differential))
	}
	e := got.Differential[0]
	if e.Min != nil {
		t.Errorf("Min = %v, want nil for unset field", *e.Min)
	}
	if e.Max == nil || *e.Max != "1" {
		t.Errorf("Max = %v, want \"1\"", e.Max)
	}
	if e.Short != nil || e.MustSupport != nil {
		t.Error("unset optional fields must convert to nil")
	}
}

func TestConvertElementDefinition_FullElement(t *testing.T) {
	ordered := false
	dtype := r4.DiscriminatorType("value")
	rules := r4.SlicingRules("open")
	strength := r4.BindingStrength("required")
	severity := r4.ConstraintSeverity("error")
	ms := true

	sd := &r4.StructureDefinition{
		Url: strp("http://example.org/p"),
		Snapshot: &r4.StructureDefinitionSnapshot{
			Element: []r4.ElementDefinition{
				{
					Id:        strp("Patient.telecom"),
					Path:      strp("Patient.telecom"),
					SliceName: strp("phone"),
					Min:       u32p(1),
					Max:       strp("*"),
					Base: &r4.ElementDefinitionBase{
						Path: strp("Patient.telecom"),
						Min:  u32p(0),
						Max:  strp("*"),
					},
					ContentReference: strp("#Patient.contact"),
					Short:            strp("A contact detail"),
					MustSupport:      &ms,
					FixedString:      strp("fixed-value"),
					Slicing: &r4.ElementDefinitionSlicing{
						Discriminator: []r4.ElementDefinitionSlicingDiscriminator{
							{Type: &dtype, Path: strp("system")},
						},
						Ordered: &ordered,
						Rules:   &rules,
					},
					Binding: &r4.ElementDefinitionBinding{
						Strength: &strength,
						ValueSet: strp("http://hl7.org/fhir/ValueSet/contact-point-system"),
					},
					Constraint: []r4.ElementDefinitionConstraint{
						{
							Key:        strp("cpt-2"),
							Severity:   &severity,
							Human:      strp("A system is required if a value is provided"),
							Expression: strp("value.empty() or system.exists()"),
						},
					},
				},
			},
		},
	}

	got := NewR4Converter().ConvertStructureDefinition(sd)
	e := got.Snapshot[0]

	if e.SliceName != "phone" {
		t.Errorf("SliceName = %q", e.SliceName)
	}
	if e.Base == nil || e.Base.Path != "Patient.telecom" || *e.Base.Min != 0 {
		t.Errorf("Base = %+v", e.Base)
	}
	if e.ContentReference != "#Patient.contact" {
		t.Errorf("ContentReference = %q", e.ContentReference)
	}
	if e.Min == nil || *e.Min != 1 {
		t.Errorf("Min = %v", e.Min)
	}
	if e.Fixed != "fixed-value" {
		t.Errorf("Fixed = %v", e.Fixed)
	}
	if e.Slicing == nil || len(e.Slicing.Discriminator) != 1 {
		t.Fatalf("Slicing = %+v", e.Slicing)
	}
	if d := e.Slicing.Discriminator[0]; d.Type != "value" || d.Path != "system" {
		t.Errorf("Discriminator = %+v", d)
	}
	if e.Binding == nil || e.Binding.Strength != "required" {
		t.Errorf("Binding = %+v", e.Binding)
	}
	if len(e.Constraints) != 1 || e.Constraints[0].Key != "cpt-2" {
		t.Errorf("Constraints = %+v", e.Constraints)
	}
	if e.MustSupport == nil || !*e.MustSupport {
		t.Error("MustSupport not converted")
	}
}

func TestExportStructureDefinition_RoundTrip(t *testing.T) {
	one := 1
	max := "1"
	short := "The patient name"

	in := &service.StructureDefinition{
		URL:            "http://example.org/fhir/StructureDefinition/my-patient",
		Name:           "MyPatient",
		Type:           "Patient",
		Kind:           "resource",
		BaseDefinition: "http://hl7.org/fhir/StructureDefinition/Patient",
		Derivation:     service.DerivationConstraint,
		Snapshot: []service.ElementDefinition{
			{
				ID:   "Patient",
				Path: "Patient",
				Base: &service.BaseComponent{Path: "Patient"},
			},
			{
				ID:    "Patient.name",
				Path:  "Patient.name",
				Min:   &one,
				Max:   &max,
				Short: &short,
				Types: []service.TypeRef{{Code: "HumanName"}},
				Base:  &service.BaseComponent{Path: "Patient.name"},
			},
		},
	}

	conv := NewR4Converter()
	exported := conv.ExportStructureDefinition(in)
	back := conv.ConvertStructureDefinition(exported)

	if back.URL != in.URL || back.Derivation != in.Derivation {
		t.Errorf("round trip lost identity: %q %q", back.URL, back.Derivation)
	}
	if len(back.Snapshot) != 2 {
		t.Fatalf("len(Snapshot) = %d, want 2", len(back.Snapshot))
	}
	name := back.Snapshot[1]
	if name.Min == nil || *name.Min != 1 || name.Max == nil || *name.Max != "1" {
		t.Errorf("cardinality lost: Min=%v Max=%v", name.Min, name.Max)
	}
	if name.Short == nil || *name.Short != short {
		t.Errorf("Short lost: %v", name.Short)
	}
	if len(name.Types) != 1 || name.Types[0].Code != "HumanName" {
		t.Errorf("Types lost: %+v", name.Types)
	}
	if name.Base == nil || name.Base.Path != "Patient.name" {
		t.Errorf("Base lost: %+v", name.Base)
	}
}
