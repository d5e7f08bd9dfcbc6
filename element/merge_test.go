package element

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gofhir/snapshot/service"
)

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }
func boolp(b bool) *bool    { return &b }

func TestClone_IsDeep(t *testing.T) {
	orig := &service.ElementDefinition{
		Path:      "Patient.name",
		SliceName: "official",
		Min:       intp(1),
		Max:       strp("*"),
		Short:     strp("A name"),
		Types: []service.TypeRef{
			{Code: "HumanName", Profile: []string{"http://example.org/hn"}},
		},
		Slicing: &service.Slicing{
			Discriminator: []service.Discriminator{{Type: "value", Path: "use"}},
			Rules:         service.SlicingRulesOpen,
		},
		Base:        &service.BaseComponent{Profile: "http://example.org/base", Path: "Patient.name"},
		Alias:       []string{"nombre"},
		Constraints: []service.Constraint{{Key: "pat-1", Expression: "name.exists()"}},
		Binding:     &service.Binding{Strength: "required", ValueSet: "http://example.org/vs"},
	}

	clone := Clone(orig)

	if diff := cmp.Diff(orig, clone); diff != "" {
		t.Fatalf("clone differs from original (-orig +clone):\n%s", diff)
	}

	// Mutating the clone must not touch the original.
	*clone.Min = 0
	*clone.Max = "1"
	clone.Types[0].Profile[0] = "changed"
	clone.Slicing.Discriminator[0].Path = "changed"
	clone.Base.Path = "changed"
	clone.Alias[0] = "changed"
	clone.Constraints[0].Key = "changed"
	clone.Binding.Strength = "changed"

	if *orig.Min != 1 || *orig.Max != "*" {
		t.Error("cardinality aliased between clone and original")
	}
	if orig.Types[0].Profile[0] != "http://example.org/hn" {
		t.Error("type profile aliased")
	}
	if orig.Slicing.Discriminator[0].Path != "use" {
		t.Error("slicing aliased")
	}
	if orig.Base.Path != "Patient.name" {
		t.Error("base provenance aliased")
	}
	if orig.Alias[0] != "nombre" || orig.Constraints[0].Key != "pat-1" || orig.Binding.Strength != "required" {
		t.Error("payload slices aliased")
	}
}

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name   string
		target service.ElementDefinition
		source service.ElementDefinition
		check  func(t *testing.T, got *service.ElementDefinition)
	}{
		{
			name: "set fields overwrite",
			target: service.ElementDefinition{
				Path:  "Patient.name",
				Min:   intp(0),
				Max:   strp("*"),
				Short: strp("inherited"),
			},
			source: service.ElementDefinition{
				Path: "Patient.name",
				Max:  strp("1"),
			},
			check: func(t *testing.T, got *service.ElementDefinition) {
				if *got.Max != "1" {
					t.Errorf("Max = %q, want 1", *got.Max)
				}
				if *got.Min != 0 {
					t.Errorf("Min = %d, want untouched 0", *got.Min)
				}
				if *got.Short != "inherited" {
					t.Errorf("Short = %q, want untouched", *got.Short)
				}
			},
		},
		{
			name: "unset fields untouched",
			target: service.ElementDefinition{
				Path:        "Patient.active",
				Fixed:       true,
				MustSupport: boolp(true),
				Binding:     &service.Binding{Strength: "required"},
			},
			source: service.ElementDefinition{Path: "Patient.active"},
			check: func(t *testing.T, got *service.ElementDefinition) {
				if got.Fixed != true {
					t.Error("Fixed lost")
				}
				if got.MustSupport == nil || !*got.MustSupport {
					t.Error("MustSupport lost")
				}
				if got.Binding == nil || got.Binding.Strength != "required" {
					t.Error("Binding lost")
				}
			},
		},
		{
			name: "types replaced wholesale",
			target: service.ElementDefinition{
				Path: "Observation.value[x]",
				Types: []service.TypeRef{
					{Code: "Quantity"},
					{Code: "CodeableConcept"},
				},
			},
			source: service.ElementDefinition{
				Path:  "Observation.value[x]",
				Types: []service.TypeRef{{Code: "Quantity", Profile: []string{"http://hl7.org/fhir/StructureDefinition/Age"}}},
			},
			check: func(t *testing.T, got *service.ElementDefinition) {
				if len(got.Types) != 1 || got.Types[0].Code != "Quantity" {
					t.Fatalf("Types = %+v, want single profiled Quantity", got.Types)
				}
				if got.Types[0].ProfileURL() != "http://hl7.org/fhir/StructureDefinition/Age" {
					t.Errorf("profile = %q", got.Types[0].ProfileURL())
				}
			},
		},
		{
			name: "constraints union by key",
			target: service.ElementDefinition{
				Path: "Patient",
				Constraints: []service.Constraint{
					{Key: "ele-1", Expression: "hasValue()"},
					{Key: "pat-1", Expression: "old"},
				},
			},
			source: service.ElementDefinition{
				Path: "Patient",
				Constraints: []service.Constraint{
					{Key: "pat-1", Expression: "new"},
					{Key: "pat-2", Expression: "added"},
				},
			},
			check: func(t *testing.T, got *service.ElementDefinition) {
				if len(got.Constraints) != 3 {
					t.Fatalf("got %d constraints, want 3", len(got.Constraints))
				}
				if got.Constraints[1].Expression != "new" {
					t.Errorf("pat-1 not replaced: %q", got.Constraints[1].Expression)
				}
				if got.Constraints[2].Key != "pat-2" {
					t.Errorf("pat-2 not appended")
				}
			},
		},
	}

	m := NewMerger()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := Clone(&tt.target)
			m.ApplyOverrides(target, &tt.source)
			tt.check(t, target)
		})
	}
}

func TestApplyOverrides_DoesNotAliasSource(t *testing.T) {
	m := NewMerger()
	source := &service.ElementDefinition{
		Path:  "Patient.name",
		Max:   strp("1"),
		Alias: []string{"nombre"},
	}
	target := &service.ElementDefinition{Path: "Patient.name"}

	m.ApplyOverrides(target, source)
	*target.Max = "*"
	target.Alias[0] = "changed"

	if *source.Max != "1" || source.Alias[0] != "nombre" {
		t.Error("target aliases source storage")
	}
}

func TestRebase(t *testing.T) {
	tests := []struct {
		name string
		path string
		old  string
		new  string
		want string
	}{
		{name: "exact", path: "Quantity", old: "Quantity", new: "Observation.valueQuantity", want: "Observation.valueQuantity"},
		{name: "descendant", path: "Quantity.unit", old: "Quantity", new: "Observation.valueQuantity", want: "Observation.valueQuantity.unit"},
		{name: "outside prefix", path: "QuantityLike.unit", old: "Quantity", new: "X", want: "QuantityLike.unit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &service.ElementDefinition{Path: tt.path}
			Rebase(e, tt.old, tt.new)
			if e.Path != tt.want {
				t.Errorf("Rebase(%q, %q, %q) = %q, want %q", tt.path, tt.old, tt.new, e.Path, tt.want)
			}
		})
	}
}

func TestStampBase(t *testing.T) {
	origin := &service.ElementDefinition{
		Path: "Patient.name",
		Min:  intp(0),
		Max:  strp("*"),
		Base: &service.BaseComponent{Profile: "http://hl7.org/fhir/StructureDefinition/Patient", Path: "Patient.name"},
	}
	e := &service.ElementDefinition{Path: "MyPatient.name"}

	StampBase(e, "http://example.org/MyPatient", origin)

	if e.Base == nil {
		t.Fatal("no base stamped")
	}
	// The origin's own provenance wins over its position, so a chain of
	// derivations keeps pointing at the original defining element.
	if e.Base.Path != "Patient.name" {
		t.Errorf("Base.Path = %q, want Patient.name", e.Base.Path)
	}
	if e.Base.Profile != "http://hl7.org/fhir/StructureDefinition/Patient" {
		t.Errorf("Base.Profile = %q, want the original defining profile", e.Base.Profile)
	}
	if e.Base.Min == nil || *e.Base.Min != 0 || e.Base.Max == nil || *e.Base.Max != "*" {
		t.Error("base cardinality not carried")
	}
}

func TestStampBase_FirstDerivation(t *testing.T) {
	origin := &service.ElementDefinition{
		Path: "Patient.name",
		Min:  intp(0),
		Max:  strp("*"),
	}
	e := &service.ElementDefinition{Path: "Patient.name"}

	StampBase(e, "http://hl7.org/fhir/StructureDefinition/Patient", origin)

	if e.Base == nil {
		t.Fatal("no base stamped")
	}
	// An origin without provenance is its own origin.
	if e.Base.Profile != "http://hl7.org/fhir/StructureDefinition/Patient" {
		t.Errorf("Base.Profile = %q", e.Base.Profile)
	}
	if e.Base.Path != "Patient.name" {
		t.Errorf("Base.Path = %q", e.Base.Path)
	}
}
