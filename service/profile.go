// Package service defines the internal StructureDefinition model and the
// small, composable interfaces snapshot generation is built on. Following
// Go's philosophy of small interfaces, each interface has 1-2 methods.
package service

import (
	"context"
	"strings"
)

// Derivation values for StructureDefinition.Derivation.
const (
	// DerivationConstraint means the definition refines the shape of its base.
	DerivationConstraint = "constraint"
	// DerivationSpecialization means the definition introduces a new root
	// type, possibly cloning a structural base.
	DerivationSpecialization = "specialization"
)

// CanonicalBase is the URL prefix of core FHIR type definitions.
const CanonicalBase = "http://hl7.org/fhir/StructureDefinition/"

// CanonicalForType returns the canonical URL of a core type's definition.
func CanonicalForType(typeCode string) string {
	return CanonicalBase + typeCode
}

// StructureDefinition represents a FHIR StructureDefinition.
// This is a simplified internal representation.
type StructureDefinition struct {
	URL            string
	Name           string
	Type           string
	Kind           string
	Abstract       bool
	BaseDefinition string
	Derivation     string
	FHIRVersion    string

	// Differential is author-supplied and sparse. The generator never
	// mutates it.
	Differential []ElementDefinition

	// Snapshot is the fully expanded element sequence, generated on
	// demand and cached on the definition.
	Snapshot []ElementDefinition
}

// IsConstraint returns true if the definition constrains its base's shape
// rather than introducing a new root type.
func (sd *StructureDefinition) IsConstraint() bool {
	return sd.Derivation == DerivationConstraint
}

// HasSnapshot returns true if a snapshot is present.
func (sd *StructureDefinition) HasSnapshot() bool {
	return len(sd.Snapshot) > 0
}

// ElementDefinition represents a FHIR ElementDefinition: one constraint at
// a dotted tree path. Optional scalar constraint fields are pointers so a
// sparse differential can distinguish "unset" from a zero value; the merge
// engine only overrides fields the differential explicitly sets.
type ElementDefinition struct {
	ID        string
	Path      string
	SliceName string

	// Base records provenance: which base or type element this element was
	// derived from. It is regenerated on every merge, never copied verbatim
	// from a prior snapshot.
	Base *BaseComponent

	// ContentReference points (as "#Type.path") at another element whose
	// children this element shares. Used for recursive element shapes.
	ContentReference string

	Types []TypeRef

	// Slicing is present only on the first element of a slice group.
	Slicing *Slicing

	// Constraint payload, merged field by field by an ElementMerger.
	Short              *string
	Definition         *string
	Comment            *string
	Requirements       *string
	Alias              []string
	Min                *int
	Max                *string
	DefaultValue       any
	MeaningWhenMissing *string
	Fixed              any
	Pattern            any
	Example            []Example
	MinValue           any
	MaxValue           any
	MaxLength          *int
	Condition          []string
	Constraints        []Constraint
	MustSupport        *bool
	IsModifier         *bool
	IsModifierReason   *string
	IsSummary          *bool
	Binding            *Binding
	Mapping            []Mapping

	// ConstrainedByDiff marks elements the current differential touched.
	// Cleared when a snapshot is reused as a base.
	ConstrainedByDiff bool
}

// BaseComponent records the origin of an inherited element.
type BaseComponent struct {
	// Profile is the canonical URL of the definition the element came from.
	Profile string
	// Path is the element's path within that definition.
	Path string
	Min  *int
	Max  *string
}

// TypeRef represents a type reference in an ElementDefinition.
type TypeRef struct {
	Code          string
	Profile       []string
	TargetProfile []string
	Aggregation   []string
	Versioning    string
}

// ProfileURL returns the first custom profile URI of the type reference,
// or "" if the type is purely structural.
func (t TypeRef) ProfileURL() string {
	if len(t.Profile) == 0 {
		return ""
	}
	return t.Profile[0]
}

// Binding represents a terminology binding.
type Binding struct {
	Strength    string
	ValueSet    string
	Description string
}

// Constraint represents a FHIRPath invariant on an element.
type Constraint struct {
	Key        string
	Severity   string
	Human      string
	Expression string
	XPath      string
	Source     string
}

// Example represents an example value for an element.
type Example struct {
	Label string
	Value any
}

// Mapping represents a mapping of an element to another specification.
type Mapping struct {
	Identity string
	Language string
	Map      string
	Comment  string
}

// Slicing represents element slicing rules.
type Slicing struct {
	Discriminator []Discriminator
	Description   string
	Ordered       bool
	Rules         string
}

// Slicing rule values.
const (
	SlicingRulesOpen      = "open"
	SlicingRulesOpenAtEnd = "openAtEnd"
	SlicingRulesClosed    = "closed"
)

// Discriminator defines how slices are differentiated.
type Discriminator struct {
	Type string
	Path string
}

// PathName returns the leaf segment of the element's path.
func (e *ElementDefinition) PathName() string {
	if idx := strings.LastIndex(e.Path, "."); idx >= 0 {
		return e.Path[idx+1:]
	}
	return e.Path
}

// IsRoot returns true if the element sits at the root of its tree.
func (e *ElementDefinition) IsRoot() bool {
	return !strings.Contains(e.Path, ".")
}

// IsChoice returns true for choice elements (path ends in "[x]").
func (e *ElementDefinition) IsChoice() bool {
	return strings.HasSuffix(e.Path, "[x]")
}

// IsRepeating returns true if the element may occur more than once.
func (e *ElementDefinition) IsRepeating() bool {
	if e.Max == nil {
		return false
	}
	return *e.Max != "0" && *e.Max != "1"
}

// IsExtension returns true if the element's single type is Extension.
func (e *ElementDefinition) IsExtension() bool {
	return len(e.Types) == 1 && e.Types[0].Code == "Extension"
}

// SliceBase returns the re-slice lineage prefix of the element's slice
// name: for "A/1" it returns "A", for "A" it returns "".
func (e *ElementDefinition) SliceBase() string {
	if idx := strings.LastIndex(e.SliceName, "/"); idx >= 0 {
		return e.SliceName[:idx]
	}
	return ""
}

// --- Small Interfaces ---

// SchemaResolver resolves canonical URLs to StructureDefinitions.
// It must be deterministic within a generation run.
type SchemaResolver interface {
	FetchStructureDefinition(ctx context.Context, url string) (*StructureDefinition, error)
}

// TypeResolver resolves type codes to their base StructureDefinitions.
type TypeResolver interface {
	FetchStructureDefinitionByType(ctx context.Context, typeCode string) (*StructureDefinition, error)
}

// SnapshotGenerator generates snapshots for differential-only profiles.
type SnapshotGenerator interface {
	GenerateSnapshot(ctx context.Context, profile *StructureDefinition) (*StructureDefinition, error)
}

// ElementMerger is the field-merge primitive: for every constraint field
// explicitly set on source, overwrite the same field on target. Unset
// fields are untouched. Called once per matched element pair.
type ElementMerger interface {
	ApplyOverrides(target, source *ElementDefinition)
}

// ProfileCache caches resolved profiles.
type ProfileCache interface {
	Get(url string) (*StructureDefinition, bool)
	Set(url string, profile *StructureDefinition)
}

// Observer receives notifications at the merge engine's extension points.
// All methods have sensible defaults in NopObserver; implement only the
// hooks you need by embedding it.
type Observer interface {
	// OnPrepareBaseProfile is called when a base profile's snapshot is
	// about to be reused as the starting point for generation.
	OnPrepareBaseProfile(base, derived *StructureDefinition)

	// OnPrepareElement is called when an element's base origin is about to
	// be fixed. baseDef and baseElem may be nil for synthesized elements.
	OnPrepareElement(elem *ElementDefinition, baseDef *StructureDefinition, baseElem *ElementDefinition)

	// OnConstraint is called when a differential constraint has been
	// applied to an element.
	OnConstraint(elem *ElementDefinition)

	// OnBeforeExpand decides whether an element's children must be
	// expanded. hasDiffChildren is the engine's default decision.
	OnBeforeExpand(elem *ElementDefinition, hasDiffChildren bool) bool
}

// NopObserver is an Observer with default behavior for every hook.
type NopObserver struct{}

// OnPrepareBaseProfile does nothing.
func (NopObserver) OnPrepareBaseProfile(_, _ *StructureDefinition) {}

// OnPrepareElement does nothing.
func (NopObserver) OnPrepareElement(_ *ElementDefinition, _ *StructureDefinition, _ *ElementDefinition) {
}

// OnConstraint does nothing.
func (NopObserver) OnConstraint(_ *ElementDefinition) {}

// OnBeforeExpand keeps the engine's default decision.
func (NopObserver) OnBeforeExpand(_ *ElementDefinition, hasDiffChildren bool) bool {
	return hasDiffChildren
}
