package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofhir/snapshot/loader"
	"github.com/gofhir/snapshot/registry"
)

func TestParsePackageRef(t *testing.T) {
	tests := []struct {
		in   string
		want registry.PackageRef
	}{
		{"hl7.fhir.r4.core@4.0.1", registry.PackageRef{Name: "hl7.fhir.r4.core", Version: "4.0.1"}},
		{"hl7.fhir.us.core", registry.PackageRef{Name: "hl7.fhir.us.core", Version: registry.VersionLatest}},
		{"hl7.fhir.us.core@", registry.PackageRef{Name: "hl7.fhir.us.core", Version: registry.VersionLatest}},
	}
	for _, tt := range tests {
		if got := parsePackageRef(tt.in); got != tt.want {
			t.Errorf("parsePackageRef(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestLoadBundles(t *testing.T) {
	bundle := `{
		"resourceType": "Bundle",
		"type": "collection",
		"entry": [
			{
				"fullUrl": "http://hl7.org/fhir/StructureDefinition/Patient",
				"resource": {
					"resourceType": "StructureDefinition",
					"url": "http://hl7.org/fhir/StructureDefinition/Patient",
					"name": "Patient",
					"type": "Patient",
					"kind": "resource",
					"snapshot": {"element": [{"path": "Patient", "min": 0, "max": "*"}]}
				}
			},
			{
				"fullUrl": "http://hl7.org/fhir/ValueSet/example",
				"resource": {"resourceType": "ValueSet", "url": "http://hl7.org/fhir/ValueSet/example"}
			}
		]
	}`

	path := filepath.Join(t.TempDir(), "profiles-resources.json")
	if err := os.WriteFile(path, []byte(bundle), 0o644); err != nil {
		t.Fatal(err)
	}

	store := loader.NewInMemoryProfileService()
	config := &Config{Bundles: []string{path}, Quiet: true}
	if err := loadBundles(context.Background(), config, store); err != nil {
		t.Fatalf("loadBundles: %v", err)
	}

	if store.Count() != 1 {
		t.Errorf("store.Count() = %d, want 1", store.Count())
	}
	sd, err := store.FetchStructureDefinition(context.Background(), "http://hl7.org/fhir/StructureDefinition/Patient")
	if err != nil || sd == nil {
		t.Errorf("bundled Patient definition not registered with the store: %v", err)
	}
}

func TestLoadBundles_MissingFile(t *testing.T) {
	store := loader.NewInMemoryProfileService()
	config := &Config{Bundles: []string{filepath.Join(t.TempDir(), "absent.json")}, Quiet: true}
	if err := loadBundles(context.Background(), config, store); err == nil {
		t.Error("expected an error for a missing bundle file")
	}
}
