package fhirsnapshot

import (
	"strings"
	"testing"
)

func TestFHIRVersion_IsValid(t *testing.T) {
	tests := []struct {
		version FHIRVersion
		want    bool
	}{
		{R4, true},
		{R4B, true},
		{R5, true},
		{FHIRVersion("R3"), false},
		{FHIRVersion(""), false},
	}

	for _, tt := range tests {
		if got := tt.version.IsValid(); got != tt.want {
			t.Errorf("FHIRVersion(%q).IsValid() = %v; want %v", tt.version, got, tt.want)
		}
	}
}

func TestFHIRVersion_String(t *testing.T) {
	if got := R4.String(); got != "R4" {
		t.Errorf("R4.String() = %q; want %q", got, "R4")
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()

	if !strings.HasPrefix(ua, "gofhir-snapshot/") {
		t.Errorf("UserAgent() = %q; want gofhir-snapshot/ prefix", ua)
	}
	if !strings.HasSuffix(ua, Version) {
		t.Errorf("UserAgent() = %q; should end with Version %q", ua, Version)
	}
}
