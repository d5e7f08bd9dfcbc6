package pool

import (
	"sync"
	"testing"
)

func TestPathBuilder_Basic(t *testing.T) {
	pb := AcquirePathBuilder()
	defer pb.Release()

	pb.WriteString("Patient")
	pb.WriteByte('.')
	pb.WriteString("name")

	if got := pb.String(); got != "Patient.name" {
		t.Errorf("String() = %q; want %q", got, "Patient.name")
	}
}

func TestPathBuilder_Append(t *testing.T) {
	pb := AcquirePathBuilder()
	defer pb.Release()

	pb.Append("Patient", "name", "given")

	if got := pb.String(); got != "Patient.name.given" {
		t.Errorf("String() = %q; want %q", got, "Patient.name.given")
	}
}

func TestPathBuilder_AppendWithDot(t *testing.T) {
	pb := AcquirePathBuilder()
	defer pb.Release()

	pb.WriteString("Patient")
	pb.AppendWithDot("name")
	pb.AppendWithDot("given")

	if got := pb.String(); got != "Patient.name.given" {
		t.Errorf("String() = %q; want %q", got, "Patient.name.given")
	}

	// Test when buffer is empty
	pb.Reset()
	pb.AppendWithDot("Patient")
	if got := pb.String(); got != "Patient" {
		t.Errorf("String() with empty buffer = %q; want %q", got, "Patient")
	}
}

func TestPathBuilder_AppendSlice(t *testing.T) {
	pb := AcquirePathBuilder()
	defer pb.Release()

	pb.WriteString("Patient.telecom")
	pb.AppendSlice("phone")

	if got := pb.String(); got != "Patient.telecom:phone" {
		t.Errorf("String() = %q; want %q", got, "Patient.telecom:phone")
	}

	pb.AppendWithDot("system")

	if got := pb.String(); got != "Patient.telecom:phone.system" {
		t.Errorf("String() = %q; want %q", got, "Patient.telecom:phone.system")
	}
}

func TestPathBuilder_Reset(t *testing.T) {
	pb := AcquirePathBuilder()
	defer pb.Release()

	pb.WriteString("Patient.name")
	pb.Reset()

	if pb.Len() != 0 {
		t.Errorf("Len() after Reset = %d; want 0", pb.Len())
	}

	pb.WriteString("Observation")
	if got := pb.String(); got != "Observation" {
		t.Errorf("String() after Reset = %q; want %q", got, "Observation")
	}
}

func TestPathBuilder_Bytes(t *testing.T) {
	pb := AcquirePathBuilder()
	defer pb.Release()

	pb.WriteString("Patient")
	bytes := pb.Bytes()

	if string(bytes) != "Patient" {
		t.Errorf("Bytes() = %q; want %q", string(bytes), "Patient")
	}
}

func TestPathBuilder_NilRelease(t *testing.T) {
	var pb *PathBuilder
	pb.Release() // Should not panic
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		segments []string
		want     string
	}{
		{nil, ""},
		{[]string{}, ""},
		{[]string{"Patient"}, "Patient"},
		{[]string{"Patient", "name"}, "Patient.name"},
		{[]string{"Patient", "name", "given"}, "Patient.name.given"},
	}

	for _, tt := range tests {
		got := JoinPath(tt.segments...)
		if got != tt.want {
			t.Errorf("JoinPath(%v) = %q; want %q", tt.segments, got, tt.want)
		}
	}
}

func TestElementID(t *testing.T) {
	tests := []struct {
		parent string
		seg    string
		slice  string
		want   string
	}{
		{"", "Patient", "", "Patient"},
		{"Patient", "name", "", "Patient.name"},
		{"Patient", "telecom", "phone", "Patient.telecom:phone"},
		{"Patient.telecom:phone", "system", "", "Patient.telecom:phone.system"},
		{"Observation", "value[x]", "valueQuantity", "Observation.value[x]:valueQuantity"},
	}

	for _, tt := range tests {
		got := ElementID(tt.parent, tt.seg, tt.slice)
		if got != tt.want {
			t.Errorf("ElementID(%q, %q, %q) = %q; want %q", tt.parent, tt.seg, tt.slice, got, tt.want)
		}
	}
}

func TestPathBuilder_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	n := 100

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pb := AcquirePathBuilder()
			pb.Append("Patient", "telecom")
			pb.AppendSlice("phone")
			_ = pb.String()
			pb.Release()
		}()
	}

	wg.Wait()
}

func BenchmarkPathBuilder_Simple(b *testing.B) {
	for i := 0; i < b.N; i++ {
		pb := AcquirePathBuilder()
		pb.Append("Patient", "name", "given")
		_ = pb.String()
		pb.Release()
	}
}

func BenchmarkElementID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = ElementID("Patient.telecom:phone", "system", "")
	}
}

func BenchmarkJoinPath(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = JoinPath("Patient", "name", "given")
	}
}
