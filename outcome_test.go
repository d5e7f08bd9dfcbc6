package fhirsnapshot

import "testing"

func TestOutcome_Add(t *testing.T) {
	o := &Outcome{}
	o.Add(Error(IssueTypeNotFound).Diagnostics("missing base").Build())
	o.Add(Warning(IssueTypeInvariant).Diagnostics("bad expression").Build())

	if len(o.Issues) != 2 {
		t.Fatalf("len(Issues) = %d; want 2", len(o.Issues))
	}
	if !o.HasErrors() {
		t.Error("HasErrors() = false; want true")
	}
	if !o.HasWarnings() {
		t.Error("HasWarnings() = false; want true")
	}
	if o.ErrorCount() != 1 {
		t.Errorf("ErrorCount() = %d; want 1", o.ErrorCount())
	}
}

func TestOutcome_Empty(t *testing.T) {
	o := &Outcome{}

	if o.HasErrors() {
		t.Error("HasErrors() on empty outcome = true")
	}
	if o.HasWarnings() {
		t.Error("HasWarnings() on empty outcome = true")
	}
	if got := o.Errors(); got != nil {
		t.Errorf("Errors() = %v; want nil", got)
	}
	if got := o.Warnings(); got != nil {
		t.Errorf("Warnings() = %v; want nil", got)
	}
}

func TestOutcome_ErrorsAndWarnings(t *testing.T) {
	o := &Outcome{}
	o.Add(Issue{Severity: SeverityFatal, Code: IssueTypeProcessing})
	o.Add(Issue{Severity: SeverityError, Code: IssueTypeNotFound})
	o.Add(Issue{Severity: SeverityWarning, Code: IssueTypeInvariant})
	o.Add(Issue{Severity: SeverityInformation, Code: IssueTypeStructure})

	errs := o.Errors()
	if len(errs) != 2 {
		t.Fatalf("len(Errors()) = %d; want 2", len(errs))
	}
	if errs[0].Severity != SeverityFatal || errs[1].Severity != SeverityError {
		t.Errorf("Errors() order = %v", errs)
	}

	warns := o.Warnings()
	if len(warns) != 1 || warns[0].Code != IssueTypeInvariant {
		t.Errorf("Warnings() = %v", warns)
	}
}

func TestOutcome_Reset(t *testing.T) {
	o := &Outcome{}
	o.Reset("http://example.org/first")
	o.Add(Error(IssueTypeNotFound).Build())

	o.Reset("http://example.org/second")

	if o.Profile != "http://example.org/second" {
		t.Errorf("Profile = %q; want %q", o.Profile, "http://example.org/second")
	}
	if len(o.Issues) != 0 {
		t.Errorf("len(Issues) after Reset = %d; want 0", len(o.Issues))
	}
}

func TestOutcome_Merge(t *testing.T) {
	o := &Outcome{}
	o.Add(Error(IssueTypeNotFound).Build())

	other := &Outcome{}
	other.Add(Warning(IssueTypeInvariant).Build())

	o.Merge(other)
	o.Merge(nil) // must not panic

	if len(o.Issues) != 2 {
		t.Errorf("len(Issues) after Merge = %d; want 2", len(o.Issues))
	}
}

func TestOutcome_Clone(t *testing.T) {
	o := &Outcome{Profile: "http://example.org/p"}
	o.Add(Error(IssueTypeNotFound).Build())

	clone := o.Clone()
	clone.Add(Warning(IssueTypeInvariant).Build())

	if len(o.Issues) != 1 {
		t.Errorf("original mutated: len(Issues) = %d; want 1", len(o.Issues))
	}
	if clone.Profile != o.Profile {
		t.Errorf("clone.Profile = %q; want %q", clone.Profile, o.Profile)
	}
	if len(clone.Issues) != 2 {
		t.Errorf("len(clone.Issues) = %d; want 2", len(clone.Issues))
	}
}
