package fhirsnapshot

import "fmt"

// IssueSeverity represents the severity of a generation issue.
// Maps to OperationOutcome.issue.severity in FHIR.
type IssueSeverity string

const (
	// SeverityFatal indicates generation could not produce a snapshot.
	SeverityFatal IssueSeverity = "fatal"
	// SeverityError indicates a branch of the tree could not be expanded.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a suspect construct that was worked around.
	SeverityWarning IssueSeverity = "warning"
	// SeverityInformation indicates informational feedback.
	SeverityInformation IssueSeverity = "information"
)

// IssueType represents the type of generation issue.
// Maps to OperationOutcome.issue.code in FHIR.
type IssueType string

const (
	// IssueTypeInvalid indicates the differential is invalid against the specification.
	IssueTypeInvalid IssueType = "invalid"
	// IssueTypeStructure indicates a structural problem in the element tree.
	IssueTypeStructure IssueType = "structure"
	// IssueTypeRequired indicates a required property is missing.
	IssueTypeRequired IssueType = "required"
	// IssueTypeNotFound indicates a referenced profile could not be resolved.
	IssueTypeNotFound IssueType = "not-found"
	// IssueTypeProcessing indicates a processing error, including cycles.
	IssueTypeProcessing IssueType = "processing"
	// IssueTypeInvariant indicates a problem with a constraint expression.
	IssueTypeInvariant IssueType = "invariant"
	// IssueTypeIncomplete indicates a branch whose expansion was abandoned.
	IssueTypeIncomplete IssueType = "incomplete"
)

// Issue represents a single snapshot generation issue.
// It maps to OperationOutcome.issue in FHIR.
type Issue struct {
	// Severity of the issue
	Severity IssueSeverity `json:"severity"`

	// Code identifying the type of issue
	Code IssueType `json:"code"`

	// Diagnostics contains human-readable details about the issue
	Diagnostics string `json:"diagnostics,omitempty"`

	// Expression contains the element path(s) the issue applies to
	Expression []string `json:"expression,omitempty"`

	// Profile is the canonical URL of the definition being expanded
	// when the issue was raised
	Profile string `json:"profile,omitempty"`
}

// IsError returns true if this is an error or fatal issue.
func (i Issue) IsError() bool {
	return i.Severity == SeverityError || i.Severity == SeverityFatal
}

// IsWarning returns true if this is a warning.
func (i Issue) IsWarning() bool {
	return i.Severity == SeverityWarning
}

// String returns a human-readable representation of the issue.
func (i Issue) String() string {
	path := ""
	if len(i.Expression) > 0 {
		path = " at " + i.Expression[0]
	}
	return string(i.Severity) + ": " + i.Diagnostics + path
}

// FatalError is returned for conditions that abort snapshot generation
// outright: no snapshot is produced for the definition.
type FatalError struct {
	Code        IssueType
	Diagnostics string
	Profile     string
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Profile != "" {
		return fmt.Sprintf("snapshot generation failed for %s: %s", e.Profile, e.Diagnostics)
	}
	return "snapshot generation failed: " + e.Diagnostics
}

// Issue converts the fatal error to its Issue representation.
func (e *FatalError) Issue() Issue {
	return Issue{
		Severity:    SeverityFatal,
		Code:        e.Code,
		Diagnostics: e.Diagnostics,
		Profile:     e.Profile,
	}
}

// Fatal creates a new FatalError.
func Fatal(code IssueType, profile, format string, args ...any) *FatalError {
	return &FatalError{
		Code:        code,
		Diagnostics: fmt.Sprintf(format, args...),
		Profile:     profile,
	}
}

// IssueBuilder provides a fluent API for building issues.
type IssueBuilder struct {
	issue Issue
}

// NewIssue creates a new IssueBuilder.
func NewIssue(severity IssueSeverity, code IssueType) *IssueBuilder {
	return &IssueBuilder{
		issue: Issue{
			Severity: severity,
			Code:     code,
		},
	}
}

// Error creates an error issue.
func Error(code IssueType) *IssueBuilder {
	return NewIssue(SeverityError, code)
}

// Warning creates a warning issue.
func Warning(code IssueType) *IssueBuilder {
	return NewIssue(SeverityWarning, code)
}

// Info creates an informational issue.
func Info(code IssueType) *IssueBuilder {
	return NewIssue(SeverityInformation, code)
}

// Diagnostics sets the diagnostic message.
func (b *IssueBuilder) Diagnostics(format string, args ...any) *IssueBuilder {
	b.issue.Diagnostics = fmt.Sprintf(format, args...)
	return b
}

// At sets the expression path.
func (b *IssueBuilder) At(path string) *IssueBuilder {
	b.issue.Expression = []string{path}
	return b
}

// Profile sets the canonical URL context.
func (b *IssueBuilder) Profile(url string) *IssueBuilder {
	b.issue.Profile = url
	return b
}

// Build returns the constructed issue.
func (b *IssueBuilder) Build() Issue {
	return b.issue
}
