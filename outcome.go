package fhirsnapshot

// Outcome collects the diagnostics of one snapshot generation run.
// It is reset at the start of each top-level call, so callers inspect it
// after Generate or Update returns. A non-empty issue list means the
// produced snapshot may be structurally incomplete.
type Outcome struct {
	// Profile is the canonical URL of the definition the run was for
	Profile string `json:"profile,omitempty"`

	// Issues contains all issues recorded during the run
	Issues []Issue `json:"issues,omitempty"`
}

// Reset clears the outcome for a new run.
func (o *Outcome) Reset(profile string) {
	o.Profile = profile
	o.Issues = o.Issues[:0]
}

// Add records an issue.
func (o *Outcome) Add(issue Issue) {
	o.Issues = append(o.Issues, issue)
}

// HasErrors returns true if any error or fatal issues were recorded.
func (o *Outcome) HasErrors() bool {
	for _, issue := range o.Issues {
		if issue.IsError() {
			return true
		}
	}
	return false
}

// HasWarnings returns true if any warning issues were recorded.
func (o *Outcome) HasWarnings() bool {
	for _, issue := range o.Issues {
		if issue.IsWarning() {
			return true
		}
	}
	return false
}

// ErrorCount returns the number of error and fatal issues.
func (o *Outcome) ErrorCount() int {
	count := 0
	for _, issue := range o.Issues {
		if issue.IsError() {
			count++
		}
	}
	return count
}

// Errors returns all error and fatal issues.
func (o *Outcome) Errors() []Issue {
	var errs []Issue
	for _, issue := range o.Issues {
		if issue.IsError() {
			errs = append(errs, issue)
		}
	}
	return errs
}

// Warnings returns all warning issues.
func (o *Outcome) Warnings() []Issue {
	var warns []Issue
	for _, issue := range o.Issues {
		if issue.IsWarning() {
			warns = append(warns, issue)
		}
	}
	return warns
}

// Merge combines another outcome's issues into this one.
func (o *Outcome) Merge(other *Outcome) {
	if other == nil {
		return
	}
	o.Issues = append(o.Issues, other.Issues...)
}

// Clone creates a copy of the outcome.
func (o *Outcome) Clone() *Outcome {
	clone := &Outcome{
		Profile: o.Profile,
		Issues:  make([]Issue, len(o.Issues)),
	}
	copy(clone.Issues, o.Issues)
	return clone
}
