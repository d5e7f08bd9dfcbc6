package fhirsnapshot

import "testing"

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.RegenerateExisting != false {
		t.Error("RegenerateExisting should be false by default")
	}
	if opts.CheckConstraintExpressions != false {
		t.Error("CheckConstraintExpressions should be false by default")
	}
	if opts.MaxIssues != 0 {
		t.Errorf("MaxIssues = %d; want 0", opts.MaxIssues)
	}
	if opts.SnapshotCacheSize != 0 {
		t.Errorf("SnapshotCacheSize = %d; want 0", opts.SnapshotCacheSize)
	}
	if opts.MaxExpansionDepth != 512 {
		t.Errorf("MaxExpansionDepth = %d; want 512", opts.MaxExpansionDepth)
	}
}

func TestOptions_Apply(t *testing.T) {
	opts := DefaultOptions()
	for _, opt := range []Option{
		WithRegenerateExisting(true),
		WithConstraintExpressionCheck(true),
		WithMaxIssues(50),
		WithSnapshotCache(256),
		WithMaxExpansionDepth(32),
	} {
		opt(opts)
	}

	if !opts.RegenerateExisting {
		t.Error("WithRegenerateExisting(true) not applied")
	}
	if !opts.CheckConstraintExpressions {
		t.Error("WithConstraintExpressionCheck(true) not applied")
	}
	if opts.MaxIssues != 50 {
		t.Errorf("MaxIssues = %d; want 50", opts.MaxIssues)
	}
	if opts.SnapshotCacheSize != 256 {
		t.Errorf("SnapshotCacheSize = %d; want 256", opts.SnapshotCacheSize)
	}
	if opts.MaxExpansionDepth != 32 {
		t.Errorf("MaxExpansionDepth = %d; want 32", opts.MaxExpansionDepth)
	}
}

func TestOptions_RejectInvalid(t *testing.T) {
	opts := DefaultOptions()
	WithMaxIssues(-1)(opts)
	WithSnapshotCache(-1)(opts)
	WithMaxExpansionDepth(0)(opts)

	if opts.MaxIssues != 0 {
		t.Errorf("MaxIssues = %d; negative values should be ignored", opts.MaxIssues)
	}
	if opts.SnapshotCacheSize != 0 {
		t.Errorf("SnapshotCacheSize = %d; negative values should be ignored", opts.SnapshotCacheSize)
	}
	if opts.MaxExpansionDepth != 512 {
		t.Errorf("MaxExpansionDepth = %d; non-positive values should be ignored", opts.MaxExpansionDepth)
	}
}
