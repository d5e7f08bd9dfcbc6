package fhirsnapshot

// Option configures snapshot generation.
type Option func(*Options)

// Options holds all configuration for a Generator.
type Options struct {
	// RegenerateExisting forces regeneration even when a definition
	// already carries a snapshot.
	RegenerateExisting bool

	// CheckConstraintExpressions compiles FHIRPath constraint expressions
	// introduced by the differential and reports invalid ones as warnings.
	CheckConstraintExpressions bool

	// MaxIssues stops recording issues beyond this count. 0 is unlimited.
	MaxIssues int

	// SnapshotCacheSize is the capacity of the cross-run snapshot cache.
	// 0 disables the cache.
	SnapshotCacheSize int

	// MaxExpansionDepth bounds the expansion stack. The recursion guard
	// catches true cycles; this is a backstop for pathologically deep
	// derivation chains.
	MaxExpansionDepth int
}

// DefaultOptions returns the default configuration.
func DefaultOptions() *Options {
	return &Options{
		RegenerateExisting:         false,
		CheckConstraintExpressions: false,
		MaxIssues:                  0,
		SnapshotCacheSize:          0,
		MaxExpansionDepth:          512,
	}
}

// WithRegenerateExisting forces regeneration of already-present snapshots.
func WithRegenerateExisting(enable bool) Option {
	return func(o *Options) {
		o.RegenerateExisting = enable
	}
}

// WithConstraintExpressionCheck enables FHIRPath compile-checking of
// constraint expressions introduced by differentials.
func WithConstraintExpressionCheck(enable bool) Option {
	return func(o *Options) {
		o.CheckConstraintExpressions = enable
	}
}

// WithMaxIssues caps the number of recorded issues. Use 0 for unlimited.
func WithMaxIssues(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.MaxIssues = n
		}
	}
}

// WithSnapshotCache enables the cross-run snapshot cache with the given
// capacity. Use 0 to disable.
func WithSnapshotCache(size int) Option {
	return func(o *Options) {
		if size >= 0 {
			o.SnapshotCacheSize = size
		}
	}
}

// WithMaxExpansionDepth bounds the depth of nested profile expansions.
func WithMaxExpansionDepth(depth int) Option {
	return func(o *Options) {
		if depth > 0 {
			o.MaxExpansionDepth = depth
		}
	}
}
