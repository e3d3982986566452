package model

// Pager provides ascending, 1-based inclusive reads over a merged session.
// Implementations serve reads against the current manifest plus any active
// filter; Total and Manifest describe the same view a subsequent
// ReadRangeByIdx will be served from unless Version changed in between.
type Pager interface {
	// ReadRangeByIdx returns entries with logical index in [startIdx, endIdx],
	// oldest first, each stamped with Idx. Out-of-range bounds are clamped.
	ReadRangeByIdx(startIdx, endIdx int64) ([]LogEntry, View, error)
	// Total reports how many entries the current view holds.
	Total() (int64, error)
	// Manifest summarizes the bound session.
	Manifest() (ManifestInfo, error)
	// SetFilter replaces the active filter. A zero filter clears it.
	SetFilter(f *Filter) error
	// ClearFilter restores the unfiltered view.
	ClearFilter() error
}

// Rebinder lets control surfaces point the pager at a different merged
// session directory at runtime.
type Rebinder interface {
	SetManifestDir(dir string) error
	ManifestDir() string
}

// ReadAPI is the unified contract for read surfaces (HTTP and socket RPC).
type ReadAPI interface {
	Pager
	Rebinder
}
