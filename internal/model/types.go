package model

// LogEntry represents a single merged log line used across the system.
// It is the canonical type for merging, chunk storage, transport
// (socket RPC / HTTP), and display.
type LogEntry struct {
	ID       int64       `json:"id,omitempty"`  // physical emission order, 1-based
	Idx      int64       `json:"idx,omitempty"` // logical ascending index, stamped on reads
	TS       int64       `json:"ts"`            // epoch milliseconds
	Level    string      `json:"level"`         // DEBUG/INFO/WARN/ERROR
	Type     string      `json:"type"`          // category tag derived from the source file
	File     string      `json:"file"`          // source file base name
	Path     string      `json:"path"`          // resolved absolute path
	Text     string      `json:"text"`          // raw display text, scrubbed
	Parsed   *ParsedLine `json:"parsed,omitempty"`
	FileRank int         `json:"fileRank,omitempty"`
	RevIndex int64       `json:"revIndex,omitempty"`
}

// ParsedLine holds the raw field tokens extracted from a line by a parser
// rule. Empty string means the token was not extracted.
type ParsedLine struct {
	Time    string `json:"time,omitempty"`
	Process string `json:"process,omitempty"`
	PID     string `json:"pid,omitempty"`
	Message string `json:"message,omitempty"`
}

// Batch is one bounded slice of merged entries delivered to a merge callback.
// Seq is 1-based and strictly increasing within a phase; Warmup marks batches
// from the approximate first pass.
type Batch struct {
	Seq     int64
	Warmup  bool
	Entries []LogEntry
}

// Filter narrows the paginated view of a merged session. Zero-value fields
// are ignored; a nil *Filter means the full merged set.
type Filter struct {
	PID      string `json:"pid,omitempty"`      // word-bounded token match on text
	File     string `json:"file,omitempty"`     // source file base name, exact
	Process  string `json:"process,omitempty"`  // substring match on text
	Contains string `json:"contains,omitempty"` // substring match on text
}

// IsZero reports whether the filter constrains nothing.
func (f *Filter) IsZero() bool {
	return f == nil || (f.PID == "" && f.File == "" && f.Process == "" && f.Contains == "")
}

// View identifies the pager state a read was served from. Readers compare
// Version against later responses to detect a manifest or filter change
// underneath them.
type View struct {
	Version int64 `json:"version"`
	Total   int64 `json:"total"`
}

// ManifestInfo is the summary shape served to viewers.
type ManifestInfo struct {
	Dir         string `json:"dir"`
	CreatedAt   string `json:"createdAt"`
	MergedLines int64  `json:"mergedLines"`
	ChunkCount  int    `json:"chunkCount"`
	Filtered    bool   `json:"filtered"`
	Version     int64  `json:"version"`
}
