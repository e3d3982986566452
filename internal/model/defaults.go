package model

// Shared defaults used by both the merge engine and the serving binaries.
const (
	DefaultBatchSize            = 200
	DefaultChunkMaxLines        = 5000
	DefaultPreflightSampleLines = 200
	DefaultPreflightMinRatio    = 0.8
	DefaultWarmupPerFileLimit   = 2000
	DefaultWarmupTarget         = 10000
)
