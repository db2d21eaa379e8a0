package config

// Archive defaults.
const (
	DefaultArchiveDir          = ".covarchive"
	DefaultArchiveCodec        = "zlib"
	DefaultMaxDecompressedSize = "1GiB"
)

// maxDecompressedCeiling bounds the configurable decompression cap.
const maxDecompressedCeiling = 16 << 30

// Compare defaults.
const DefaultCompareRanking = "lines"

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Observability defaults.
const DefaultSampleRatio = 1.0
