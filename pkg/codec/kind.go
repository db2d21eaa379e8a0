// Package codec provides the reversible byte compression used for
// historical archive entries.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a compression algorithm. The archive derives the decode
// path of an entry from the file extension mapped to its Kind, so the
// extensions are part of the on-disk format.
type Kind uint8

const (
	// None stores bytes as they are. Used for the uncompressed latest entry.
	None Kind = iota
	// Zlib is RFC 1950 zlib, the default for historical entries.
	Zlib
	// LZ4 is a raw LZ4 block. Fast, lower ratio.
	LZ4
	// Zstd is a zstd frame. Best ratio for JSON payloads.
	Zstd
)

// File extensions per kind.
const (
	extJSON = ".json"
	extZlib = ".zlib"
	extLZ4  = ".lz4"
	extZstd = ".zst"
)

// ErrUnknownKind is returned for unknown names, extensions or kind values.
var ErrUnknownKind = errors.New("unknown compression kind")

// String returns the kind name used in configuration.
func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Zlib:
		return "zlib"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Extension returns the archive file extension for the kind.
func (k Kind) Extension() string {
	switch k {
	case None:
		return extJSON
	case Zlib:
		return extZlib
	case LZ4:
		return extLZ4
	case Zstd:
		return extZstd
	default:
		return ""
	}
}

// Compressed reports whether the kind actually compresses.
func (k Kind) Compressed() bool {
	return k != None
}

// ParseKind parses a configuration name such as "zlib".
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "json":
		return None, nil
	case "zlib":
		return Zlib, nil
	case "lz4":
		return LZ4, nil
	case "zstd", "zst":
		return Zstd, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
}

// KindForExtension maps an archive file extension (with the leading dot)
// to its kind.
func KindForExtension(ext string) (Kind, error) {
	switch ext {
	case extJSON:
		return None, nil
	case extZlib:
		return Zlib, nil
	case extLZ4:
		return LZ4, nil
	case extZstd:
		return Zstd, nil
	default:
		return None, fmt.Errorf("%w: extension %q", ErrUnknownKind, ext)
	}
}

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{None, Zlib, LZ4, Zstd}
}
