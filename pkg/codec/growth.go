package codec

import (
	"errors"
	"fmt"
)

// Default growth policy values.
const (
	DefaultInitialRatio  = 4
	DefaultDoublings     = 20
	DefaultRecoveryRatio = lz4MaxExpansion
	DefaultMinSize       = 4 << 10
	DefaultMaxSize       = 1 << 30
)

// Growth is the destination buffer policy for decompression. The first
// attempt uses InitialRatio × len(src), each "buffer too small" answer
// doubles it up to Doublings times, and one final recovery attempt uses
// RecoveryRatio × len(src). No attempt exceeds MaxSize.
type Growth struct {
	InitialRatio  int
	Doublings     int
	RecoveryRatio int
	MinSize       int
	MaxSize       int64
}

// DefaultGrowth returns the policy used when none is configured.
func DefaultGrowth() Growth {
	return Growth{
		InitialRatio:  DefaultInitialRatio,
		Doublings:     DefaultDoublings,
		RecoveryRatio: DefaultRecoveryRatio,
		MinSize:       DefaultMinSize,
		MaxSize:       DefaultMaxSize,
	}
}

func (g Growth) limit() int64 {
	if g.MaxSize <= 0 {
		return DefaultMaxSize
	}

	return g.MaxSize
}

// Sizes returns the strictly increasing buffer sizes tried for a source
// of srcLen bytes.
func (g Growth) Sizes(srcLen int) []int {
	limit := g.limit()
	capped := func(n int64) int {
		if n > limit {
			n = limit
		}

		return int(n)
	}

	ratio := max(g.InitialRatio, 1)
	first := max(int64(srcLen)*int64(ratio), int64(g.MinSize), 1)

	sizes := []int{capped(first)}

	for range max(g.Doublings, 0) {
		last := sizes[len(sizes)-1]
		if int64(last) >= limit {
			return sizes
		}

		sizes = append(sizes, capped(int64(last)*2))
	}

	recovery := capped(int64(srcLen) * int64(max(g.RecoveryRatio, 1)))
	if recovery > sizes[len(sizes)-1] {
		sizes = append(sizes, recovery)
	}

	return sizes
}

// decodeWithGrowth runs decode with each size from the policy until it
// succeeds, fails with anything other than errShortBuffer, or runs out of
// attempts.
func decodeWithGrowth(kind Kind, srcLen int, g Growth, decode func(dst []byte) (int, error)) ([]byte, error) {
	sizes := g.Sizes(srcLen)

	for _, size := range sizes {
		dst := make([]byte, size)

		n, err := decode(dst)
		if err == nil {
			return dst[:n], nil
		}

		if !errors.Is(err, errShortBuffer) {
			return nil, fmt.Errorf("%w: %s: %w", ErrDecompression, kind, err)
		}
	}

	return nil, fmt.Errorf("%w: %s: output exceeds %d bytes after %d attempts",
		ErrDecompression, kind, sizes[len(sizes)-1], len(sizes))
}
