package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Sentinel codec errors.
var (
	// ErrCompression is returned when the compressor fails or produces no output.
	ErrCompression = errors.New("compression failed")
	// ErrDecompression is returned when decompression fails, including when the
	// output does not fit after the bounded number of buffer growth attempts.
	ErrDecompression = errors.New("decompression failed")

	errShortBuffer = errors.New("destination buffer too small")
)

// lz4EmptyBlock is the LZ4 block for an empty input: a single token with
// no literals and no match.
var lz4EmptyBlock = []byte{0x00}

// lz4MaxExpansion bounds the output of one LZ4 block relative to its input.
const lz4MaxExpansion = 255

// Codec compresses and decompresses whole byte slices.
type Codec interface {
	Kind() Kind
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// Option configures a codec.
type Option func(*options)

type options struct {
	level  int
	growth Growth
}

// WithLevel sets the compression level. The meaning is codec specific:
// zlib accepts -2..9, zstd maps the value with zstd.EncoderLevelFromZstd.
// Zero keeps the codec default.
func WithLevel(level int) Option {
	return func(o *options) { o.level = level }
}

// WithGrowth replaces the decompression buffer growth policy.
func WithGrowth(g Growth) Option {
	return func(o *options) { o.growth = g }
}

// WithMaxSize caps the decompressed size, keeping the rest of the policy.
func WithMaxSize(maxSize int64) Option {
	return func(o *options) {
		if maxSize > 0 {
			o.growth.MaxSize = maxSize
		}
	}
}

// New returns the codec for kind.
func New(kind Kind, opts ...Option) (Codec, error) {
	o := options{growth: DefaultGrowth()}
	for _, opt := range opts {
		opt(&o)
	}

	switch kind {
	case None:
		return identityCodec{}, nil
	case Zlib:
		level := zlib.DefaultCompression
		if o.level != 0 {
			level = o.level
		}

		return &zlibCodec{level: level, growth: o.growth}, nil
	case LZ4:
		return &lz4Codec{growth: o.growth}, nil
	case Zstd:
		return newZstdCodec(o)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
}

// identityCodec copies bytes through unchanged.
type identityCodec struct{}

func (identityCodec) Kind() Kind { return None }

func (identityCodec) Compress(src []byte) ([]byte, error) {
	return slices.Clone(src), nil
}

func (identityCodec) Decompress(src []byte) ([]byte, error) {
	return slices.Clone(src), nil
}

type zlibCodec struct {
	level  int
	growth Growth
}

func (c *zlibCodec) Kind() Kind { return Zlib }

func (c *zlibCodec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer

	zw, err := zlib.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("%w: zlib writer: %w", ErrCompression, err)
	}

	_, writeErr := zw.Write(src)
	if writeErr != nil {
		return nil, fmt.Errorf("%w: zlib write: %w", ErrCompression, writeErr)
	}

	closeErr := zw.Close()
	if closeErr != nil {
		return nil, fmt.Errorf("%w: zlib close: %w", ErrCompression, closeErr)
	}

	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: zlib produced no output", ErrCompression)
	}

	return buf.Bytes(), nil
}

func (c *zlibCodec) Decompress(src []byte) ([]byte, error) {
	return decodeWithGrowth(Zlib, len(src), c.growth, func(dst []byte) (int, error) {
		zr, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return 0, err
		}
		defer zr.Close()

		return readInto(zr, dst)
	})
}

type lz4Codec struct {
	growth Growth
}

func (c *lz4Codec) Kind() Kind { return LZ4 }

func (c *lz4Codec) Compress(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return slices.Clone(lz4EmptyBlock), nil
	}

	dst := make([]byte, lz4.CompressBlockBound(len(src)))

	written, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %w", ErrCompression, err)
	}

	if written == 0 {
		return nil, fmt.Errorf("%w: lz4 produced no output", ErrCompression)
	}

	return dst[:written], nil
}

func (c *lz4Codec) Decompress(src []byte) ([]byte, error) {
	if bytes.Equal(src, lz4EmptyBlock) {
		return []byte{}, nil
	}

	return decodeWithGrowth(LZ4, len(src), c.growth, func(dst []byte) (int, error) {
		n, err := lz4.UncompressBlock(src, dst)
		if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
			// The block decoder reports corruption the same way as a short
			// destination. Past the maximum expansion it can only be corruption.
			if len(dst) >= lz4MaxExpansion*len(src) {
				return 0, fmt.Errorf("corrupt block: %w", err)
			}

			return 0, errShortBuffer
		}

		return n, err
	})
}

type zstdCodec struct {
	encoder *zstd.Encoder
	growth  Growth
}

func newZstdCodec(o options) (*zstdCodec, error) {
	encOpts := []zstd.EOption{
		zstd.WithZeroFrames(true),
		zstd.WithEncoderConcurrency(1),
	}

	if o.level != 0 {
		encOpts = append(encOpts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(o.level)))
	}

	enc, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}

	return &zstdCodec{encoder: enc, growth: o.growth}, nil
}

func (c *zstdCodec) Kind() Kind { return Zstd }

func (c *zstdCodec) Compress(src []byte) ([]byte, error) {
	out := c.encoder.EncodeAll(src, nil)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: zstd produced no output", ErrCompression)
	}

	return out, nil
}

func (c *zstdCodec) Decompress(src []byte) ([]byte, error) {
	return decodeWithGrowth(Zstd, len(src), c.growth, func(dst []byte) (int, error) {
		zr, err := zstd.NewReader(bytes.NewReader(src), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return 0, err
		}
		defer zr.Close()

		return readInto(zr, dst)
	})
}

// readInto fills dst from r and reports errShortBuffer when r has more
// data than dst can hold.
func readInto(r io.Reader, dst []byte) (int, error) {
	n := 0

	for n < len(dst) {
		k, err := r.Read(dst[n:])
		n += k

		if errors.Is(err, io.EOF) {
			return n, nil
		}

		if err != nil {
			return n, err
		}
	}

	var probe [1]byte

	for {
		k, err := r.Read(probe[:])
		if k > 0 {
			return n, errShortBuffer
		}

		if errors.Is(err, io.EOF) {
			return n, nil
		}

		if err != nil {
			return n, err
		}
	}
}
