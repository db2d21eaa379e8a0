package persist

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// TempSuffix marks files that are still being written. Readers scanning a
// directory skip them: their presence means a writer did not finish.
const TempSuffix = ".tmp"

const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// Marshal encodes v with the codec into a byte slice.
func Marshal(codec Codec, v any) ([]byte, error) {
	var buf bytes.Buffer

	err := codec.Encode(&buf, v)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal decodes data with the codec into v, which must be a pointer.
func Unmarshal(codec Codec, data []byte, v any) error {
	return codec.Decode(bytes.NewReader(data), v)
}

// WriteFileAtomic writes data to path through a sibling temp file that is
// fsynced and renamed into place. Readers observe either the old content
// or the complete new content.
func WriteFileAtomic(path string, data []byte) error {
	tmpPath := path + TempSuffix

	fd, createErr := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if createErr != nil {
		return fmt.Errorf("create temp file: %w", createErr)
	}

	_, writeErr := fd.Write(data)
	if writeErr != nil {
		return errors.Join(fmt.Errorf("write temp file: %w", writeErr), fd.Close(), os.Remove(tmpPath))
	}

	syncErr := fd.Sync()
	if syncErr != nil {
		return errors.Join(fmt.Errorf("sync temp file: %w", syncErr), fd.Close(), os.Remove(tmpPath))
	}

	closeErr := fd.Close()
	if closeErr != nil {
		return errors.Join(fmt.Errorf("close temp file: %w", closeErr), os.Remove(tmpPath))
	}

	renameErr := os.Rename(tmpPath, path)
	if renameErr != nil {
		return errors.Join(fmt.Errorf("rename temp file: %w", renameErr), os.Remove(tmpPath))
	}

	return nil
}

// SaveState atomically writes v to dir/basename+extension.
func SaveState(dir, basename string, codec Codec, v any) error {
	mkdirErr := os.MkdirAll(dir, dirPerm)
	if mkdirErr != nil {
		return fmt.Errorf("create state dir: %w", mkdirErr)
	}

	data, err := Marshal(codec, v)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	err = WriteFileAtomic(filepath.Join(dir, basename+codec.Extension()), data)
	if err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	return nil
}

// LoadState loads dir/basename+extension into v, which must be a pointer.
func LoadState(dir, basename string, codec Codec, v any) error {
	path := filepath.Join(dir, basename+codec.Extension())

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	err = codec.Decode(file, v)
	if err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}

// Persister handles I/O for a specific state type using a Codec.
type Persister[T any] struct {
	basename string
	codec    Codec
}

// NewPersister creates a persister with the given basename and codec.
func NewPersister[T any](basename string, codec Codec) *Persister[T] {
	return &Persister[T]{
		basename: basename,
		codec:    codec,
	}
}

// Path returns the file the persister reads and writes inside dir.
func (p *Persister[T]) Path(dir string) string {
	return filepath.Join(dir, p.basename+p.codec.Extension())
}

// Save writes state to dir.
func (p *Persister[T]) Save(dir string, state *T) error {
	return SaveState(dir, p.basename, p.codec, state)
}

// Load reads state from dir. A missing file yields the zero value and
// os.ErrNotExist in the error chain.
func (p *Persister[T]) Load(dir string) (*T, error) {
	var state T

	err := LoadState(dir, p.basename, p.codec, &state)
	if err != nil {
		return nil, err
	}

	return &state, nil
}
