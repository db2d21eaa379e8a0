package persist

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// persisterState is a struct for persister round-trip testing.
type persisterState struct {
	Days  []string `json:"days"  cbor:"days"`
	Count int      `json:"count" cbor:"count"`
}

func TestPersister_SaveLoad_JSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	p := NewPersister[persisterState]("manifest", NewJSONCodec())

	original := persisterState{Days: []string{"2024-05-01", "2024-05-02"}, Count: 2}

	require.NoError(t, p.Save(dir, &original))

	restored, err := p.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, original, *restored)
	assert.FileExists(t, filepath.Join(dir, "manifest.json"))
}

func TestPersister_SaveLoad_CBOR(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	codec, err := NewCBORCodec()
	require.NoError(t, err)

	p := NewPersister[persisterState]("manifest", codec)

	original := persisterState{Days: []string{"2024-05-01"}, Count: 1}

	require.NoError(t, p.Save(dir, &original))

	restored, err := p.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, original, *restored)
	assert.Equal(t, filepath.Join(dir, "manifest.cbor"), p.Path(dir))
}

func TestPersister_LoadMissingFile(t *testing.T) {
	t.Parallel()

	p := NewPersister[persisterState]("missing", NewJSONCodec())

	_, err := p.Load(t.TempDir())

	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPersister_SaveCreatesDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "ledger")

	p := NewPersister[persisterState]("state", NewJSONCodec())

	require.NoError(t, p.Save(dir, &persisterState{Count: 1}))
	assert.FileExists(t, p.Path(dir))
}

func TestSaveState_DirIsFile(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := SaveState(filepath.Join(blocker, "sub"), "state", NewJSONCodec(), persisterState{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create state dir")
}

func TestSaveState_EncodeError(t *testing.T) {
	t.Parallel()

	// Channels cannot be JSON-encoded.
	err := SaveState(t.TempDir(), "bad", NewJSONCodec(), make(chan int))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode")
}

func TestLoadState_DecodeError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.json"), []byte("not json{{{"), 0o600))

	var state persisterState

	err := LoadState(dir, "corrupt", NewJSONCodec(), &state)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestWriteFileAtomic_ReplacesContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "2024-05-01.json")

	require.NoError(t, WriteFileAtomic(path, []byte("old")))
	require.NoError(t, WriteFileAtomic(path, []byte("new")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	assert.NoFileExists(t, path+TempSuffix)
}

func TestWriteFileAtomic_MissingDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "absent", "2024-05-01.json")

	err := WriteFileAtomic(path, []byte("x"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create temp file")
}

func TestMarshalUnmarshal(t *testing.T) {
	t.Parallel()

	codec := &JSONCodec{}

	data, err := Marshal(codec, persisterState{Count: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"days":null,"count":3}`, string(data))

	var back persisterState

	require.NoError(t, Unmarshal(codec, data, &back))
	assert.Equal(t, 3, back.Count)
}
