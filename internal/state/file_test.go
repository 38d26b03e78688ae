package state

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *File {
	t.Helper()

	f, err := Open(filepath.Join(t.TempDir(), "state", "bsec-state.bin"))
	require.NoError(t, err)

	return f
}

func TestSaveLoadRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 139, 221, 4096}

	for _, n := range sizes {
		f := openTemp(t)

		blob := make([]byte, n)
		for i := range blob {
			blob[i] = byte(i*31 + 7)
		}
		savedAt := time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)

		require.NoError(t, f.Save(Snapshot{Blob: blob, EngineVersion: "1.4.9.2", SavedAt: savedAt}))

		got, err := f.Load()
		require.NoError(t, err, "size %d", n)
		assert.Equal(t, blob, got.Blob, "size %d", n)
		assert.NotNil(t, got.Blob)
		assert.Equal(t, "1.4.9.2", got.EngineVersion)
		assert.True(t, savedAt.Equal(got.SavedAt))
	}
}

func TestSaveNilBlobLoadsEmpty(t *testing.T) {
	f := openTemp(t)

	require.NoError(t, f.Save(Snapshot{}))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte{}, got.Blob)
	assert.False(t, got.SavedAt.IsZero())
}

func TestSaveReplacesPrevious(t *testing.T) {
	f := openTemp(t)

	require.NoError(t, f.Save(Snapshot{Blob: []byte("first")}))
	require.NoError(t, f.Save(Snapshot{Blob: []byte("second")}))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got.Blob)

	entries, err := os.ReadDir(filepath.Dir(f.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadMissing(t *testing.T) {
	f := openTemp(t)

	_, err := f.Load()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrNotFound))
	assert.True(t, IsColdStart(err))
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"garbage", func([]byte) []byte { return []byte("not a state file") }},
		{"empty", func([]byte) []byte { return nil }},
		{"truncated", func(b []byte) []byte { return b[:len(b)/2] }},
		{"flipped blob byte", func(b []byte) []byte {
			out := append([]byte(nil), b...)
			i := bytes.Index(out, []byte("calibrated"))
			out[i] ^= 0xFF
			return out
		}},
		{"trailing data", func(b []byte) []byte { return append(append([]byte(nil), b...), 0x00) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := openTemp(t)
			require.NoError(t, f.Save(Snapshot{Blob: []byte("calibrated engine state")}))

			data, err := os.ReadFile(f.Path())
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(f.Path(), tt.mutate(data), 0o600))

			_, err = f.Load()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, ErrCorrupt), "got %v", err)
			assert.True(t, IsColdStart(err))
		})
	}
}

func TestLoadUnknownFormat(t *testing.T) {
	f := openTemp(t)

	data, err := encMode.Marshal(envelope{Format: formatVersion + 1, Blob: []byte{1}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.Path(), data, 0o600))

	_, err = f.Load()
	assert.True(t, errors.HasCode(err, ErrCorrupt))
}

func TestCrashBeforeRenameKeepsCommittedState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bsec-state.bin")

	f, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, f.Save(Snapshot{Blob: []byte("committed")}))

	// A process killed between temp write and rename leaves only the temporary behind.
	next, err := encMode.Marshal(envelope{Format: formatVersion, Blob: []byte("uncommitted")})
	require.NoError(t, err)
	stale := filepath.Join(dir, ".bsec-state.bin.tmp-123456")
	require.NoError(t, os.WriteFile(stale, next[:len(next)-3], 0o600))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("committed"), got.Blob)

	// Restart cleans up the leftover.
	f, err = Open(path)
	require.NoError(t, err)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))

	got, err = f.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("committed"), got.Blob)
}

func TestSaveFailureLeavesNoTemporary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bsec-state.bin")

	f, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, f.Save(Snapshot{Blob: []byte("committed")}))

	// Renaming a file over a non-empty directory fails.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "blocker"), 0o750))

	err = f.Save(Snapshot{Blob: []byte("next")})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrWrite))

	matches, err := filepath.Glob(filepath.Join(dir, ".bsec-state.bin.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.True(t, errors.HasCode(err, ErrInvalidConfig))
}
