package state

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"codeberg.org/mutker/bsec-exporter/internal/logger"
	"github.com/fxamacker/cbor/v2"
)

const formatVersion = 1

// envelope wraps the engine blob on disk so truncation and foreign files
// are detected before the blob reaches the engine.
type envelope struct {
	Format        uint16    `cbor:"1,keyasint"`
	EngineVersion string    `cbor:"2,keyasint"`
	SavedAt       time.Time `cbor:"3,keyasint"`
	Blob          []byte    `cbor:"4,keyasint"`
	Checksum      uint32    `cbor:"5,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create state CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create state CBOR decoder mode: %v", err))
	}
}

// File stores the state in a single file replaced atomically on every save.
type File struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
	log  logger.Logger
}

// Open prepares the state directory and removes temporaries left behind by
// an interrupted save.
func Open(path string) (*File, error) {
	errFactory := errors.New()

	if path == "" {
		return nil, errFactory.WithMessage(ErrInvalidConfig, "state file path is empty")
	}

	f := &File{
		path: path,
		now:  time.Now,
		log:  logger.Component("state"),
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrWrite, err)
	}

	f.removeStale()

	return f, nil
}

func (f *File) Path() string {
	return f.path
}

func (f *File) tempPattern() string {
	return "." + filepath.Base(f.path) + ".tmp-*"
}

func (f *File) removeStale() {
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(f.path), f.tempPattern()))
	if err != nil {
		return
	}

	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			f.log.Warn().Err(err).Str("path", m).Msg("Failed to remove stale state temporary")
			continue
		}
		f.log.Debug().Str("path", m).Msg("Removed stale state temporary")
	}
}

// Save writes snap to a temporary file in the same directory, syncs it and
// renames it over the canonical path.
func (f *File) Save(snap Snapshot) error {
	errFactory := errors.New()

	f.mu.Lock()
	defer f.mu.Unlock()

	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = f.now()
	}

	data, err := encMode.Marshal(envelope{
		Format:        formatVersion,
		EngineVersion: snap.EngineVersion,
		SavedAt:       savedAt.UTC(),
		Blob:          snap.Blob,
		Checksum:      crc32.ChecksumIEEE(snap.Blob),
	})
	if err != nil {
		return errFactory.Wrap(ErrEncode, err)
	}

	dir := filepath.Dir(f.path)

	tmp, err := os.CreateTemp(dir, f.tempPattern())
	if err != nil {
		return errFactory.Wrap(ErrWrite, err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errFactory.Wrap(ErrWrite, err)
	}
	if err := tmp.Chmod(defaultFilePerm); err != nil {
		tmp.Close()
		return errFactory.Wrap(ErrWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errFactory.Wrap(ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return errFactory.Wrap(ErrWrite, err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		return errFactory.Wrap(ErrWrite, err)
	}
	committed = true

	if err := syncDir(dir); err != nil {
		f.log.Debug().Err(err).Str("dir", dir).Msg("Directory sync after rename failed")
	}

	f.log.Debug().
		Int("bytes", len(snap.Blob)).
		Str("engine_version", snap.EngineVersion).
		Msg("State saved")

	return nil
}

// Load reads the canonical file. Absence and damage are reported as
// ErrNotFound and ErrCorrupt respectively.
func (f *File) Load() (Snapshot, error) {
	errFactory := errors.New()

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, errFactory.WithData(ErrNotFound, f.path)
		}
		return Snapshot{}, errFactory.Wrap(ErrRead, err)
	}

	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return Snapshot{}, errFactory.Wrap(ErrCorrupt, err)
	}

	if env.Format != formatVersion {
		return Snapshot{}, errFactory.WithData(ErrCorrupt, struct {
			Format   uint16
			Expected uint16
		}{
			Format:   env.Format,
			Expected: formatVersion,
		})
	}

	if env.Blob == nil {
		env.Blob = []byte{}
	}

	if sum := crc32.ChecksumIEEE(env.Blob); sum != env.Checksum {
		return Snapshot{}, errFactory.WithMessage(ErrCorrupt,
			fmt.Sprintf("checksum mismatch: stored %08x, computed %08x", env.Checksum, sum))
	}

	return Snapshot{
		Blob:          env.Blob,
		EngineVersion: env.EngineVersion,
		SavedAt:       env.SavedAt,
	}, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Sync()
}
