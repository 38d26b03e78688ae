package engine

import (
	"encoding/binary"
	"os"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
)

const configPrefixLen = 4

// ReadConfigFile loads a library configuration file and strips its
// little-endian length prefix.
func ReadConfigFile(path string) ([]byte, error) {
	errFactory := errors.New()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfigBlob, err)
	}

	return StripConfigPrefix(raw)
}

// StripConfigPrefix validates and removes the length prefix of a configuration blob.
func StripConfigPrefix(raw []byte) ([]byte, error) {
	errFactory := errors.New()

	if len(raw) < configPrefixLen {
		return nil, errFactory.WithData(ErrInvalidConfigBlob, struct {
			Phase string
			Size  int
		}{
			Phase: "read_prefix",
			Size:  len(raw),
		})
	}

	declared := binary.LittleEndian.Uint32(raw[:configPrefixLen])
	blob := raw[configPrefixLen:]
	if int(declared) != len(blob) {
		return nil, errFactory.WithData(ErrInvalidConfigBlob, struct {
			Phase    string
			Declared uint32
			Actual   int
		}{
			Phase:    "check_length",
			Declared: declared,
			Actual:   len(blob),
		})
	}

	return blob, nil
}
