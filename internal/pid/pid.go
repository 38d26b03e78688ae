package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
)

const dirPerm = 0o755

// Write writes the current process ID to path. An empty path disables the
// PID file. A file left behind by a process that is no longer running is
// replaced.
func Write(path string) error {
	if path == "" {
		return nil
	}

	errFactory := errors.New()
	pid := os.Getpid()

	if bytes, err := os.ReadFile(path); err == nil {
		// PID file exists, check if the process is running
		other, err := strconv.Atoi(strings.TrimSpace(string(bytes)))
		if err == nil && other != pid && running(other) {
			return errFactory.WithData(errors.ErrAlreadyRunning, other)
		}
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrWritePID, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return errFactory.Wrap(errors.ErrWritePID, err)
	}

	err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o600)
	if err != nil {
		return errFactory.Wrap(errors.ErrWritePID, err)
	}

	return nil
}

// Remove removes the PID file.
func Remove(path string) error {
	if path == "" {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func running(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}
