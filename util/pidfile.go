package hotspotutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Reads a process identifier from a pid file. Daemons append a trailing
// newline; some write nothing but whitespace when interrupted mid-start.
func ReadPidFile(path string) (int32, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot read pid file %s", path)
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(string(text)), 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "pid file %s has malformed content", path)
	}
	if pid <= 0 {
		return 0, errors.Errorf("pid file %s names a non-positive pid %d", path, pid)
	}
	return int32(pid), nil
}

// Writes a process identifier to a pid file.
func WritePidFile(path string, pid int32) error {
	err := os.WriteFile(path, []byte(strconv.FormatInt(int64(pid), 10)+"\n"), 0o644)
	return errors.Wrapf(err, "cannot write pid file %s", path)
}
