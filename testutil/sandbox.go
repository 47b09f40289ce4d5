package testutil

import (
	"os"
	"path"

	log "github.com/sirupsen/logrus"
)

// Sandbox creates a unique temporary directory for tests that need to
// lay out config files, pid files and lease tables. Two sandboxes never
// interfere; Close removes the whole tree.
type Sandbox struct {
	BasePath string
}

// Create a new sandbox located in a temporary directory.
func NewSandbox() *Sandbox {
	dir, err := os.MkdirTemp("", "hotspot_ut_*")
	if err != nil {
		log.Fatal(err)
	}
	return &Sandbox{
		BasePath: dir,
	}
}

// Close sandbox and remove all its contents.
func (sb *Sandbox) Close() {
	os.RemoveAll(sb.BasePath)
}

// Create the parent directories for the indicated file, create the file
// itself, and return the full path to it.
func (sb *Sandbox) Join(name string) (string, error) {
	filePath := path.Join(sb.BasePath, name)

	dir := path.Dir(filePath)
	err := os.MkdirAll(dir, 0o777)
	if err != nil {
		return "", err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return filePath, nil
}

// Create the indicated directory in the sandbox together with all parent
// directories and return its full path.
func (sb *Sandbox) JoinDir(name string) (string, error) {
	filePath := path.Join(sb.BasePath, name)

	err := os.MkdirAll(filePath, 0o777)
	if err != nil {
		return "", err
	}

	return filePath, nil
}

// Create a file and write the provided content to it.
func (sb *Sandbox) Write(name string, content string) (string, error) {
	filePath, err := sb.Join(name)
	if err != nil {
		return "", err
	}

	err = os.WriteFile(filePath, []byte(content), 0o600)
	if err != nil {
		return "", err
	}

	return filePath, nil
}
