package agents

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Upload validation errors.
var (
	ErrNoVersion    = errors.New("version is required")
	ErrBadVersion   = errors.New("version must not contain path separators")
	ErrNoFile       = errors.New("archive file is required")
	ErrTooLarge     = errors.New("archive exceeds the upload size limit")
	ErrNotZip       = errors.New("archive is not a valid zip file")
	ErrNoAgentEntry = errors.New("zip must contain agent.py")
)

// agentEntryPattern matches agent.py at the archive root or in any directory.
const agentEntryPattern = "**/agent.py"

// ValidateVersion checks a version name before it is sent to the backend.
func ValidateVersion(version string) (string, error) {
	v := strings.TrimSpace(version)
	if v == "" {
		return "", ErrNoVersion
	}
	if strings.ContainsAny(v, `/\`) || v == "." || v == ".." {
		return "", ErrBadVersion
	}
	return v, nil
}

// ValidateArchive checks that r holds a zip of at most maxBytes that
// contains an agent.py entry.
func ValidateArchive(r io.ReaderAt, size, maxBytes int64) error {
	if r == nil || size == 0 {
		return ErrNoFile
	}
	if maxBytes > 0 && size > maxBytes {
		return ErrTooLarge
	}
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotZip, err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if ok, err := doublestar.Match(agentEntryPattern, strings.TrimPrefix(f.Name, "./")); err == nil && ok {
			return nil
		}
	}
	return ErrNoAgentEntry
}
