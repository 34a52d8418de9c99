package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PersistTemp writes data to a new file under baseDir named with a random
// UUID and ext, mode 0o600. The resolved path is validated to stay under the
// canonicalized baseDir (spec section 4.7 step 3: "Temp path resolution MUST
// be validated ... absolute-path canonicalization + prefix check"), guarding
// against a crafted ext/filename escaping the configured temp directory.
// cleanup removes the file and MUST be called in a finally block by callers.
func PersistTemp(baseDir string, data []byte, ext string) (path string, cleanup func(), err error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", noop, fmt.Errorf("resolve temp dir: %w", err)
	}

	filename := uuid.New().String() + sanitizeExt(ext)
	candidate := filepath.Join(absBase, filename)

	resolved, err := filepath.Abs(candidate)
	if err != nil {
		return "", noop, fmt.Errorf("resolve temp path: %w", err)
	}
	if resolved != candidate || !isWithinDir(resolved, absBase) {
		return "", noop, fmt.Errorf("temp path %q escapes configured directory %q", resolved, absBase)
	}

	if err := os.MkdirAll(absBase, 0o700); err != nil {
		return "", noop, fmt.Errorf("create temp dir: %w", err)
	}
	if err := os.WriteFile(resolved, data, 0o600); err != nil {
		return "", noop, fmt.Errorf("write temp file: %w", err)
	}

	return resolved, func() { _ = os.Remove(resolved) }, nil
}

func isWithinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// sanitizeExt strips anything but a leading-dot alphanumeric extension so a
// maliciously supplied format/extension string cannot inject path separators.
func sanitizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ".bin"
	}
	return "." + b.String()
}

func noop() {}
