package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteRules fills the target path with the given rules JSON, creating
// parent directories as needed.
func WriteRules(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
