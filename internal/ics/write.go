package ics

import (
	"fmt"
	"os"
	"path/filepath"

	"notioncal/internal/fileutil"
)

// WriteFile atomically replaces the calendar at path, creating the
// output directory if needed.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return fileutil.WriteAtomic(path, data, 0o644)
}
