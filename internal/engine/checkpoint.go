package engine

import (
	"fmt"
	"io"
	"os"
)

// CopyCheckpoint copies an opaque checkpoint file byte for byte. The core
// never inspects checkpoint contents; it only retains, copies and deletes
// them by path.
func CopyCheckpoint(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint copy %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy checkpoint %s -> %s: %w", src, dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("failed to sync checkpoint copy %s: %w", dst, err)
	}
	return out.Close()
}

// RemoveCheckpoints deletes retained checkpoint copies that are no longer
// reachable. Missing files are ignored; the first real failure is returned.
func RemoveCheckpoints(paths ...string) error {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove checkpoint %s: %w", p, err)
		}
	}
	return nil
}
