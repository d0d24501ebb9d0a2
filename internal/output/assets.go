package output

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyDir copies every regular file under src into dst, creating parent
// directories as needed. Asset copying is an unconditional one-to-one
// transfer and takes no part in dependency tracking. A missing src is a
// no-op: sites without static assets are fine.
func CopyDir(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat asset root %s: %w", src, err)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("copy asset %s: %w", path, err)
		}
		target := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return fmt.Errorf("copy asset %s: %w", rel, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("copy asset %s: %w", rel, err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("copy asset %s: %w", rel, err)
		}
		return nil
	})
}
