package bpffs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Pin describes one pinned object under a pin directory.
type Pin struct {
	Name string
	Path string
}

// ListPins returns the objects pinned directly under dir, sorted by
// name. A missing directory is not an error; it simply has no pins.
func ListPins(dir string) ([]Pin, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading pin directory %s: %w", dir, err)
	}

	pins := make([]Pin, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		pins = append(pins, Pin{
			Name: entry.Name(),
			Path: filepath.Join(dir, entry.Name()),
		})
	}

	sort.Slice(pins, func(i, j int) bool { return pins[i].Name < pins[j].Name })
	return pins, nil
}
