// Package bpffs checks for and mounts the BPF filesystem, and lists
// map pins under a pin directory.
package bpffs

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
)

const (
	// DefaultMountInfoPath is the path to the mountinfo file.
	DefaultMountInfoPath = "/proc/self/mountinfo"

	// defaultScanMaxLineLen caps mountinfo line length. Some
	// runtimes produce very long lines; this prevents ErrTooLong.
	defaultScanMaxLineLen = 1024 * 1024
)

// Root represents a bpffs mount point path.
// This is a newtype to prevent accidentally passing arbitrary strings
// where a bpffs root is expected.
type Root string

// String returns the path as a string.
func (r Root) String() string { return string(r) }

// mountEntry is one parsed line of /proc/self/mountinfo.
type mountEntry struct {
	mountPoint string
	fsType     string
}

// parseMountInfoLine parses one mountinfo line, documented in proc(5):
//
//	mount_id parent_id major:minor root mount_point options [optional...] - fstype source super_options
//
// Optional fields of variable count sit before the " - " separator, so
// the separator must be located by string search rather than by field
// position; libmount (util-linux) parses it the same way.
func parseMountInfoLine(line string) (mountEntry, bool) {
	sepIdx := strings.Index(line, " - ")
	if sepIdx == -1 {
		return mountEntry{}, false
	}

	fields := strings.Fields(line[:sepIdx])
	if len(fields) < 5 {
		return mountEntry{}, false
	}

	suffixFields := strings.Fields(line[sepIdx+3:])
	if len(suffixFields) < 1 {
		return mountEntry{}, false
	}

	return mountEntry{
		mountPoint: fields[4],
		fsType:     suffixFields[0],
	}, true
}

// IsMounted reports whether a bpffs is mounted at root by parsing
// mountInfoPath (e.g. /proc/self/mountinfo).
func IsMounted(mountInfoPath string, root Root) (bool, error) {
	file, err := os.Open(mountInfoPath)
	if err != nil {
		return false, fmt.Errorf("opening mountinfo: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), defaultScanMaxLineLen)

	for scanner.Scan() {
		entry, ok := parseMountInfoLine(scanner.Text())
		if !ok {
			continue
		}
		if entry.mountPoint == string(root) && entry.fsType == "bpf" {
			return true, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("reading mountinfo: %w", err)
	}

	return false, nil
}

// Mount mounts a bpffs at root, creating the directory if needed.
func Mount(root Root) error {
	fi, err := os.Stat(string(root))
	switch {
	case err == nil:
		if !fi.IsDir() {
			return fmt.Errorf("mount point exists but is not a directory")
		}
	case os.IsNotExist(err):
		if err := os.MkdirAll(string(root), 0755); err != nil {
			return fmt.Errorf("creating mount point directory: %w", err)
		}
	default:
		return fmt.Errorf("stat mount point: %w", err)
	}

	if err := syscall.Mount("bpffs", string(root), "bpf", 0, ""); err != nil {
		return fmt.Errorf("mount syscall: %w", err)
	}

	return nil
}

// Unmount unmounts the bpffs at root.
func Unmount(root Root) error {
	if err := syscall.Unmount(string(root), 0); err != nil {
		return fmt.Errorf("unmount syscall: %w", err)
	}
	return nil
}

// EnsureMounted checks mountInfoPath for an existing bpf mount at
// root and mounts one if none is found.
//
// Equivalent to:
//
//	if ! findmnt --noheadings --types bpf <root>; then
//	  mount bpffs <root> -t bpf
//	fi
func EnsureMounted(mountInfoPath string, root Root) error {
	mounted, err := IsMounted(mountInfoPath, root)
	if err != nil {
		return err
	}
	if mounted {
		return nil
	}
	return Mount(root)
}
