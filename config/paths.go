package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/frobware/xdpfwd/bpffs"
)

// DefaultConfigPath is where the daemon looks for its configuration
// when --config is not given.
const DefaultConfigPath = "/etc/xdpfwd/xdpfwd.yaml"

// DefaultObjectPath is the pre-compiled XDP program object.
const DefaultObjectPath = "/usr/lib/xdpfwd/xdpfwd.o"

// Paths holds the filesystem layout for one xdpfwd instance:
//
//	{bpffsRoot}/              - bpffs mount (usually /sys/fs/bpf)
//	{bpffsRoot}/xdpfwd/       - map pins
//	{stateDir}/               - run-state root (usually /var/lib/xdpfwd)
//	{stateDir}/state.db       - session database
//	{stateDir}/.lock          - single-instance lock file
//
// Paths is immutable after construction; use NewPaths. Fields are
// unexported to prevent construction of invalid instances.
type Paths struct {
	bpffsRoot bpffs.Root
	pinDir    string
	stateDir  string
	db        string
	lock      string
}

// DefaultPaths returns Paths with production defaults. Panics if the
// defaults are somehow invalid (should never happen).
func DefaultPaths() Paths {
	p, err := NewPaths("/sys/fs/bpf", "/var/lib/xdpfwd")
	if err != nil {
		panic(fmt.Sprintf("DefaultPaths: %v", err))
	}
	return p
}

// NewPaths creates Paths rooted at the given bpffs mount and state
// directory. Both must be absolute.
func NewPaths(bpffsRoot, stateDir string) (Paths, error) {
	if bpffsRoot == "" || stateDir == "" {
		return Paths{}, fmt.Errorf("bpffs root and state directory cannot be empty")
	}
	if !filepath.IsAbs(bpffsRoot) {
		return Paths{}, fmt.Errorf("bpffs root must be absolute, got %q", bpffsRoot)
	}
	if !filepath.IsAbs(stateDir) {
		return Paths{}, fmt.Errorf("state directory must be absolute, got %q", stateDir)
	}

	return Paths{
		bpffsRoot: bpffs.Root(bpffsRoot),
		pinDir:    filepath.Join(bpffsRoot, "xdpfwd"),
		stateDir:  stateDir,
		db:        filepath.Join(stateDir, "state.db"),
		lock:      filepath.Join(stateDir, ".lock"),
	}, nil
}

// BpffsRoot returns the bpffs mount point.
func (p Paths) BpffsRoot() bpffs.Root { return p.bpffsRoot }

// PinDir returns the map pin directory.
func (p Paths) PinDir() string { return p.pinDir }

// StateDir returns the run-state root.
func (p Paths) StateDir() string { return p.stateDir }

// DBPath returns the session database file.
func (p Paths) DBPath() string { return p.db }

// LockPath returns the single-instance lock file.
func (p Paths) LockPath() string { return p.lock }

// MapPinPath returns the pin path for a named map.
func (p Paths) MapPinPath(name string) string {
	return filepath.Join(p.pinDir, name)
}

// EnsureDirectories creates the state directory and makes sure a bpffs
// is mounted at the bpffs root. Call at startup to fail fast on
// permission problems. Mounting requires CAP_SYS_ADMIN; on most hosts
// the bpffs is already mounted by systemd.
func (p Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", p.stateDir, err)
	}

	if err := bpffs.EnsureMounted(bpffs.DefaultMountInfoPath, p.bpffsRoot); err != nil {
		return fmt.Errorf("failed to ensure bpffs at %s: %w", p.bpffsRoot, err)
	}

	return nil
}
