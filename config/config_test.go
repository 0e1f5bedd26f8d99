package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/xdpfwd/bpffs"
	"github.com/frobware/xdpfwd/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xdpfwd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
interface: eth0
pin_maps: true
update_time: 30
stats_per_second: true
stdout_update_time: 2
time: 60
rules:
  - bind_addr: 10.0.0.1
    bind_port: 80
    protocol: tcp
    dest_addr: 192.168.1.10
    dest_port: 8080
`)

	cfg, mtime, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eth0", cfg.Interface)
	assert.True(t, cfg.PinMaps)
	assert.Equal(t, 30, cfg.UpdateTime)
	assert.True(t, cfg.StatsPerSecond)
	assert.False(t, cfg.NoStats)
	assert.Equal(t, 2*time.Second, cfg.DisplayInterval())
	assert.Equal(t, 30*time.Second, cfg.ReloadInterval())
	assert.Equal(t, time.Minute, cfg.RunDuration())
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "10.0.0.1", cfg.Rules[0].BindAddr)
	assert.False(t, mtime.IsZero())
}

func TestLoadDefaults(t *testing.T) {
	cfg, _, err := config.Load(writeConfig(t, "interface: eth0\n"))
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.DisplayInterval())
	assert.Zero(t, cfg.ReloadInterval(), "reloading disabled by default")
	assert.Zero(t, cfg.RunDuration(), "unbounded by default")
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, _, err := config.Load(writeConfig(t, "interface: [\n"))
		require.ErrorContains(t, err, "parsing config")
	})

	t.Run("invalid rule", func(t *testing.T) {
		_, _, err := config.Load(writeConfig(t, `
rules:
  - bind_addr: not-an-ip
    bind_port: 80
    protocol: tcp
    dest_addr: 10.0.0.1
    dest_port: 80
`))
		require.ErrorContains(t, err, "rule 0")
	})

	t.Run("negative interval", func(t *testing.T) {
		_, _, err := config.Load(writeConfig(t, "update_time: -1\n"))
		require.ErrorContains(t, err, "update_time")
	})
}

func TestOverridesApply(t *testing.T) {
	iface := "eth1"
	pin := true
	updateTime := 15

	cfg := config.Runtime{Interface: "eth0", UpdateTime: 30}
	merged := config.Overrides{
		Interface:  &iface,
		PinMaps:    &pin,
		UpdateTime: &updateTime,
	}.Apply(cfg)

	assert.Equal(t, "eth1", merged.Interface)
	assert.True(t, merged.PinMaps)
	assert.Equal(t, 15, merged.UpdateTime)
	// Untouched fields keep their file values.
	assert.False(t, merged.NoStats)
}

func TestOverridesEmptyIsIdentity(t *testing.T) {
	cfg := config.Runtime{Interface: "eth0", Verbose: 3, PinMaps: true}
	assert.Equal(t, cfg, config.Overrides{}.Apply(cfg))
}

func TestOverridesDistinguishExplicitZero(t *testing.T) {
	// --update-time=0 disables reloading even when the file enables it.
	zero := 0
	cfg := config.Runtime{UpdateTime: 30}
	merged := config.Overrides{UpdateTime: &zero}.Apply(cfg)
	assert.Zero(t, merged.UpdateTime)
	assert.Zero(t, merged.ReloadInterval())
}

func TestOverridesBoundRunDuration(t *testing.T) {
	d := 60
	merged := config.Overrides{Time: &d}.Apply(config.Runtime{})
	assert.Equal(t, 60, merged.Time)
	assert.Equal(t, time.Minute, merged.RunDuration())

	// --time=0 unbounds a run the file bounded.
	zero := 0
	merged = config.Overrides{Time: &zero}.Apply(config.Runtime{Time: 30})
	assert.Zero(t, merged.RunDuration())
}

func TestNewPaths(t *testing.T) {
	p, err := config.NewPaths("/sys/fs/bpf", "/var/lib/xdpfwd")
	require.NoError(t, err)

	assert.Equal(t, bpffs.Root("/sys/fs/bpf"), p.BpffsRoot())
	assert.Equal(t, "/sys/fs/bpf/xdpfwd", p.PinDir())
	assert.Equal(t, "/sys/fs/bpf/xdpfwd/map_stats", p.MapPinPath("map_stats"))
	assert.Equal(t, "/var/lib/xdpfwd/state.db", p.DBPath())
	assert.Equal(t, "/var/lib/xdpfwd/.lock", p.LockPath())
}

func TestNewPathsRejectsRelative(t *testing.T) {
	_, err := config.NewPaths("sys/fs/bpf", "/var/lib/xdpfwd")
	require.Error(t, err)

	_, err = config.NewPaths("/sys/fs/bpf", "var/lib/xdpfwd")
	require.Error(t, err)
}
