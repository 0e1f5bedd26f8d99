package manager_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/xdpfwd"
	"github.com/frobware/xdpfwd/config"
)

const baseConfig = `
interface: eth0
stdout_update_time: 1
rules:
  - bind_addr: 10.0.0.1
    bind_port: 80
    protocol: tcp
    dest_addr: 192.168.1.10
    dest_port: 8080
`

func (f *fixture) run(cfg config.Runtime, overrides config.Overrides, attach xdpfwd.AttachOpts) error {
	return f.Manager.Run(context.Background(), f.Settings(cfg, overrides, attach))
}

func TestBoundedRunShutsDownCleanly(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	cfg := f.LoadConfig()
	cfg.Time = 5

	require.NoError(t, f.run(cfg, config.Overrides{}, xdpfwd.AttachOpts{}))

	f.AssertDetachedOnce()

	// Iterations at t=0..4 sleep for one second each; the t=5
	// iteration observes the deadline, does its work, and exits
	// without sleeping.
	assert.Equal(t, 6, f.Kernel.countOps("read-stats"))
	assert.Equal(t, 5, f.sleeps)

	sessions := f.Sessions()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Clean)
	require.NotNil(t, sessions[0].EndedAt)
}

func TestStartupSequenceOrder(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	cfg := f.LoadConfig()
	cfg.Time = 1
	cfg.PinMaps = true

	require.NoError(t, f.run(cfg, config.Overrides{}, xdpfwd.AttachOpts{}))

	names := f.Kernel.opNames()
	require.GreaterOrEqual(t, len(names), 6)
	assert.Equal(t, []string{
		"prepare",
		"load",
		"attach:driver",
		"resolve-maps",
		"pin",
		"apply-rules",
	}, names[:6])

	// Shutdown runs detach before unpin before close.
	tail := names[len(names)-3:]
	assert.Equal(t, []string{"detach", "unpin", "close"}, tail)
}

func TestTerminationFlagHonouredAfterSleep(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	// Unbounded run; request termination during the second sleep.
	f.afterSleep = func(n int) {
		if n == 2 {
			f.Manager.RequestStop()
		}
	}

	require.NoError(t, f.run(f.LoadConfig(), config.Overrides{}, xdpfwd.AttachOpts{}))

	f.AssertDetachedOnce()
	// The sleep completed before the flag was observed, so exactly two
	// iterations ran their full body.
	assert.Equal(t, 2, f.sleeps)
	assert.Equal(t, 2, f.Kernel.countOps("read-stats"))
}

func TestAttachFallbackOrder(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	f.Kernel.refuseModes[xdpfwd.ModeOffload] = true
	f.Kernel.refuseModes[xdpfwd.ModeDriver] = true

	cfg := f.LoadConfig()
	cfg.Time = 1

	require.NoError(t, f.run(cfg, config.Overrides{}, xdpfwd.AttachOpts{Offload: true, Generic: true}))

	names := f.Kernel.opNames()
	assert.Equal(t, "attach:offload", names[2])
	assert.Equal(t, "attach:driver", names[3])
	assert.Equal(t, "attach:generic", names[4])

	sessions := f.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, xdpfwd.ModeGeneric, sessions[0].Mode)
}

func TestAttachExhaustedLeavesNoPartialState(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	f.Kernel.refuseModes[xdpfwd.ModeDriver] = true

	err := f.run(f.LoadConfig(), config.Overrides{}, xdpfwd.AttachOpts{})
	require.Error(t, err)

	var exhausted xdpfwd.ErrAttachExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "eth0", exhausted.Interface)

	assert.Zero(t, f.Kernel.countOps("pin"), "no pinning after failed attach")
	assert.Zero(t, f.Kernel.countOps("apply-rules"), "no rule writes after failed attach")
	assert.Zero(t, f.Kernel.countOps("detach"), "nothing attached, nothing to detach")
	assert.Equal(t, 1, f.Kernel.countOps("close"), "in-process handles released")
	assert.Empty(t, f.Sessions(), "no session recorded")
}

func TestMissingMandatoryMapIsFatal(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	f.Kernel.resolveErr = xdpfwd.ErrMapMissing{Name: "map_stats"}

	err := f.run(f.LoadConfig(), config.Overrides{}, xdpfwd.AttachOpts{})
	require.Error(t, err)

	var missing xdpfwd.ErrMapMissing
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "map_stats", missing.Name)

	assert.Zero(t, f.Kernel.countOps("pin"), "abort before pinning side effects")
}

func TestPinFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	f.Kernel.pinErr = errors.New("bpffs full")

	cfg := f.LoadConfig()
	cfg.Time = 1
	cfg.PinMaps = true

	require.NoError(t, f.run(cfg, config.Overrides{}, xdpfwd.AttachOpts{}))

	f.AssertDetachedOnce()
	assert.Zero(t, f.Kernel.countOps("unpin"), "nothing pinned, nothing to unpin")
}

func TestDetachFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	f.Kernel.detachErr = errors.New("link gone")

	cfg := f.LoadConfig()
	cfg.Time = 1

	err := f.run(cfg, config.Overrides{}, xdpfwd.AttachOpts{})
	require.ErrorContains(t, err, "detach during shutdown")

	// The in-process handles are still released.
	assert.Equal(t, 1, f.Kernel.countOps("close"))

	sessions := f.Sessions()
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].Clean)
}

func TestUnpinFailureIsWarningOnly(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	f.Kernel.unpinErr = errors.New("pin busy")

	cfg := f.LoadConfig()
	cfg.Time = 1
	cfg.PinMaps = true

	require.NoError(t, f.run(cfg, config.Overrides{}, xdpfwd.AttachOpts{}))

	assert.Equal(t, 1, f.Kernel.countOps("unpin"))
	sessions := f.Sessions()
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Clean, "unpin failure does not dirty the session")
}

func TestNoInterfaceIsFatal(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig("stdout_update_time: 1\n", f.Clock.Now().Add(-time.Minute))

	err := f.run(f.LoadConfig(), config.Overrides{}, xdpfwd.AttachOpts{})
	require.ErrorContains(t, err, "no interface specified")
	assert.Zero(t, f.Kernel.countOps("prepare"), "fails before touching the kernel")
}

func TestInterfaceResolutionFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	iface := "missing0"
	err := f.run(config.Overrides{Interface: &iface}.Apply(f.LoadConfig()), config.Overrides{}, xdpfwd.AttachOpts{})

	var notFound xdpfwd.ErrInterfaceNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestStatsReadFailureDoesNotStopLoop(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	f.Kernel.statsErr = fmt.Errorf("bad map fd")

	cfg := f.LoadConfig()
	cfg.Time = 3

	require.NoError(t, f.run(cfg, config.Overrides{}, xdpfwd.AttachOpts{}))

	assert.Equal(t, 4, f.Kernel.countOps("read-stats"), "loop kept its cadence")
	f.AssertDetachedOnce()
}

func TestNoStatsSkipsSampling(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	cfg := f.LoadConfig()
	cfg.Time = 2
	cfg.NoStats = true

	require.NoError(t, f.run(cfg, config.Overrides{}, xdpfwd.AttachOpts{}))

	assert.Zero(t, f.Kernel.countOps("read-stats"))
}

func TestEventDrainingWhenLogPresent(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	f.Kernel.eventLog = true

	cfg := f.LoadConfig()
	cfg.Time = 2

	require.NoError(t, f.run(cfg, config.Overrides{}, xdpfwd.AttachOpts{}))

	assert.Equal(t, 3, f.Kernel.countOps("drain-events"))
}

func TestNoEventLogSkipsDraining(t *testing.T) {
	f := newFixture(t)
	f.WriteConfig(baseConfig, f.Clock.Now().Add(-time.Minute))

	cfg := f.LoadConfig()
	cfg.Time = 2

	require.NoError(t, f.run(cfg, config.Overrides{}, xdpfwd.AttachOpts{}))

	assert.Zero(t, f.Kernel.countOps("drain-events"))
}
