package manager_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frobware/xdpfwd"
	"github.com/frobware/xdpfwd/config"
	"github.com/frobware/xdpfwd/manager"
	"github.com/frobware/xdpfwd/rules"
	"github.com/frobware/xdpfwd/stats"
	"github.com/frobware/xdpfwd/store/sqlite"
)

// testLogger returns a logger for tests. By default it discards all
// output. Set XDPFWD_TEST_VERBOSE=1 to enable logging.
func testLogger() *slog.Logger {
	if os.Getenv("XDPFWD_TEST_VERBOSE") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manual time source. Sleep advances it instantly, so
// multi-minute control loop scenarios run in microseconds.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// kernelOp is one recorded fake kernel call.
type kernelOp struct {
	Op  string
	Err error
}

// fakeKernel records the operation sequence the manager drives and
// fails on demand.
type fakeKernel struct {
	ops []kernelOp

	refuseModes map[xdpfwd.AttachMode]bool
	prepareErr  error
	loadErr     error
	resolveErr  error
	pinErr      error
	unpinErr    error
	detachErr   error
	statsErr    error

	// applyErrs fails ApplyRules by 1-based call number.
	applyErrs map[int]error

	eventLog bool
	events   []rules.Event

	counters stats.Counters
	plans    [][]rules.Op
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{refuseModes: make(map[xdpfwd.AttachMode]bool)}
}

func (k *fakeKernel) record(op string, err error) error {
	k.ops = append(k.ops, kernelOp{Op: op, Err: err})
	return err
}

func (k *fakeKernel) Prepare() error {
	return k.record("prepare", k.prepareErr)
}

func (k *fakeKernel) Load(objectPath string) error {
	return k.record("load", k.loadErr)
}

func (k *fakeKernel) Attach(ifindex int, ifname string, modes []xdpfwd.AttachMode) (xdpfwd.AttachMode, error) {
	for _, mode := range modes {
		if k.refuseModes[mode] {
			k.record("attach:"+string(mode), fmt.Errorf("mode %s refused", mode))
			continue
		}
		k.record("attach:"+string(mode), nil)
		return mode, nil
	}
	err := xdpfwd.ErrAttachExhausted{Interface: ifname, Tried: modes}
	k.ops = append(k.ops, kernelOp{Op: "attach-exhausted", Err: err})
	return "", err
}

func (k *fakeKernel) Detach() error {
	return k.record("detach", k.detachErr)
}

func (k *fakeKernel) ResolveMaps() error {
	return k.record("resolve-maps", k.resolveErr)
}

func (k *fakeKernel) PinRules(pinDir string) error {
	return k.record("pin", k.pinErr)
}

func (k *fakeKernel) UnpinRules(pinDir string) error {
	return k.record("unpin", k.unpinErr)
}

func (k *fakeKernel) ApplyRules(ops []rules.Op) error {
	k.plans = append(k.plans, ops)
	return k.record("apply-rules", k.applyErrs[len(k.plans)])
}

func (k *fakeKernel) ReadStats() (stats.Counters, error) {
	if err := k.record("read-stats", k.statsErr); err != nil {
		return stats.Counters{}, err
	}
	k.counters.FwdPackets += 100
	k.counters.FwdBytes += 6400
	return k.counters, nil
}

func (k *fakeKernel) DrainEvents(max int) ([]rules.Event, error) {
	k.record("drain-events", nil)
	drained := k.events
	k.events = nil
	return drained, nil
}

func (k *fakeKernel) HasEventLog() bool {
	return k.eventLog
}

func (k *fakeKernel) Close() error {
	return k.record("close", nil)
}

// countOps returns how many recorded operations match op.
func (k *fakeKernel) countOps(op string) int {
	n := 0
	for _, o := range k.ops {
		if o.Op == op {
			n++
		}
	}
	return n
}

// opNames returns the recorded operation names in order.
func (k *fakeKernel) opNames() []string {
	names := make([]string, len(k.ops))
	for i, o := range k.ops {
		names[i] = o.Op
	}
	return names
}

// fixture wires a Manager to a fake kernel, fake clock, and an
// in-memory store.
type fixture struct {
	Manager *manager.Manager
	Kernel  *fakeKernel
	Store   xdpfwd.Store
	Clock   *fakeClock
	Paths   config.Paths

	ConfigPath string
	t          *testing.T

	// afterSleep, when set, runs after every control loop sleep with
	// the 1-based sleep count.
	afterSleep func(n int)
	sleeps     int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tmp := t.TempDir()
	paths, err := config.NewPaths(filepath.Join(tmp, "bpf"), filepath.Join(tmp, "state"))
	require.NoError(t, err)

	store, err := sqlite.NewInMemory(context.Background(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		Kernel:     newFakeKernel(),
		Store:      store,
		Clock:      newFakeClock(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)),
		Paths:      paths,
		ConfigPath: filepath.Join(tmp, "xdpfwd.yaml"),
		t:          t,
	}

	f.Manager = manager.New(paths, f.Kernel,
		manager.WithLogger(testLogger()),
		manager.WithStore(store),
		manager.WithClock(f.Clock.Now),
		manager.WithSleep(func(d time.Duration) {
			f.Clock.Sleep(d)
			f.sleeps++
			if f.afterSleep != nil {
				f.afterSleep(f.sleeps)
			}
		}),
		manager.WithInterfaceResolver(func(name string) (int, error) {
			if name == "missing0" {
				return 0, xdpfwd.ErrInterfaceNotFound{Interface: name}
			}
			return 7, nil
		}),
	)

	return f
}

// WriteConfig writes content to the fixture's config file and stamps
// it with mtime.
func (f *fixture) WriteConfig(content string, mtime time.Time) {
	f.t.Helper()
	require.NoError(f.t, os.WriteFile(f.ConfigPath, []byte(content), 0600))
	require.NoError(f.t, os.Chtimes(f.ConfigPath, mtime, mtime))
}

// LoadConfig parses the fixture's config file.
func (f *fixture) LoadConfig() config.Runtime {
	f.t.Helper()
	cfg, _, err := config.Load(f.ConfigPath)
	require.NoError(f.t, err)
	return cfg
}

// Settings builds RunSettings from the fixture's config file.
func (f *fixture) Settings(cfg config.Runtime, overrides config.Overrides, attach xdpfwd.AttachOpts) manager.RunSettings {
	return manager.RunSettings{
		ConfigPath: f.ConfigPath,
		ObjectPath: "/usr/lib/xdpfwd/xdpfwd.o",
		Config:     cfg,
		Overrides:  overrides,
		Attach:     attach,
	}
}

// AssertDetachedOnce verifies the attach/detach pairing invariant.
func (f *fixture) AssertDetachedOnce() {
	f.t.Helper()
	assert.Equal(f.t, 1, f.Kernel.countOps("detach"), "expected exactly one detach")
}

// Sessions returns all recorded sessions, newest first.
func (f *fixture) Sessions() []xdpfwd.Session {
	f.t.Helper()
	sessions, err := f.Store.ListSessions(context.Background(), 100)
	require.NoError(f.t, err)
	return sessions
}
