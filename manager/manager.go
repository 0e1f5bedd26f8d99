// Package manager orchestrates the xdpfwd runtime: startup sequencing
// (prepare, load, attach, resolve, pin, initial rule push), the
// control loop (reload checks, stats cadence, event draining), and the
// shutdown sequence in strict reverse order of acquisition.
package manager

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/frobware/xdpfwd"
	"github.com/frobware/xdpfwd/config"
	"github.com/frobware/xdpfwd/kernel"
	"github.com/frobware/xdpfwd/rules"
	"github.com/frobware/xdpfwd/stats"
)

// Kernel is the set of kernel-side operations the manager drives. The
// production implementation is kernel.Adapter; tests substitute a fake
// to exercise sequencing without a privileged environment.
type Kernel interface {
	Prepare() error
	Load(objectPath string) error
	Attach(ifindex int, ifname string, modes []xdpfwd.AttachMode) (xdpfwd.AttachMode, error)
	Detach() error
	ResolveMaps() error
	PinRules(pinDir string) error
	UnpinRules(pinDir string) error
	ApplyRules(ops []rules.Op) error
	ReadStats() (stats.Counters, error)
	DrainEvents(max int) ([]rules.Event, error)
	HasEventLog() bool
	Close() error
}

// eventDrainBatch bounds how many ring buffer events one iteration
// consumes, so a flood cannot stall the reload and stats cadence.
const eventDrainBatch = 64

// Manager owns the runtime state for one attach-to-detach session.
// All fields are accessed from the single control goroutine; the
// termination flag is the only cross-goroutine state and is atomic.
type Manager struct {
	paths  config.Paths
	kernel Kernel
	store  xdpfwd.Store
	logger *slog.Logger

	exporter       *stats.Exporter
	clock          func() time.Time
	sleep          func(time.Duration)
	resolveIfindex func(name string) (int, error)

	term atomic.Bool

	// Session state, valid between startup and shutdown.
	cfg       config.Runtime
	overrides config.Overrides
	cfgPath   string

	attachment xdpfwd.Attachment
	sessionID  int64
	pinned     bool

	current    []rules.Rule
	agg        *stats.Aggregator
	doingStats bool

	lastCheck time.Time
	lastMtime time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger.With("component", "manager")
	}
}

// WithStore records sessions and reload events in store.
func WithStore(store xdpfwd.Store) Option {
	return func(m *Manager) { m.store = store }
}

// WithExporter publishes each stats sample to exporter.
func WithExporter(exporter *stats.Exporter) Option {
	return func(m *Manager) { m.exporter = exporter }
}

// WithClock substitutes the time source. Tests use this to drive the
// reload interval without sleeping.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithSleep substitutes the control loop's sleep.
func WithSleep(sleep func(time.Duration)) Option {
	return func(m *Manager) { m.sleep = sleep }
}

// WithInterfaceResolver substitutes interface name resolution.
func WithInterfaceResolver(resolve func(name string) (int, error)) Option {
	return func(m *Manager) { m.resolveIfindex = resolve }
}

// New creates a Manager driving k.
func New(paths config.Paths, k Kernel, opts ...Option) *Manager {
	m := &Manager{
		paths:          paths,
		kernel:         k,
		logger:         slog.Default().With("component", "manager"),
		clock:          time.Now,
		sleep:          time.Sleep,
		resolveIfindex: kernel.ResolveInterface,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestStop sets the termination flag. Safe to call from any
// goroutine, including a signal-delivery goroutine; it does nothing
// but flip the flag. The control loop honours it at the next iteration
// boundary, after any in-progress sleep completes.
func (m *Manager) RequestStop() {
	m.term.Store(true)
}

// closeSession records the session end in the store, if one is open.
func (m *Manager) closeSession(ctx context.Context, clean bool) {
	if m.store == nil || m.sessionID == 0 {
		return
	}
	if err := m.store.CloseSession(ctx, m.sessionID, m.clock(), clean); err != nil {
		m.logger.Warn("failed to record session end", "error", err)
	}
	m.sessionID = 0
}
