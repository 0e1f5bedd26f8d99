package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/frobware/xdpfwd"
	"github.com/frobware/xdpfwd/config"
	"github.com/frobware/xdpfwd/rules"
	"github.com/frobware/xdpfwd/stats"
)

// RunSettings carries everything Run needs that was decided at
// startup: the parsed configuration, the CLI overrides to reapply on
// reload, and the attach-mode permissions.
type RunSettings struct {
	ConfigPath string
	ObjectPath string
	Config     config.Runtime
	Overrides  config.Overrides
	Attach     xdpfwd.AttachOpts
}

// Run brings the kernel program into its attached state, drives the
// control loop until a termination condition, and tears down. The
// returned error is non-nil only for fatal conditions: startup
// failures or a failed detach during shutdown.
func (m *Manager) Run(ctx context.Context, settings RunSettings) error {
	if err := m.startup(ctx, settings); err != nil {
		m.closeSession(ctx, false)
		m.kernel.Close()
		return err
	}

	m.loop(ctx)

	return m.shutdown(ctx)
}

// startup performs the acquisition sequence. Order matters: the
// attachment must exist before maps are resolved, maps before pinning,
// pinning before the first rule push.
func (m *Manager) startup(ctx context.Context, settings RunSettings) error {
	m.cfg = settings.Config
	m.overrides = settings.Overrides
	m.cfgPath = settings.ConfigPath

	if m.cfg.Interface == "" {
		return fmt.Errorf("no interface specified in config or CLI override")
	}

	m.logger.Debug("raising resource limits")
	if err := m.kernel.Prepare(); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}

	m.logger.Debug("resolving interface index", "interface", m.cfg.Interface)
	ifindex, err := m.resolveIfindex(m.cfg.Interface)
	if err != nil {
		return fmt.Errorf("resolve interface: %w", err)
	}

	m.logger.Debug("loading XDP object", "path", settings.ObjectPath)
	if err := m.kernel.Load(settings.ObjectPath); err != nil {
		return fmt.Errorf("load object %s: %w", settings.ObjectPath, err)
	}

	modes := xdpfwd.Candidates(settings.Attach)
	mode, err := m.kernel.Attach(ifindex, m.cfg.Interface, modes)
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}

	m.attachment = xdpfwd.Attachment{
		Interface:  m.cfg.Interface,
		Ifindex:    ifindex,
		Mode:       mode,
		ObjectPath: settings.ObjectPath,
		AttachedAt: m.clock(),
	}
	m.logger.Info("attached XDP program",
		"interface", m.cfg.Interface, "ifindex", ifindex, "mode", mode)

	if err := m.kernel.ResolveMaps(); err != nil {
		return fmt.Errorf("resolve maps: %w", err)
	}

	if m.cfg.PinMaps {
		if err := m.kernel.PinRules(m.paths.PinDir()); err != nil {
			m.logger.Warn("failed to pin maps, continuing without persistence",
				"error", err)
		} else {
			m.pinned = true
		}
	}

	// Initial rule push: the kernel table starts empty, so the plan
	// is pure inserts.
	plan, err := rules.Plan(nil, m.cfg.Rules)
	if err != nil {
		return fmt.Errorf("compute initial rules: %w", err)
	}
	if err := m.kernel.ApplyRules(plan); err != nil {
		return fmt.Errorf("push initial rules: %w", err)
	}
	m.current = m.cfg.Rules
	m.logger.Info("pushed forwarding rules", "count", len(m.cfg.Rules))

	m.doingStats = !m.cfg.NoStats
	m.agg = stats.NewAggregator(m.cfg.StatsPerSecond)

	if mtime, err := m.mtime(); err == nil {
		m.lastMtime = mtime
	}
	m.lastCheck = m.clock()

	m.openSession(ctx)

	return nil
}

func (m *Manager) openSession(ctx context.Context) {
	if m.store == nil {
		return
	}

	pinDir := ""
	if m.pinned {
		pinDir = m.paths.PinDir()
	}

	id, err := m.store.CreateSession(ctx, xdpfwd.Session{
		Interface:  m.attachment.Interface,
		Mode:       m.attachment.Mode,
		ObjectPath: m.attachment.ObjectPath,
		PinDir:     pinDir,
		StartedAt:  m.attachment.AttachedAt,
	})
	if err != nil {
		m.logger.Warn("failed to record session start", "error", err)
		return
	}
	m.sessionID = id
}

// loop is the RUNNING state. It exits only via duration expiry or the
// termination flag, both observed at iteration boundaries; an
// in-progress sleep always completes, bounding shutdown latency at one
// display interval.
func (m *Manager) loop(ctx context.Context) {
	var deadline time.Time
	if d := m.cfg.RunDuration(); d > 0 {
		deadline = m.clock().Add(d)
	}

	for {
		now := m.clock()

		shuttingDown := !deadline.IsZero() && !now.Before(deadline)
		if shuttingDown {
			m.logger.Info("run duration elapsed")
		}

		m.maybeReload(ctx, now)

		if m.doingStats {
			m.sampleStats(now)
		}

		m.drainEvents()

		if !shuttingDown {
			m.sleep(m.cfg.DisplayInterval())
		}

		if m.term.Load() {
			shuttingDown = true
		}
		if shuttingDown {
			return
		}
	}
}

func (m *Manager) sampleStats(now time.Time) {
	totals, err := m.kernel.ReadStats()
	if err != nil {
		m.logger.Warn("failed to read stats", "error", err)
		return
	}

	sample := m.agg.Observe(totals, now)
	m.logger.Info(sample.String())

	if m.exporter != nil {
		m.exporter.Update(totals)
	}
}

func (m *Manager) drainEvents() {
	if !m.kernel.HasEventLog() {
		return
	}

	events, err := m.kernel.DrainEvents(eventDrainBatch)
	if err != nil {
		m.logger.Warn("failed to drain events", "error", err)
		return
	}
	for _, ev := range events {
		m.logger.Info("rule matched", "event", ev.String())
	}
}

// shutdown runs the release sequence in strict reverse order of
// acquisition. Detach failure is fatal: a dangling attachment keeps
// filtering with stale state after this process exits. Unpin failure
// is a warning; the next startup self-heals. The in-process handles
// are always released.
func (m *Manager) shutdown(ctx context.Context) error {
	m.logger.Info("shutting down", "interface", m.attachment.Interface)

	detachErr := m.kernel.Detach()
	if detachErr != nil {
		m.logger.Error("failed to detach XDP program",
			"interface", m.attachment.Interface, "error", detachErr)
	}

	if m.pinned {
		if err := m.kernel.UnpinRules(m.paths.PinDir()); err != nil {
			m.logger.Warn("failed to unpin maps", "error", err)
		}
	}

	m.kernel.Close()
	m.closeSession(ctx, detachErr == nil)

	if detachErr != nil {
		return fmt.Errorf("detach during shutdown: %w", detachErr)
	}
	return nil
}
