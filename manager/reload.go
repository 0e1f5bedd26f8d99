package manager

import (
	"context"
	"time"

	"github.com/frobware/xdpfwd"
	"github.com/frobware/xdpfwd/config"
	"github.com/frobware/xdpfwd/rules"
	"github.com/frobware/xdpfwd/stats"
)

func (m *Manager) mtime() (time.Time, error) {
	return config.Mtime(m.cfgPath)
}

// maybeReload evaluates the reload decision for this iteration. A
// reload happens only when the interval has elapsed since the last
// check AND the file's mtime is strictly newer than the last observed
// one; an elapsed timer with an unchanged file is a no-op. A parse
// failure keeps the previous configuration authoritative and is not
// retried until the next interval.
func (m *Manager) maybeReload(ctx context.Context, now time.Time) {
	interval := m.cfg.ReloadInterval()
	if interval <= 0 {
		return
	}
	if now.Sub(m.lastCheck) < interval {
		return
	}

	// FETCH: stat the file before touching its contents.
	mtime, err := m.mtime()
	if err != nil {
		m.logger.Warn("failed to stat config file", "path", m.cfgPath, "error", err)
		m.lastCheck = now
		return
	}
	if !mtime.After(m.lastMtime) {
		m.lastCheck = now
		return
	}

	m.logger.Debug("config file changed, reloading",
		"path", m.cfgPath, "mtime", mtime)

	fileCfg, _, err := config.Load(m.cfgPath)
	if err != nil {
		m.logger.Warn("failed to reload config, keeping previous",
			"path", m.cfgPath, "error", err)
		m.recordReload(ctx, now, mtime, false)
		m.lastCheck = now
		return
	}

	// Flags given at startup always win over file contents.
	newCfg := m.overrides.Apply(fileCfg)

	// COMPUTE: diff the rule sets.
	plan, err := rules.Plan(m.current, newCfg.Rules)
	if err != nil {
		m.logger.Warn("failed to compute rule updates, keeping previous",
			"error", err)
		m.recordReload(ctx, now, mtime, false)
		m.lastCheck = now
		return
	}

	// EXECUTE: push the diff to the kernel table. On failure nothing
	// is recorded as applied: the mtime stays unobserved so the next
	// interval re-parses and re-pushes against the rules the kernel
	// actually holds.
	if err := m.kernel.ApplyRules(plan); err != nil {
		m.logger.Warn("failed to push rule updates", "error", err)
		m.recordReload(ctx, now, mtime, false)
		m.lastCheck = now
		return
	}
	if len(plan) > 0 {
		m.logger.Info("updated forwarding rules",
			"ops", len(plan), "rules", len(newCfg.Rules))
	}
	m.current = newCfg.Rules

	statsWereOff := m.cfg.NoStats
	m.cfg = newCfg

	// Stats newly enabled: start reporting on the next iteration with
	// a fresh rate baseline.
	if statsWereOff && !newCfg.NoStats {
		m.doingStats = true
		m.agg = stats.NewAggregator(newCfg.StatsPerSecond)
	} else if newCfg.NoStats {
		m.doingStats = false
	}

	m.recordReload(ctx, now, mtime, true)
	m.lastCheck = now
	m.lastMtime = mtime
}

func (m *Manager) recordReload(ctx context.Context, at, mtime time.Time, ok bool) {
	if m.store == nil || m.sessionID == 0 {
		return
	}
	err := m.store.RecordReload(ctx, xdpfwd.ReloadEvent{
		SessionID:   m.sessionID,
		At:          at,
		ConfigMtime: mtime,
		OK:          ok,
	})
	if err != nil {
		m.logger.Warn("failed to record reload event", "error", err)
	}
}
