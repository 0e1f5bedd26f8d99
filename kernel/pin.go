package kernel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// PinRules pins the rules map under pinDir so a later process can
// rediscover it. A stale pin from a crashed run is removed first,
// errors ignored; the fresh pin then succeeds where a plain pin would
// hit EEXIST.
func (a *Adapter) PinRules(pinDir string) error {
	if a.rulesMap == nil {
		return errors.New("rules map not resolved")
	}

	if err := os.MkdirAll(pinDir, 0755); err != nil {
		return fmt.Errorf("create pin directory %s: %w", pinDir, err)
	}

	pinPath := filepath.Join(pinDir, RulesMapName)

	if err := os.Remove(pinPath); err != nil && !os.IsNotExist(err) {
		a.logger.Debug("removing stale pin", "path", pinPath, "error", err)
	}

	if err := a.rulesMap.Pin(pinPath); err != nil {
		return fmt.Errorf("pin %s: %w", pinPath, err)
	}

	a.logger.Debug("pinned rules map", "path", pinPath)
	return nil
}

// UnpinRules removes the rules map pin. Called during shutdown; the
// caller treats failure as a warning since the next startup self-heals.
func (a *Adapter) UnpinRules(pinDir string) error {
	if a.rulesMap == nil {
		return nil
	}

	if err := a.rulesMap.Unpin(); err != nil {
		return fmt.Errorf("unpin %s: %w", filepath.Join(pinDir, RulesMapName), err)
	}
	return nil
}
