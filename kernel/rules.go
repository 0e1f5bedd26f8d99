package kernel

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"

	"github.com/frobware/xdpfwd/rules"
)

// ApplyRules applies a planned set of rule-table mutations. Deletes of
// already-absent keys are tolerated so a replayed plan is idempotent.
func (a *Adapter) ApplyRules(ops []rules.Op) error {
	if a.rulesMap == nil {
		return errors.New("rules map not resolved")
	}

	for _, op := range ops {
		if op.Delete {
			if err := a.rulesMap.Delete(op.Key[:]); err != nil && !errors.Is(err, ebpf.ErrKeyNotExist) {
				return fmt.Errorf("delete rule: %w", err)
			}
			continue
		}
		if err := a.rulesMap.Put(op.Key[:], op.Value[:]); err != nil {
			return fmt.Errorf("put rule: %w", err)
		}
	}

	a.logger.Debug("applied rule updates", "ops", len(ops))
	return nil
}
