package kernel

import (
	"errors"
	"fmt"

	"github.com/frobware/xdpfwd/stats"
)

// ReadStats reads the per-CPU counter records from the stats map and
// sums them. The kernel program writes only its own CPU's slot, so a
// racing read sees at worst a slightly stale slot, never a torn one.
func (a *Adapter) ReadStats() (stats.Counters, error) {
	if a.statsMap == nil {
		return stats.Counters{}, errors.New("stats map not resolved")
	}

	var records []stats.Counters
	if err := a.statsMap.Lookup(uint32(0), &records); err != nil {
		return stats.Counters{}, fmt.Errorf("lookup stats map: %w", err)
	}

	return stats.Sum(records), nil
}
