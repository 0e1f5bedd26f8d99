package kernel

import (
	"errors"

	"github.com/cilium/ebpf/ringbuf"

	"github.com/frobware/xdpfwd"
)

// ResolveMaps locates the stats and rules maps, which are mandatory,
// and the optional event ring buffer. A missing event map disables
// event draining for the rest of the run; a missing mandatory map
// means the loaded object does not match the expected schema.
func (a *Adapter) ResolveMaps() error {
	if a.coll == nil {
		return errors.New("no collection loaded")
	}

	a.statsMap = a.coll.Maps[StatsMapName]
	if a.statsMap == nil {
		return xdpfwd.ErrMapMissing{Name: StatsMapName}
	}

	a.rulesMap = a.coll.Maps[RulesMapName]
	if a.rulesMap == nil {
		return xdpfwd.ErrMapMissing{Name: RulesMapName}
	}

	a.eventMap = a.coll.Maps[EventMapName]
	if a.eventMap == nil {
		a.logger.Warn("event map not found, rule event logging disabled",
			"map", EventMapName)
		return nil
	}

	reader, err := ringbuf.NewReader(a.eventMap)
	if err != nil {
		a.eventMap = nil
		a.logger.Warn("event ring buffer unavailable, rule event logging disabled",
			"map", EventMapName, "error", err)
		return nil
	}
	a.events = reader

	return nil
}
