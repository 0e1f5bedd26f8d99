package kernel

import (
	"errors"
	"os"
	"time"

	"github.com/cilium/ebpf/ringbuf"

	"github.com/frobware/xdpfwd/rules"
)

// DrainEvents reads pending rule-match events without blocking, up to
// max records per call so one busy ring cannot starve the control
// loop. Returns nil when no event log is available.
func (a *Adapter) DrainEvents(max int) ([]rules.Event, error) {
	if a.events == nil {
		return nil, nil
	}

	// An already-expired deadline turns Read into a poll.
	a.events.SetDeadline(time.Now())

	var drained []rules.Event
	for len(drained) < max {
		record, err := a.events.Read()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, ringbuf.ErrClosed) {
				break
			}
			return drained, err
		}

		ev, err := rules.DecodeEvent(record.RawSample)
		if err != nil {
			a.logger.Warn("discarding undecodable event", "error", err)
			continue
		}
		drained = append(drained, ev)
	}

	return drained, nil
}
