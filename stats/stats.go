// Package stats aggregates the kernel program's per-CPU counters into
// totals and per-second rates.
package stats

import (
	"fmt"
	"time"
)

// Counters mirrors one record of the per-CPU stats map. The kernel
// program bumps its own CPU's slot without synchronization; userspace
// sums the slots.
type Counters struct {
	FwdPackets  uint64
	FwdBytes    uint64
	PassPackets uint64
	PassBytes   uint64
	DropPackets uint64
	DropBytes   uint64
}

// Add accumulates other into c.
func (c *Counters) Add(other Counters) {
	c.FwdPackets += other.FwdPackets
	c.FwdBytes += other.FwdBytes
	c.PassPackets += other.PassPackets
	c.PassBytes += other.PassBytes
	c.DropPackets += other.DropPackets
	c.DropBytes += other.DropBytes
}

// Sum collapses per-CPU records into a single total.
func Sum(records []Counters) Counters {
	var total Counters
	for _, r := range records {
		total.Add(r)
	}
	return total
}

// Rates is packets/bytes per second since the previous sample.
type Rates struct {
	FwdPPS  float64
	FwdBPS  float64
	PassPPS float64
	PassBPS float64
	DropPPS float64
	DropBPS float64
}

// Sample is one aggregated observation. PerSecond records which mode
// the aggregator was in, so a zero-rate sample still renders as rates.
type Sample struct {
	At        time.Time
	Totals    Counters
	Rates     Rates
	PerSecond bool
}

// Aggregator turns successive counter totals into samples. It keeps
// the previous observation for rate computation; the first observation
// after construction or Reset has no baseline and reports zero rates.
type Aggregator struct {
	perSecond bool
	havePrev  bool
	prev      Counters
	prevAt    time.Time
}

// NewAggregator returns an Aggregator. When perSecond is false,
// samples carry totals only.
func NewAggregator(perSecond bool) *Aggregator {
	return &Aggregator{perSecond: perSecond}
}

// Reset drops the rate baseline. Call when stats are re-enabled after
// being off, so the next sample does not report a spurious spike.
func (a *Aggregator) Reset() {
	a.havePrev = false
}

// Observe records totals at now and returns the resulting sample.
func (a *Aggregator) Observe(totals Counters, now time.Time) Sample {
	sample := Sample{At: now, Totals: totals, PerSecond: a.perSecond}

	if a.perSecond && a.havePrev {
		if elapsed := now.Sub(a.prevAt).Seconds(); elapsed > 0 {
			sample.Rates = Rates{
				FwdPPS:  delta(totals.FwdPackets, a.prev.FwdPackets) / elapsed,
				FwdBPS:  delta(totals.FwdBytes, a.prev.FwdBytes) / elapsed,
				PassPPS: delta(totals.PassPackets, a.prev.PassPackets) / elapsed,
				PassBPS: delta(totals.PassBytes, a.prev.PassBytes) / elapsed,
				DropPPS: delta(totals.DropPackets, a.prev.DropPackets) / elapsed,
				DropBPS: delta(totals.DropBytes, a.prev.DropBytes) / elapsed,
			}
		}
	}

	a.prev = totals
	a.prevAt = now
	a.havePrev = true

	return sample
}

// delta guards against counter resets (e.g. a reloaded kernel program)
// producing negative rates.
func delta(cur, prev uint64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur - prev)
}

// String renders the sample as one stats line.
func (s Sample) String() string {
	if s.PerSecond {
		return fmt.Sprintf("fwd %d pkts (%.0f pps, %.0f Bps) | pass %d pkts (%.0f pps, %.0f Bps) | drop %d pkts (%.0f pps, %.0f Bps)",
			s.Totals.FwdPackets, s.Rates.FwdPPS, s.Rates.FwdBPS,
			s.Totals.PassPackets, s.Rates.PassPPS, s.Rates.PassBPS,
			s.Totals.DropPackets, s.Rates.DropPPS, s.Rates.DropBPS)
	}
	return fmt.Sprintf("fwd %d pkts / %d bytes | pass %d pkts / %d bytes | drop %d pkts / %d bytes",
		s.Totals.FwdPackets, s.Totals.FwdBytes,
		s.Totals.PassPackets, s.Totals.PassBytes,
		s.Totals.DropPackets, s.Totals.DropBytes)
}
