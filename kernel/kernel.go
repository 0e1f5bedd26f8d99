// Package kernel wraps the cilium/ebpf operations xdpfwd performs
// against the loaded XDP program: loading, attachment, map access,
// pinning and the event ring buffer.
package kernel

import (
	"fmt"
	"log/slog"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
)

// Map names as declared in the XDP object.
const (
	StatsMapName = "map_stats"
	RulesMapName = "map_fwd_rules"
	EventMapName = "xdpfwd_events"
)

// Adapter owns the kernel-side handles for one loaded program. It is
// used from a single goroutine; methods are not safe for concurrent
// use.
type Adapter struct {
	logger *slog.Logger

	coll *ebpf.Collection
	prog *ebpf.Program
	lnk  link.Link

	statsMap *ebpf.Map
	rulesMap *ebpf.Map
	eventMap *ebpf.Map

	events *ringbuf.Reader
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger for kernel operations.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger.With("component", "kernel")
	}
}

// New creates an Adapter with no program loaded.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Prepare removes the memlock rlimit so BPF maps can be created on
// kernels that still account them against RLIMIT_MEMLOCK.
func (a *Adapter) Prepare() error {
	if err := rlimit.RemoveMemlock(); err != nil {
		return fmt.Errorf("remove memlock rlimit: %w", err)
	}
	return nil
}

// HasEventLog reports whether the optional event ring buffer was found
// at map resolution time.
func (a *Adapter) HasEventLog() bool {
	return a.events != nil
}

// Close releases every kernel handle still held. Safe to call after a
// partial startup; nil handles are skipped.
func (a *Adapter) Close() error {
	if a.events != nil {
		a.events.Close()
		a.events = nil
	}
	if a.lnk != nil {
		a.lnk.Close()
		a.lnk = nil
	}
	if a.coll != nil {
		a.coll.Close()
		a.coll = nil
	}
	a.prog = nil
	a.statsMap = nil
	a.rulesMap = nil
	a.eventMap = nil
	return nil
}
