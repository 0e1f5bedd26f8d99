package kernel

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf/link"

	"github.com/frobware/xdpfwd"
)

func xdpFlags(mode xdpfwd.AttachMode) (link.XDPAttachFlags, error) {
	switch mode {
	case xdpfwd.ModeOffload:
		return link.XDPOffloadMode, nil
	case xdpfwd.ModeDriver:
		return link.XDPDriverMode, nil
	case xdpfwd.ModeGeneric:
		return link.XDPGenericMode, nil
	default:
		return 0, fmt.Errorf("unknown attach mode %q", mode)
	}
}

// Attach tries each candidate mode in order and keeps the first that
// the kernel accepts. On exhaustion no attachment state is retained.
func (a *Adapter) Attach(ifindex int, ifname string, modes []xdpfwd.AttachMode) (xdpfwd.AttachMode, error) {
	if a.prog == nil {
		return "", errors.New("no program loaded")
	}

	for _, mode := range modes {
		flags, err := xdpFlags(mode)
		if err != nil {
			return "", err
		}

		lnk, err := link.AttachXDP(link.XDPOptions{
			Program:   a.prog,
			Interface: ifindex,
			Flags:     flags,
		})
		if err != nil {
			a.logger.Debug("attach mode refused",
				"interface", ifname, "mode", mode, "error", err)
			continue
		}

		a.lnk = lnk
		return mode, nil
	}

	return "", xdpfwd.ErrAttachExhausted{Interface: ifname, Tried: modes}
}

// Detach removes the XDP attachment. A failed detach leaves the
// program running in the kernel after process exit, so the error must
// reach the caller.
func (a *Adapter) Detach() error {
	if a.lnk == nil {
		return nil
	}
	err := a.lnk.Close()
	a.lnk = nil
	if err != nil {
		return fmt.Errorf("detach XDP link: %w", err)
	}
	return nil
}
