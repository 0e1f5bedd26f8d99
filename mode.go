package xdpfwd

// AttachMode identifies how the XDP program is hooked into an
// interface's receive path.
type AttachMode string

const (
	// ModeOffload runs the program on the NIC itself. Only a handful of
	// drivers support it and verifier restrictions are tighter.
	ModeOffload AttachMode = "offload"

	// ModeDriver runs the program in the driver's native XDP hook,
	// before skb allocation.
	ModeDriver AttachMode = "driver"

	// ModeGeneric runs the program in the generic kernel hook after skb
	// allocation. Works everywhere, performs worst.
	ModeGeneric AttachMode = "generic"
)

func (m AttachMode) String() string { return string(m) }

// AttachOpts selects which attach modes the negotiation may try.
type AttachOpts struct {
	// Offload asks for hardware offload before driver mode.
	Offload bool

	// Generic permits falling back to the generic hook when driver
	// mode is unsupported.
	Generic bool
}

// Candidates returns the attach modes to try, in order. Driver mode is
// always present; offload, when requested, precedes it and generic,
// when permitted, follows it.
func Candidates(opts AttachOpts) []AttachMode {
	modes := make([]AttachMode, 0, 3)
	if opts.Offload {
		modes = append(modes, ModeOffload)
	}
	modes = append(modes, ModeDriver)
	if opts.Generic {
		modes = append(modes, ModeGeneric)
	}
	return modes
}
