package xdpfwd

import (
	"fmt"
	"strings"
)

// ErrMapMissing is returned when a mandatory map is absent from the
// loaded BPF object.
type ErrMapMissing struct {
	Name string
}

func (e ErrMapMissing) Error() string {
	return fmt.Sprintf("map %q not found in loaded object", e.Name)
}

// ErrAttachExhausted is returned when every candidate attach mode was
// refused by the kernel for an interface.
type ErrAttachExhausted struct {
	Interface string
	Tried     []AttachMode
}

func (e ErrAttachExhausted) Error() string {
	modes := make([]string, len(e.Tried))
	for i, m := range e.Tried {
		modes[i] = string(m)
	}
	return fmt.Sprintf("no attach mode accepted on %s (tried %s)", e.Interface, strings.Join(modes, ", "))
}

// ErrInterfaceNotFound is returned when the configured interface does
// not exist on this host.
type ErrInterfaceNotFound struct {
	Interface string
}

func (e ErrInterfaceNotFound) Error() string {
	return fmt.Sprintf("interface %q does not exist", e.Interface)
}
