package kernel

import (
	"errors"
	"fmt"

	"github.com/vishvananda/netlink"

	"github.com/frobware/xdpfwd"
)

// ResolveInterface returns the ifindex for name.
func ResolveInterface(name string) (int, error) {
	lnk, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return 0, xdpfwd.ErrInterfaceNotFound{Interface: name}
		}
		return 0, fmt.Errorf("lookup interface %q: %w", name, err)
	}
	return lnk.Attrs().Index, nil
}
