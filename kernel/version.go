package kernel

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Release returns the running kernel release string, e.g.
// "6.8.0-45-generic".
func Release() (string, error) {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return "", fmt.Errorf("uname: %w", err)
	}
	return unix.ByteSliceToString(uname.Release[:]), nil
}
