//go:build linux

package stream

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// openPTY allocates a terminal pair through the devpts multiplexer. The
// controlling side is returned as a raw descriptor for poll/read; output
// post-processing is switched off so the child's bytes arrive unmodified
// (no "\n" to "\r\n" translation).
func openPTY() (master int, slave *os.File, err error) {
	master, err = unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, nil, fmt.Errorf("open /dev/ptmx: %w", err)
	}
	n, err := unix.IoctlGetInt(master, unix.TIOCGPTN)
	if err != nil {
		unix.Close(master)
		return -1, nil, fmt.Errorf("get pty number (TIOCGPTN): %w", err)
	}
	if err := unix.IoctlSetPointerInt(master, unix.TIOCSPTLCK, 0); err != nil {
		unix.Close(master)
		return -1, nil, fmt.Errorf("unlock pty (TIOCSPTLCK): %w", err)
	}
	path := fmt.Sprintf("/dev/pts/%d", n)
	slave, err = os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		unix.Close(master)
		return -1, nil, fmt.Errorf("open %s: %w", path, err)
	}
	if t, err := unix.IoctlGetTermios(int(slave.Fd()), unix.TCGETS); err == nil {
		t.Oflag &^= unix.OPOST
		_ = unix.IoctlSetTermios(int(slave.Fd()), unix.TCSETS, t)
	}
	return master, slave, nil
}
