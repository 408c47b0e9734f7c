package executil

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// TerminateGroup asks every process in the group pgid to stop with SIGTERM,
// waits up to grace for exited to close, then sends SIGKILL to whatever is
// left of the group. exited may be nil. All signalling errors are ignored.
func TerminateGroup(pgid int, grace time.Duration, exited <-chan struct{}) {
	if pgid <= 0 {
		return
	}
	_ = unix.Kill(-pgid, unix.SIGTERM)
	if exited != nil {
		t := time.NewTimer(grace)
		select {
		case <-exited:
		case <-t.C:
		}
		t.Stop()
	}
	_ = unix.Kill(-pgid, unix.SIGKILL)
}

// KillGroup sends SIGKILL to the group pgid without waiting.
func KillGroup(pgid int) {
	if pgid <= 0 {
		return
	}
	_ = unix.Kill(-pgid, unix.SIGKILL)
}

// GroupAlive reports whether any process is left in the group pgid.
func GroupAlive(pgid int) bool {
	if pgid <= 0 {
		return false
	}
	err := unix.Kill(-pgid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
