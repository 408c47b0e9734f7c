package executil

import (
	"errors"
	"syscall"
	"testing"
	"time"
)

func syscallGetpgrp() int { return syscall.Getpgrp() }

// waitGone fails the test if pid is still running after a short grace.
// Zombies count as gone.
func waitGone(t *testing.T, pid int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		err := syscall.Kill(pid, 0)
		if errors.Is(err, syscall.ESRCH) || isZombie(pid) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("process %d still running", pid)
}
