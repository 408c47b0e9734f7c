// Package stream runs an external command on a pseudo-terminal and exposes
// its output as a pull-based sequence of chunks.
//
// A Stream ends for one of these reasons, each reported by Next as the
// terminal error:
//
//   - io.EOF: the command exited and its remaining output was drained.
//   - ErrOverallTimeout: the stream ran longer than Executor.Overall.
//   - ErrIdleTimeout: no output arrived for Executor.Idle.
//   - the context error: the consumer's context was cancelled.
//   - any other error: reading the terminal failed.
//
// Close releases everything the Stream owns and must be deferred by every
// caller of Start; it is safe to call more than once.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"pocketd/internal/executil"
)

// Defaults applied when the corresponding Executor fields are unset.
const (
	DefaultOverall      = 5 * time.Minute
	DefaultIdle         = 60 * time.Second
	DefaultPollInterval = 500 * time.Millisecond

	readBufSize = 4096
	// drainLimit bounds the final drain after the child exits.
	drainLimit = 1 << 20
)

type timeoutError struct{ msg string }

func (e *timeoutError) Error() string { return e.msg }
func (e *timeoutError) Timeout() bool { return true }

var (
	// ErrOverallTimeout ends a stream that outlived its absolute deadline.
	ErrOverallTimeout error = &timeoutError{"stream exceeded overall timeout"}
	// ErrIdleTimeout ends a stream whose command stopped producing output.
	ErrIdleTimeout error = &timeoutError{"stream idle timeout"}
)

// Tracker counts streaming executions. reqctx.Coordinator implements it.
type Tracker interface {
	Acquire() uint64
	Attach(slot uint64, pgid int)
	Release(slot uint64)
}

type noopTracker struct{}

func (noopTracker) Acquire() uint64 { return 0 }
func (noopTracker) Attach(uint64, int) {}
func (noopTracker) Release(uint64) {}

// Executor starts streams. The zero value uses the package defaults and no
// tracker.
type Executor struct {
	Overall      time.Duration
	Idle         time.Duration
	PollInterval time.Duration
	KillGrace    time.Duration
	// InferenceBinary is the process name swept after cleanup when a child
	// escaped its process group. Empty disables the sweep.
	InferenceBinary string
	Tracker         Tracker
}

func (e *Executor) settings() Executor {
	s := *e
	if s.Overall <= 0 {
		s.Overall = DefaultOverall
	}
	if s.Idle <= 0 {
		s.Idle = DefaultIdle
	}
	if s.PollInterval <= 0 {
		s.PollInterval = DefaultPollInterval
	}
	if s.KillGrace <= 0 {
		s.KillGrace = executil.DefaultKillGrace
	}
	if s.Tracker == nil {
		s.Tracker = noopTracker{}
	}
	return s
}

// Stream is one running command attached to a pseudo-terminal.
// It is not safe for concurrent use; Next and Close are meant to be called
// from the goroutine serving the request.
type Stream struct {
	ctx context.Context
	cfg Executor
	log *zerolog.Logger

	slot   uint64
	master int
	slave  *os.File
	cmd    *exec.Cmd
	pgid   int
	exited chan struct{}

	start    time.Time
	lastData time.Time
	buf      []byte
	err      error
	reason   string

	closeOnce sync.Once
}

// Start spawns req on a new pseudo-terminal as the leader of a new session
// (and therefore process group). The active-stream slot is taken before
// anything else and is released by Close, including when Start fails.
func (e *Executor) Start(ctx context.Context, req executil.Request) (*Stream, error) {
	cfg := e.settings()
	s := &Stream{
		ctx:    ctx,
		cfg:    cfg,
		log:    zerolog.Ctx(ctx),
		master: -1,
		exited: make(chan struct{}),
		buf:    make([]byte, readBufSize),
	}
	s.slot = cfg.Tracker.Acquire()
	s.start = time.Now()
	s.lastData = s.start

	master, slave, err := openPTY()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("allocate pty: %w", err)
	}
	s.master, s.slave = master, slave

	cmd := exec.Command(req.Command, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), req.Env...)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0, // stdin in the child
	}
	if err := cmd.Start(); err != nil {
		s.Close()
		return nil, fmt.Errorf("start %s: %w", req.Command, err)
	}
	s.cmd = cmd
	s.pgid = cmd.Process.Pid
	cfg.Tracker.Attach(s.slot, s.pgid)
	// The child holds its own copies; dropping ours lets the terminal hang up
	// once the child side is gone.
	s.closeSlave()

	go func() {
		_ = cmd.Wait()
		close(s.exited)
	}()

	s.log.Debug().Int("pgid", s.pgid).Str("cmd", req.Command).
		Dur("overall", cfg.Overall).Dur("idle", cfg.Idle).Msg("stream start")
	return s, nil
}

// PGID returns the process group of the command, or 0 before it was spawned.
func (s *Stream) PGID() int { return s.pgid }

// Reason names why the stream ended: "exit", "overall_timeout",
// "idle_timeout", "cancelled", "error" or "spawn_error". Empty while it is
// running.
func (s *Stream) Reason() string { return s.reason }

// Next blocks until the command produces output or the stream ends. It never
// blocks for longer than the poll interval without re-checking both timeouts
// and the context.
func (s *Stream) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	for {
		now := time.Now()
		if err := s.ctx.Err(); err != nil {
			return s.finish(err, "cancelled")
		}
		overallLeft := s.cfg.Overall - now.Sub(s.start)
		if overallLeft <= 0 {
			return s.finish(ErrOverallTimeout, "overall_timeout")
		}
		idleLeft := s.cfg.Idle - now.Sub(s.lastData)
		if idleLeft <= 0 {
			return s.finish(ErrIdleTimeout, "idle_timeout")
		}
		wait := min(s.cfg.PollInterval, overallLeft, idleLeft)

		ready, hup, err := pollRead(s.master, wait)
		if err != nil {
			return s.finish(fmt.Errorf("poll pty: %w", err), "error")
		}
		if ready {
			n, rerr := unix.Read(s.master, s.buf)
			if n > 0 {
				s.lastData = time.Now()
				return append([]byte(nil), s.buf[:n]...), nil
			}
			switch {
			case rerr == nil, errors.Is(rerr, unix.EIO):
				// every writer closed the subordinate side
				hup = true
			case errors.Is(rerr, unix.EAGAIN), errors.Is(rerr, unix.EINTR):
				continue
			default:
				return s.finish(fmt.Errorf("read pty: %w", rerr), "error")
			}
		}

		select {
		case <-s.exited:
			return s.drain()
		default:
		}
		if hup {
			// Nothing can arrive anymore; sleep on the exit channel instead of
			// spinning on a hung-up descriptor.
			t := time.NewTimer(wait)
			select {
			case <-s.exited:
				t.Stop()
				return s.drain()
			case <-s.ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}
}

// drain performs one non-blocking pass over whatever the child left in the
// terminal buffer after it exited.
func (s *Stream) drain() ([]byte, error) {
	var out []byte
	for len(out) < drainLimit {
		ready, _, err := pollRead(s.master, 0)
		if err != nil || !ready {
			break
		}
		n, rerr := unix.Read(s.master, s.buf)
		if n <= 0 || rerr != nil {
			break
		}
		out = append(out, s.buf[:n]...)
	}
	if len(out) == 0 {
		return s.finish(io.EOF, "exit")
	}
	s.lastData = time.Now()
	s.terminate(io.EOF, "exit")
	return out, nil
}

func (s *Stream) finish(err error, reason string) ([]byte, error) {
	s.terminate(err, reason)
	return nil, err
}

func (s *Stream) terminate(err error, reason string) {
	s.err = err
	s.reason = reason
	streamTerminations.WithLabelValues(reason).Inc()
	ev := s.log.Debug()
	switch reason {
	case "overall_timeout", "idle_timeout", "error":
		ev = s.log.Warn().Err(err)
	}
	ev.Int("pgid", s.pgid).Str("reason", reason).Dur("elapsed", time.Since(s.start)).Msg("stream end")
	s.Close()
}

// Close releases the active-stream slot, closes both terminal descriptors and
// terminates the command's process group if it is still running. Failures
// are logged at debug level and otherwise ignored.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Int("pgid", s.pgid).Msg("stream cleanup panicked")
			}
		}()
		if s.reason == "" {
			s.reason = "cancelled"
			if s.cmd == nil {
				s.reason = "spawn_error"
			}
			streamTerminations.WithLabelValues(s.reason).Inc()
		}
		s.cfg.Tracker.Release(s.slot)
		s.closeSlave()
		if s.master >= 0 {
			_ = unix.Close(s.master)
			s.master = -1
		}
		if s.cmd != nil {
			select {
			case <-s.exited:
				// leader is gone; take down anything left in its group
				executil.KillGroup(s.pgid)
			default:
				executil.TerminateGroup(s.pgid, s.cfg.KillGrace, s.exited)
				t := time.NewTimer(s.cfg.KillGrace)
				select {
				case <-s.exited:
				case <-t.C:
					s.log.Warn().Int("pgid", s.pgid).Msg("stream child did not exit after SIGKILL")
				}
				t.Stop()
			}
		}
		s.sweep()
	})
	return nil
}

func (s *Stream) closeSlave() {
	if s.slave != nil {
		_ = s.slave.Close()
		s.slave = nil
	}
}

// sweep kills inference processes that left the stream's process group but
// stayed in its session (a double fork without setsid).
func (s *Stream) sweep() {
	if s.cfg.InferenceBinary == "" || s.pgid <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 2*time.Second)
	defer cancel()
	executil.KillByName(ctx, s.cfg.InferenceBinary, func(p *process.Process) bool {
		sid, err := unix.Getsid(int(p.Pid))
		return err == nil && sid == s.pgid
	})
}

// pollRead waits up to d for fd to become readable. hup reports that the
// other side of the terminal is closed.
func pollRead(fd int, d time.Duration) (ready, hup bool, err error) {
	if fd < 0 {
		return false, false, unix.EBADF
	}
	ms := int(d / time.Millisecond)
	if d > 0 && ms == 0 {
		ms = 1
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, false, nil
		}
		return false, false, err
	}
	if n == 0 {
		return false, false, nil
	}
	re := fds[0].Revents
	if re&unix.POLLNVAL != 0 {
		return false, false, unix.EBADF
	}
	return re&unix.POLLIN != 0, re&(unix.POLLHUP|unix.POLLERR) != 0, nil
}
