// Package executil runs external commands to completion in their own process
// group and reaps whole process trees when they overrun.
package executil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// DefaultKillGrace is how long a process group gets between SIGTERM and SIGKILL.
const DefaultKillGrace = 2 * time.Second

// Request describes one command invocation.
type Request struct {
	// Command is the executable, e.g. "bash".
	Command string
	// Args are passed verbatim; callers pass user input here rather than
	// splicing it into a script.
	Args []string
	// Env is appended to the current environment.
	Env []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Timeout bounds the run. Zero waits for the process to exit on its own.
	Timeout time.Duration
	// KillGrace overrides DefaultKillGrace when positive.
	KillGrace time.Duration
}

// Result is the outcome of Run.
type Result struct {
	// Output is the trimmed combination of stdout and stderr, or the spawn
	// error / timeout explanation.
	Output    string
	Succeeded bool
	ExitCode  int
	TimedOut  bool
	Duration  time.Duration
}

func (r Request) grace() time.Duration {
	if r.KillGrace > 0 {
		return r.KillGrace
	}
	return DefaultKillGrace
}

// Run executes req and waits for it. It never returns an error: spawn
// failures and timeouts are reported through Result.
//
// ctx only carries the logger. A request without a timeout is never cut
// short, so a client that goes away cannot leave an install half done.
func Run(ctx context.Context, req Request) Result {
	log := zerolog.Ctx(ctx)
	start := time.Now()

	cmd := exec.Command(req.Command, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), req.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Descendants that inherit the output pipe must not hold Wait forever.
	cmd.WaitDelay = req.grace()

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		log.Warn().Err(err).Str("cmd", req.Command).Msg("exec spawn failed")
		observeExec("spawn_error", time.Since(start))
		return Result{Output: err.Error(), ExitCode: -1, Duration: time.Since(start)}
	}
	pgid := cmd.Process.Pid
	log.Debug().Int("pgid", pgid).Str("cmd", req.Command).Dur("timeout", req.Timeout).Msg("exec start")

	waitErr := make(chan error, 1)
	exited := make(chan struct{})
	go func() {
		waitErr <- cmd.Wait()
		close(exited)
	}()

	var deadline <-chan time.Time
	if req.Timeout > 0 {
		t := time.NewTimer(req.Timeout)
		defer t.Stop()
		deadline = t.C
	}

	timedOut := false
	select {
	case err := <-waitErr:
		if errors.Is(err, exec.ErrWaitDelay) {
			// the leader exited but descendants kept the output open
			log.Debug().Int("pgid", pgid).Msg("exec leader exited, killing leftover group")
			KillGroup(pgid)
		}
	case <-deadline:
		timedOut = true
		log.Warn().Int("pgid", pgid).Dur("timeout", req.Timeout).Msg("exec timed out, terminating process group")
		TerminateGroup(pgid, req.grace(), exited)
		<-exited
	}

	res := Result{
		Output:   strings.TrimSpace(out.String()),
		Duration: time.Since(start),
		ExitCode: -1,
	}
	if timedOut {
		msg := fmt.Sprintf("command timed out after %s", req.Timeout)
		if res.Output != "" {
			res.Output += "\n" + msg
		} else {
			res.Output = msg
		}
		res.TimedOut = true
		observeExec("timeout", res.Duration)
		return res
	}
	if ps := cmd.ProcessState; ps != nil {
		res.ExitCode = ps.ExitCode()
		res.Succeeded = ps.Success()
	}
	if res.Succeeded {
		observeExec("ok", res.Duration)
	} else {
		observeExec("failed", res.Duration)
	}
	log.Debug().Int("pgid", pgid).Int("exit", res.ExitCode).Dur("dur", res.Duration).Msg("exec end")
	return res
}
