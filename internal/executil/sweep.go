package executil

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// commLen is the kernel limit on process names reported in /proc/<pid>/status.
const commLen = 15

// KillByName force-kills processes whose name equals name and for which
// match returns true (a nil match accepts every candidate). The calling
// process is never killed. It returns the number of processes signalled.
//
// This is a best-effort backstop for children that left their process group.
func KillByName(ctx context.Context, name string, match func(p *process.Process) bool) int {
	if name == "" {
		return 0
	}
	log := zerolog.Ctx(ctx)
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("sweep: list processes")
		return 0
	}
	want := name
	if len(want) > commLen {
		want = want[:commLen]
	}
	self := int32(os.Getpid())
	killed := 0
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		n, err := p.NameWithContext(ctx)
		if err != nil || (n != name && n != want) {
			continue
		}
		if match != nil && !match(p) {
			continue
		}
		if err := p.KillWithContext(ctx); err != nil {
			log.Debug().Err(err).Int32("pid", p.Pid).Msg("sweep: kill")
			continue
		}
		killed++
		log.Warn().Int32("pid", p.Pid).Str("name", n).Msg("sweep: killed detached inference process")
	}
	return killed
}
