package manager

import (
	"strconv"
	"time"

	"pocketd/internal/executil"
)

// engineRequest builds an invocation that sources the engine script and runs
// call. call is a fixed snippet from this package; values are appended as
// positional parameters ($1, $2, ...).
func (m *Manager) engineRequest(call string, timeout time.Duration, args ...string) executil.Request {
	script := `. "$POCKETD_ENGINE" && ` + call
	argv := append([]string{"-c", script, "pocketd"}, args...)
	return executil.Request{
		Command:   m.cfg.Shell,
		Args:      argv,
		Env:       m.engineEnv(),
		Dir:       m.cfg.Root,
		Timeout:   timeout,
		KillGrace: m.cfg.KillGrace,
	}
}

func (m *Manager) engineEnv() []string {
	env := []string{
		"POCKETD_ENGINE=" + m.cfg.EngineScript,
		"POCKETAI_ROOT=" + m.cfg.Root,
	}
	if m.cfg.ModelsDir != "" {
		env = append(env, "MODELS_DIR="+m.cfg.ModelsDir)
	}
	if p := m.store.Path(); p != "" {
		env = append(env, "CONFIG_FILE="+p)
	}
	return env
}

func withMaxTokens(req executil.Request, maxTokens int) executil.Request {
	if maxTokens > 0 {
		req.Env = append(req.Env, "MAX_TOKENS="+strconv.Itoa(maxTokens))
	}
	return req
}

// Engine snippets.
const (
	callInstall = `model_install "$1"`
	callRemove  = `model_remove "$1"`
	callInfer   = `infer "$1"`
	callVersion = `printf '%s\n' "${VERSION:-}"`
	// $1 is the requested name, $2 the resolved file.
	callActivate = `{ command -v model_activate >/dev/null 2>&1 || exit 86; model_activate "$1" "$2"; }`
)

// exitNoActivate is callActivate's exit code when the engine does not define
// model_activate.
const exitNoActivate = 86
