package manager

import (
	"os"
	"os/exec"
)

// SanityReport describes runtime checks for external dependencies.
type SanityReport struct {
	ShellFound  bool   `json:"shell_found"`
	ShellPath   string `json:"shell_path,omitempty"`
	EngineFound bool   `json:"engine_found"`
	EnginePath  string `json:"engine_path"`
	ModelsDirOK bool   `json:"models_dir_ok"`
	Error       string `json:"error,omitempty"`
}

// SanityCheck validates that the shell and engine script are available.
// It does not mutate state and is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	r := SanityReport{EnginePath: m.cfg.EngineScript}
	if p, err := exec.LookPath(m.cfg.Shell); err == nil {
		r.ShellFound, r.ShellPath = true, p
	} else {
		r.Error = err.Error()
	}
	if fi, err := os.Stat(m.cfg.EngineScript); err == nil && !fi.IsDir() {
		r.EngineFound = true
	} else if r.Error == "" {
		if err != nil {
			r.Error = err.Error()
		} else {
			r.Error = "engine path is a directory"
		}
	}
	if fi, err := os.Stat(m.cfg.ModelsDir); err == nil && fi.IsDir() {
		r.ModelsDirOK = true
	}
	return r
}
