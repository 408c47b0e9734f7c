package manager

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"pocketd/internal/catalog"
	"pocketd/internal/executil"
	"pocketd/internal/registry"
	"pocketd/pkg/types"
)

// Health never touches the engine.
func (m *Manager) Health() types.HealthResponse {
	return types.HealthResponse{
		Healthy:       true,
		ActiveStreams: m.coord.ActiveStreams(),
		Uptime:        int64(m.coord.Uptime().Seconds()),
	}
}

// Status reports the engine version and the active model, served from the
// status cache.
func (m *Manager) Status(ctx context.Context) (types.StatusResponse, error) {
	return m.status.Get(func() (types.StatusResponse, error) {
		active, _, err := m.store.Get(ActiveModelKey)
		if err != nil {
			return types.StatusResponse{}, fmt.Errorf("read active model: %w", err)
		}
		resp := types.StatusResponse{Status: "ok", Version: m.version(ctx)}
		if active != "" {
			resp.Model = filepath.Base(active)
		}
		return resp, nil
	})
}

func (m *Manager) version(ctx context.Context) string {
	res := executil.Run(ctx, m.engineRequest(callVersion, m.cfg.VersionTimeout))
	v := strings.TrimSpace(res.Output)
	if !res.Succeeded || v == "" {
		zerolog.Ctx(ctx).Warn().Bool("timed_out", res.TimedOut).Int("exit", res.ExitCode).
			Str("output", res.Output).Msg("engine version unavailable")
		return "unknown"
	}
	// engines that print banners before the version: keep the last line
	if i := strings.LastIndexByte(v, '\n'); i >= 0 {
		v = strings.TrimSpace(v[i+1:])
	}
	return v
}

// Catalog returns the fixed model catalog. No external call is made.
func (m *Manager) Catalog() ([]types.CatalogModel, error) {
	return catalog.All()
}

// Installed lists model files in the models directory, served from the
// installed cache.
func (m *Manager) Installed(ctx context.Context) ([]types.InstalledModel, error) {
	models, err := m.installed.Get(m.scanInstalled)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("dir", m.cfg.ModelsDir).Msg("scan installed models")
	}
	out := make([]types.InstalledModel, len(models))
	copy(out, models)
	return out, err
}

func (m *Manager) scanInstalled() ([]types.InstalledModel, error) {
	active, _, err := m.store.Get(ActiveModelKey)
	if err != nil {
		return nil, fmt.Errorf("read active model: %w", err)
	}
	return registry.ScanDir(m.cfg.ModelsDir, active)
}

// Reset force-kills every tracked stream's process group and any stray
// inference process, forgets all active streams and invalidates the status
// cache.
func (m *Manager) Reset(ctx context.Context) types.ResetResponse {
	groups, strays := m.killAll(ctx)
	m.status.Invalidate()
	m.publisher.Publish(Event{Name: "reset", Fields: map[string]any{"groups": groups, "strays": strays}})
	zerolog.Ctx(ctx).Info().Int("groups", groups).Int("strays", strays).Msg("reset")
	return types.ResetResponse{
		Reset:   true,
		Message: fmt.Sprintf("Stopped %d streams and %d stray inference processes", groups, strays),
	}
}

// Shutdown reaps everything Reset would. It is meant for process exit.
func (m *Manager) Shutdown(ctx context.Context) {
	groups, strays := m.killAll(ctx)
	if groups > 0 || strays > 0 {
		zerolog.Ctx(ctx).Info().Int("groups", groups).Int("strays", strays).Msg("shutdown: reaped inference processes")
	}
}

func (m *Manager) killAll(ctx context.Context) (groups, strays int) {
	for _, pgid := range m.coord.Reset() {
		executil.KillGroup(pgid)
		groups++
	}
	strays = executil.KillByName(ctx, m.cfg.InferenceBinary, nil)
	return groups, strays
}
