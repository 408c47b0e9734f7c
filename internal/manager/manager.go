package manager

import (
	"path/filepath"

	"pocketd/internal/cache"
	"pocketd/internal/kvstore"
	"pocketd/internal/reqctx"
	"pocketd/internal/stream"
	"pocketd/pkg/types"
)

type Manager struct {
	cfg       Config
	coord     *reqctx.Coordinator
	store     *kvstore.Store
	publisher EventPublisher

	status    *cache.TTL[types.StatusResponse]
	installed *cache.TTL[[]types.InstalledModel]
	streams   *stream.Executor
}

// New constructs a Manager from cfg, filling unset fields with defaults.
// A nil Store falls back to a "config" file under Root.
func New(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	store := cfg.Store
	if store == nil {
		store = kvstore.New(filepath.Join(cfg.Root, "config"))
	}
	return &Manager{
		cfg:       cfg,
		coord:     cfg.Coordinator,
		store:     store,
		publisher: cfg.Publisher,
		status:    cache.New[types.StatusResponse](cfg.StatusTTL),
		installed: cache.New[[]types.InstalledModel](cfg.InstalledTTL),
		streams: &stream.Executor{
			Overall:         cfg.StreamTimeout,
			Idle:            cfg.IdleTimeout,
			PollInterval:    cfg.PollInterval,
			KillGrace:       cfg.KillGrace,
			InferenceBinary: cfg.InferenceBinary,
			Tracker:         cfg.Coordinator,
		},
	}
}

// Coordinator returns the request coordinator shared with the HTTP layer.
func (m *Manager) Coordinator() *reqctx.Coordinator { return m.coord }

// invalidate drops both cached views so the next read sees disk state.
func (m *Manager) invalidate() {
	m.status.Invalidate()
	m.installed.Invalidate()
}
