package manager

import (
	"time"

	"pocketd/internal/kvstore"
	"pocketd/internal/reqctx"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultShell          = "bash"
	defaultChatTimeout    = 120 * time.Second
	defaultVersionTimeout = 5 * time.Second
	defaultStatusTTL      = 5 * time.Second
	defaultInstalledTTL   = 10 * time.Second
)

// ActiveModelKey is the config store key holding the active model's path.
const ActiveModelKey = "active_model"

// Config encapsulates all tunables for Manager construction.
type Config struct {
	Shell        string
	Root         string
	EngineScript string
	ModelsDir    string
	// Store persists the flat key=value config shared with the engine.
	Store *kvstore.Store

	ChatTimeout    time.Duration
	VersionTimeout time.Duration
	StatusTTL      time.Duration
	InstalledTTL   time.Duration

	// Streaming: zero values use the stream package defaults.
	StreamTimeout   time.Duration
	IdleTimeout     time.Duration
	PollInterval    time.Duration
	KillGrace       time.Duration
	InferenceBinary string

	Coordinator *reqctx.Coordinator
	Publisher   EventPublisher
}

func (c Config) withDefaults() Config {
	if c.Shell == "" {
		c.Shell = defaultShell
	}
	if c.ChatTimeout <= 0 {
		c.ChatTimeout = defaultChatTimeout
	}
	if c.VersionTimeout <= 0 {
		c.VersionTimeout = defaultVersionTimeout
	}
	if c.StatusTTL <= 0 {
		c.StatusTTL = defaultStatusTTL
	}
	if c.InstalledTTL <= 0 {
		c.InstalledTTL = defaultInstalledTTL
	}
	if c.Coordinator == nil {
		c.Coordinator = reqctx.New()
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	return c
}
