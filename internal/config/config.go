package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"pocketd/internal/common/fsutil"
)

// Config holds runtime parameters for the service. Path fields may be
// relative; Resolve anchors them at Root.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr" env:"POCKETD_ADDR"`
	Port int    `json:"port" yaml:"port" toml:"port" env:"API_PORT"`

	Root         string `json:"root" yaml:"root" toml:"root" env:"POCKETAI_ROOT"`
	Shell        string `json:"shell" yaml:"shell" toml:"shell" env:"POCKETD_SHELL"`
	EngineScript string `json:"engine_script" yaml:"engine_script" toml:"engine_script" env:"POCKETD_ENGINE_SCRIPT"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir" env:"MODELS_DIR"`
	ConfigFile   string `json:"config_file" yaml:"config_file" toml:"config_file" env:"CONFIG_FILE"`
	WebDir       string `json:"web_dir" yaml:"web_dir" toml:"web_dir" env:"POCKETD_WEB_DIR"`
	ServeWeb     bool   `json:"serve_web" yaml:"serve_web" toml:"serve_web" env:"SERVE_WEB"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level" env:"POCKETD_LOG_LEVEL"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format" env:"POCKETD_LOG_FORMAT"`

	ChatTimeoutSec    int `json:"chat_timeout_sec" yaml:"chat_timeout_sec" toml:"chat_timeout_sec" env:"POCKETD_CHAT_TIMEOUT_SEC"`
	StreamTimeoutSec  int `json:"stream_timeout_sec" yaml:"stream_timeout_sec" toml:"stream_timeout_sec" env:"POCKETD_STREAM_TIMEOUT_SEC"`
	IdleTimeoutSec    int `json:"idle_timeout_sec" yaml:"idle_timeout_sec" toml:"idle_timeout_sec" env:"POCKETD_IDLE_TIMEOUT_SEC"`
	PollIntervalMS    int `json:"poll_interval_ms" yaml:"poll_interval_ms" toml:"poll_interval_ms" env:"POCKETD_POLL_INTERVAL_MS"`
	KillGraceMS       int `json:"kill_grace_ms" yaml:"kill_grace_ms" toml:"kill_grace_ms" env:"POCKETD_KILL_GRACE_MS"`
	StatusCacheSec    int `json:"status_cache_sec" yaml:"status_cache_sec" toml:"status_cache_sec" env:"POCKETD_STATUS_CACHE_SEC"`
	InstalledCacheSec int `json:"installed_cache_sec" yaml:"installed_cache_sec" toml:"installed_cache_sec" env:"POCKETD_INSTALLED_CACHE_SEC"`

	// InferenceBinary is the process name of the engine's inference program,
	// used to reap strays. Empty disables name-based reaping.
	InferenceBinary string `json:"inference_binary" yaml:"inference_binary" toml:"inference_binary" env:"POCKETD_INFERENCE_BINARY"`

	MaxBodyBytes   int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" env:"POCKETD_MAX_BODY_BYTES"`
	ChatRatePerMin int      `json:"chat_rate_per_min" yaml:"chat_rate_per_min" toml:"chat_rate_per_min" env:"POCKETD_CHAT_RATE_PER_MIN"`
	ChatBurst      int      `json:"chat_burst" yaml:"chat_burst" toml:"chat_burst" env:"POCKETD_CHAT_BURST"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins" env:"POCKETD_CORS_ORIGINS" envSeparator:","`
}

// Defaults returns the configuration used when nothing else is specified.
func Defaults() Config {
	return Config{
		Port:              8081,
		Root:              "~/pocketai",
		Shell:             "bash",
		EngineScript:      "core/engine.sh",
		ModelsDir:         "models",
		ConfigFile:        "config",
		WebDir:            "web",
		LogLevel:          "info",
		LogFormat:         "json",
		ChatTimeoutSec:    120,
		StreamTimeoutSec:  300,
		IdleTimeoutSec:    60,
		PollIntervalMS:    500,
		KillGraceMS:       2000,
		StatusCacheSec:    5,
		InstalledCacheSec: 10,
		InferenceBinary:   "llama-cli",
		MaxBodyBytes:      1 << 20,
		ChatRatePerMin:    0,
		ChatBurst:         10,
		CORSOrigins:       []string{"*"},
	}
}

// ApplyEnv overlays environment variables that are set onto cfg; unset
// variables leave the current values alone.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// LoadAll builds the effective configuration: defaults, then the file at
// path (if any), then the environment.
func LoadAll(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ListenAddr returns Addr, or ":<Port>" when Addr is empty.
func (c Config) ListenAddr() string {
	if c.Addr != "" {
		return c.Addr
	}
	return ":" + strconv.Itoa(c.Port)
}

// Resolve returns a copy with Root expanded and every path anchored at it.
func (c Config) Resolve() (Config, error) {
	root, err := fsutil.ExpandHome(c.Root)
	if err != nil {
		return c, err
	}
	c.Root = root
	for _, p := range []*string{&c.EngineScript, &c.ModelsDir, &c.ConfigFile, &c.WebDir} {
		if *p, err = fsutil.Under(root, *p); err != nil {
			return c, err
		}
	}
	return c, nil
}

// Validate reports settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Shell) == "" {
		errs = append(errs, errors.New("shell is required"))
	}
	if c.Addr == "" && (c.Port <= 0 || c.Port > 65535) {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.StreamTimeoutSec <= 0 || c.IdleTimeoutSec <= 0 {
		errs = append(errs, errors.New("stream and idle timeouts must be positive"))
	}
	if c.PollIntervalMS <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.ChatRatePerMin < 0 || c.ChatBurst < 0 {
		errs = append(errs, errors.New("chat rate and burst must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) ChatTimeout() time.Duration   { return time.Duration(c.ChatTimeoutSec) * time.Second }
func (c Config) StreamTimeout() time.Duration { return time.Duration(c.StreamTimeoutSec) * time.Second }
func (c Config) IdleTimeout() time.Duration   { return time.Duration(c.IdleTimeoutSec) * time.Second }
func (c Config) PollInterval() time.Duration  { return time.Duration(c.PollIntervalMS) * time.Millisecond }
func (c Config) KillGrace() time.Duration     { return time.Duration(c.KillGraceMS) * time.Millisecond }
func (c Config) StatusTTL() time.Duration     { return time.Duration(c.StatusCacheSec) * time.Second }
func (c Config) InstalledTTL() time.Duration  { return time.Duration(c.InstalledCacheSec) * time.Second }
