package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pocketd/internal/catalog"
	"pocketd/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pocketd",
		Short:         "HTTP API for managing local models and streaming chat from the engine script",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogFormat, cfg.LogLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}

	d := config.Defaults()
	f := root.PersistentFlags()
	f.String("config", "", "Config file (.yaml, .yml, .json or .toml)")
	f.String("addr", "", "HTTP listen address; overrides --port when set, e.g. 127.0.0.1:8081")
	f.Int("port", d.Port, "HTTP port (env API_PORT)")
	f.String("root", d.Root, "Install root holding core/engine.sh, models/ and config (env POCKETAI_ROOT)")
	f.String("engine", d.EngineScript, "Engine script, relative to --root")
	f.String("models-dir", d.ModelsDir, "Directory scanned for *.gguf files, relative to --root")
	f.String("web-dir", d.WebDir, "Static web directory, relative to --root")
	f.Bool("serve-web", d.ServeWeb, "Serve the web directory for non-API paths (env SERVE_WEB)")
	f.String("log-level", d.LogLevel, "Log level: debug|info|warn|error")
	f.String("log-format", d.LogFormat, "Log format: json|console")
	f.String("cors-origins", strings.Join(d.CORSOrigins, ","), "Comma-separated allowed CORS origins")
	f.String("inference-binary", d.InferenceBinary, "Process name of the engine's inference program, reaped on cleanup")
	f.Int("chat-timeout-sec", d.ChatTimeoutSec, "Timeout for /api/chat")
	f.Int("stream-timeout-sec", d.StreamTimeoutSec, "Overall timeout for /api/chat/stream")
	f.Int("idle-timeout-sec", d.IdleTimeoutSec, "Idle timeout for /api/chat/stream")

	root.AddCommand(newCatalogCmd())
	return root
}

// loadConfig layers defaults, the config file, the environment and finally
// explicitly set flags.
func loadConfig(flags *pflag.FlagSet) (config.Config, error) {
	path, _ := flags.GetString("config")
	cfg, err := config.LoadAll(path)
	if err != nil {
		return cfg, err
	}
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	str("addr", &cfg.Addr)
	num("port", &cfg.Port)
	str("root", &cfg.Root)
	str("engine", &cfg.EngineScript)
	str("models-dir", &cfg.ModelsDir)
	str("web-dir", &cfg.WebDir)
	if flags.Changed("serve-web") {
		cfg.ServeWeb, _ = flags.GetBool("serve-web")
	}
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	if flags.Changed("cors-origins") {
		v, _ := flags.GetString("cors-origins")
		cfg.CORSOrigins = splitCSV(v)
	}
	str("inference-binary", &cfg.InferenceBinary)
	num("chat-timeout-sec", &cfg.ChatTimeoutSec)
	num("stream-timeout-sec", &cfg.StreamTimeoutSec)
	num("idle-timeout-sec", &cfg.IdleTimeoutSec)

	if cfg, err = cfg.Resolve(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func newLogger(format, level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := w
	switch format {
	case "console":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "", "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

func newCatalogCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "catalog [model...]",
		Short: "Print the model catalog, or only the named entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := catalog.All()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				models = models[:0]
				for _, name := range args {
					m, ok := catalog.Lookup(name)
					if !ok {
						return fmt.Errorf("unknown model %q", name)
					}
					models = append(models, m)
				}
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, models)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSIZE\tRAM\tDESCRIPTION")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Name, m.Size, m.RAM, m.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
