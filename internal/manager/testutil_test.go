package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pocketd/internal/kvstore"
	"pocketd/internal/reqctx"
)

// fakeEngine is sourced by every invocation in these tests.
const fakeEngine = `VERSION=9.9.9
model_install() {
	[ "$1" = "broken" ] && { echo "download failed" >&2; return 3; }
	: > "$MODELS_DIR/$1.gguf"
}
model_remove() { rm -f "$MODELS_DIR/$1.gguf"; echo "deleted $1"; }
infer() {
	case "$1" in
	slow) sleep 30 ;;
	stream) printf 'he'; sleep 0.3; printf 'llo' ;;
	*) printf 'echo:%s max=%s' "$1" "${MAX_TOKENS:-}" ;;
	esac
}
`

type fixture struct {
	root   string
	models string
	store  *kvstore.Store
	coord  *reqctx.Coordinator
	pub    *MemoryPublisher
	m      *Manager
}

func newFixture(t *testing.T, engine string) *fixture {
	t.Helper()
	root := t.TempDir()
	models := filepath.Join(root, "models")
	if err := os.MkdirAll(models, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	script := filepath.Join(root, "engine.sh")
	if err := os.WriteFile(script, []byte(engine), 0o644); err != nil {
		t.Fatalf("write engine: %v", err)
	}
	f := &fixture{
		root:   root,
		models: models,
		store:  kvstore.New(filepath.Join(root, "config")),
		coord:  reqctx.New(),
		pub:    NewMemoryPublisher(),
	}
	f.m = New(Config{
		Root:           root,
		EngineScript:   script,
		ModelsDir:      models,
		Store:          f.store,
		Coordinator:    f.coord,
		Publisher:      f.pub,
		ChatTimeout:    2 * time.Second,
		VersionTimeout: 2 * time.Second,
		StatusTTL:      time.Hour,
		InstalledTTL:   time.Hour,
		StreamTimeout:  5 * time.Second,
		IdleTimeout:    2 * time.Second,
		PollInterval:   50 * time.Millisecond,
		KillGrace:      200 * time.Millisecond,
	})
	return f
}

func (f *fixture) touch(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(f.models, name)
	if err := os.WriteFile(p, []byte("gguf"), 0o644); err != nil {
		t.Fatalf("touch %s: %v", name, err)
	}
	return p
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	l := zerolog.Nop()
	return l.WithContext(context.Background())
}

func hasEvent(evts []Event, name string) bool {
	for _, e := range evts {
		if e.Name == name {
			return true
		}
	}
	return false
}
