package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pocketd/internal/httpapi"
	"pocketd/internal/kvstore"
	"pocketd/internal/manager"
	"pocketd/internal/reqctx"
)

// engineScript is a stand-in for core/engine.sh.
const engineScript = `VERSION=0.1.0-test
model_install() { : > "$MODELS_DIR/$1.gguf"; echo "installed $1"; }
model_remove() { rm -f "$MODELS_DIR/$1.gguf"; }
infer() {
	case "$1" in
	hi) printf 'he'; sleep 0.3; printf 'llo' ;;
	hang) printf 'partial'; exec sleep 60 ;;
	forever) while :; do printf 'tick '; read -r -t 0.05 _ || :; done ;;
	*) printf '%s' "$1" ;;
	esac
}
`

type env struct {
	srv    *httptest.Server
	mgr    *manager.Manager
	coord  *reqctx.Coordinator
	root   string
	models string
}

func newEnv(t *testing.T, engine string) *env {
	t.Helper()
	root := t.TempDir()
	models := filepath.Join(root, "models")
	if err := os.MkdirAll(models, 0o755); err != nil {
		t.Fatal(err)
	}
	script := filepath.Join(root, "core", "engine.sh")
	if engine != "" {
		if err := os.MkdirAll(filepath.Dir(script), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(script, []byte(engine), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	coord := reqctx.New()
	mgr := manager.New(manager.Config{
		Root:          root,
		EngineScript:  script,
		ModelsDir:     models,
		Store:         kvstore.New(filepath.Join(root, "config")),
		Coordinator:   coord,
		ChatTimeout:   5 * time.Second,
		StreamTimeout: 10 * time.Second,
		IdleTimeout:   time.Second,
		PollInterval:  50 * time.Millisecond,
		KillGrace:     200 * time.Millisecond,
	})
	srv := httptest.NewServer(httpapi.NewMux(mgr, httpapi.Options{Coordinator: coord}))
	t.Cleanup(srv.Close)
	return &env{srv: srv, mgr: mgr, coord: coord, root: root, models: models}
}

func (e *env) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (e *env) post(t *testing.T, path string, body any, out any) int {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(e.srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

// readEvents reads "data: <json>" frames until the body ends.
func readEvents(t *testing.T, r io.Reader) []map[string]any {
	t.Helper()
	var evs []map[string]any
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("event %q: %v", line, err)
		}
		evs = append(evs, ev)
	}
	return evs
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", d)
}
