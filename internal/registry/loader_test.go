package registry

import (
	"os"
	"path/filepath"
	"testing"

	"pocketd/pkg/types"
)

func touch(t *testing.T, dir, name string, size int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestScanDir_ListsGGUFOnly(t *testing.T) {
	d := t.TempDir()
	active := touch(t, d, "qwen3-0.6b.gguf", 2048)
	touch(t, d, "B.GGUF", 10)
	touch(t, d, "notes.txt", 1)
	if err := os.Mkdir(filepath.Join(d, "dir.gguf"), 0o755); err != nil {
		t.Fatal(err)
	}
	models, err := ScanDir(d, active)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("models=%+v", models)
	}
	if models[0].Name != "B.GGUF" || models[1].Name != "qwen3-0.6b.gguf" {
		t.Fatalf("order=%+v", models)
	}
	if models[0].Active || !models[1].Active {
		t.Fatalf("active flags wrong: %+v", models)
	}
	if models[1].Size != "2.0 KiB" {
		t.Fatalf("size=%q", models[1].Size)
	}
}

func TestScanDir_MissingDirIsEmpty(t *testing.T) {
	models, err := ScanDir(filepath.Join(t.TempDir(), "absent"), "")
	if err != nil || len(models) != 0 {
		t.Fatalf("models=%v err=%v", models, err)
	}
}

func TestResolve(t *testing.T) {
	models := []types.InstalledModel{
		{Name: "qwen3-4b.gguf"},
		{Name: "qwen3-0.6b.gguf"},
		{Name: "llama.gguf"},
	}
	cases := map[string]string{
		"llama.gguf":      "llama.gguf",
		"llama":           "llama.gguf",
		"qwen3":           "qwen3-4b.gguf", // equal length: first wins
		"qwen3-0":         "qwen3-0.6b.gguf",
		"qwen3-0.6b.gguf": "qwen3-0.6b.gguf",
	}
	for in, want := range cases {
		m, ok := Resolve(models, in)
		if !ok || m.Name != want {
			t.Fatalf("Resolve(%q)=%q,%v want %q", in, m.Name, ok, want)
		}
	}
	if _, ok := Resolve(models, "gemma"); ok {
		t.Fatal("unexpected match")
	}
	if _, ok := Resolve(models, " "); ok {
		t.Fatal("blank name must not match")
	}
}
