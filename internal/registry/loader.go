package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"pocketd/internal/common/fsutil"
	"pocketd/pkg/types"
)

// ModelExt is the extension of installable model files.
const ModelExt = ".gguf"

// ScanDir lists *.gguf files in dir sorted by name. activePath marks the
// entry whose absolute path equals it as active. A missing directory yields
// an empty list.
func ScanDir(dir, activePath string) ([]types.InstalledModel, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if errors.Is(err, os.ErrNotExist) {
		return []types.InstalledModel{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	models := []types.InstalledModel{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ModelExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		p := filepath.Join(abs, name)
		models = append(models, types.InstalledModel{
			Name:   name,
			Size:   humanize.IBytes(uint64(info.Size())),
			Active: activePath != "" && p == filepath.Clean(activePath),
			Path:   p,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

// Resolve finds the installed model a user refers to by name. It tries, in
// order: the exact file name, the file name without extension, and a name
// prefix ("qwen3" matches "qwen3-0.6b.gguf"). Among prefix matches the
// shortest file name wins.
func Resolve(models []types.InstalledModel, name string) (types.InstalledModel, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.InstalledModel{}, false
	}
	for _, m := range models {
		if m.Name == name {
			return m, true
		}
	}
	for _, m := range models {
		if strings.TrimSuffix(m.Name, ModelExt) == name {
			return m, true
		}
	}
	var best types.InstalledModel
	found := false
	for _, m := range models {
		if strings.HasPrefix(m.Name, name) && (!found || len(m.Name) < len(best.Name)) {
			best, found = m, true
		}
	}
	return best, found
}
