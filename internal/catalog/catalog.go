// Package catalog holds the fixed list of installable models.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"pocketd/pkg/types"
)

//go:embed catalog.yaml
var catalogYAML []byte

var (
	once    sync.Once
	entries []types.CatalogModel
	loadErr error
)

func load() {
	var list []types.CatalogModel
	if err := yaml.Unmarshal(catalogYAML, &list); err != nil {
		loadErr = fmt.Errorf("parse embedded catalog: %w", err)
		return
	}
	entries = list
}

// All returns a copy of the catalog in its declared order.
func All() ([]types.CatalogModel, error) {
	once.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	out := make([]types.CatalogModel, len(entries))
	copy(out, entries)
	return out, nil
}

// Lookup returns the catalog entry with the given name.
func Lookup(name string) (types.CatalogModel, bool) {
	all, err := All()
	if err != nil {
		return types.CatalogModel{}, false
	}
	for _, m := range all {
		if m.Name == name {
			return m, true
		}
	}
	return types.CatalogModel{}, false
}
