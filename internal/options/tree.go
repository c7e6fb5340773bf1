// Package options implements the layered extractor configuration: ordered
// config sources deep-merged into one immutable tree, read through
// category/subcategory-scoped lookups with an override cascade.
package options

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Tree is a merged configuration tree. Immutable after Load; lookups never
// mutate it, so one tree serves any number of differently-scoped lookups.
type Tree struct {
	root map[string]any
}

// Load parses the given files in order and deep-merges them, later sources
// winning per key. Files that do not exist are skipped; a file that exists
// but fails to parse is a fatal configuration error.
//
// The format is chosen by extension: .json (default), .yaml/.yml, .toml.
// All adapters produce the same tree shape.
func Load(paths ...string) (*Tree, error) {
	merged := make(map[string]any)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, eris.Wrapf(err, "options: read %s", p)
		}
		layer, err := parseLayer(p, data)
		if err != nil {
			return nil, err
		}
		deepMerge(merged, layer)
	}
	return &Tree{root: merged}, nil
}

// FromMap wraps an already-built tree. The map must not be modified
// afterwards.
func FromMap(m map[string]any) *Tree {
	if m == nil {
		m = make(map[string]any)
	}
	return &Tree{root: m}
}

func parseLayer(path string, data []byte) (map[string]any, error) {
	var layer map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &layer); err != nil {
			return nil, eris.Wrapf(err, "options: parse yaml %s", path)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &layer); err != nil {
			return nil, eris.Wrapf(err, "options: parse toml %s", path)
		}
	default:
		if err := json.Unmarshal(data, &layer); err != nil {
			return nil, eris.Wrapf(err, "options: parse json %s", path)
		}
	}
	return normalize(layer), nil
}

// normalize rewrites nested maps into map[string]any so the yaml and toml
// adapters yield the exact shape the json one does.
func normalize(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalize(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			if ks, ok := k.(string); ok {
				out[ks] = normalizeValue(vv)
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = normalizeValue(vv)
		}
		return out
	default:
		return v
	}
}

// deepMerge merges src into dst. Nested maps merge per key; when a key's
// value type changes between layers, the later value replaces the earlier
// one wholesale.
func deepMerge(dst, src map[string]any) {
	for k, sv := range src {
		if dv, ok := dst[k]; ok {
			dm, dOK := dv.(map[string]any)
			sm, sOK := sv.(map[string]any)
			if dOK && sOK {
				deepMerge(dm, sm)
				continue
			}
		}
		dst[k] = sv
	}
}

// get walks the tree along path elements.
func (t *Tree) get(path ...string) (any, bool) {
	var cur any = t.root
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
