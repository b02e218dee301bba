package backends

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Registry is the ordered, read-only table of known model-to-backend
// bindings. It is loaded once at startup; lookups scan in file order.
type Registry struct {
	specs []ModelSpec
}

// NewRegistry validates the entries and builds a registry. Every entry must
// carry a backend; a partial entry cannot be resolved later.
func NewRegistry(specs ...ModelSpec) (*Registry, error) {
	for _, spec := range specs {
		if !spec.HasBackend() {
			return nil, errors.Errorf(
				"missing backend definition in model registry for model_name=%q; "+
					"a minimal entry is {\"model_name\": <name>, \"backend\": <backend>}",
				spec.Name)
		}
	}
	out := make([]ModelSpec, len(specs))
	copy(out, specs)
	return &Registry{specs: out}, nil
}

// LoadRegistry reads a registry file. The format is chosen by extension:
// .yaml/.yml is parsed as YAML, everything else as JSON.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err,
			"model registry at %q is not readable; create it as a model_registry.json file and try again", path)
	}
	var specs []ModelSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &specs)
	default:
		err = json.Unmarshal(data, &specs)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing model registry %q", path)
	}
	return NewRegistry(specs...)
}

// Specs returns a copy of the registry entries in load order.
func (r *Registry) Specs() []ModelSpec {
	out := make([]ModelSpec, len(r.specs))
	copy(out, r.specs)
	return out
}

// FindAll returns every entry that matches the given spec, in load order.
func (r *Registry) FindAll(spec ModelSpec) []ModelSpec {
	if r == nil {
		return nil
	}
	var matches []ModelSpec
	for _, entry := range r.specs {
		if spec.Matches(entry) {
			matches = append(matches, entry)
		}
	}
	return matches
}
