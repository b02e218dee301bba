package backends

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Resolver turns a possibly partial ModelSpec into a ready Backend. It owns
// no backend instances; every Resolve may construct a fresh one.
type Resolver struct {
	registry *Registry
	table    *Table
	logger   zerolog.Logger
}

// NewResolver wires a resolver over a registry and a backend table. The
// registry may be nil when only human or programmatic specs are resolved.
func NewResolver(registry *Registry, table *Table) *Resolver {
	if table == nil {
		table = NewTable(nil)
	}
	return &Resolver{
		registry: registry,
		table:    table,
		logger:   log.With().Str("component", "backends").Logger(),
	}
}

// Resolve merges the spec against the registry, discovers the backend
// constructor and builds the backend. Human and programmatic sentinels are
// handled upfront and never touch the registry.
func (r *Resolver) Resolve(spec ModelSpec) (Backend, error) {
	if spec.Name == "" {
		return nil, errors.New("cannot resolve a model spec without a model name")
	}
	if spec.IsHuman() {
		return NewHuman(spec), nil
	}
	if spec.IsProgrammatic() {
		return NewProgrammatic(spec), nil
	}

	// Earlier registry matches win: Update only fills gaps, and every entry is
	// re-matched against the cumulatively updated spec. Once an earlier entry
	// fills the backend, a later entry for the same name under a different
	// backend no longer matches and contributes nothing.
	if r.registry != nil {
		for _, entry := range r.registry.specs {
			if spec.Matches(entry) {
				spec.Update(entry)
			}
		}
	}
	if !spec.HasBackend() {
		return nil, errors.Errorf(
			"model spec requires a backend, but there is no entry in the model registry "+
				"for model_name=%q; a minimal entry is {\"model_name\": %q, \"backend\": <backend>}",
			spec.Name, spec.Name)
	}

	ctor, err := r.table.Lookup(spec.Backend)
	if err != nil {
		return nil, err
	}
	backend, err := ctor(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "constructing backend %q for model %q", spec.Backend, spec.Name)
	}
	r.logger.Debug().
		Str("model", spec.Name).
		Str("backend", spec.Backend).
		Str("model_id", backend.Spec().ModelID).
		Msg("resolved backend")
	return backend, nil
}
