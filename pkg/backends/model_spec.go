package backends

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Names that short-circuit resolution: these never hit the registry or the
// backend table because the surrounding game logic handles them itself.
var (
	programmaticNames = []string{"mock", "dry_run", "programmatic", "custom", "_slurk_response"}
	humanNames        = []string{"human", "terminal"}
)

// ModelSpec describes a requested model. Only Name is mandatory; everything
// else may be filled in later from the model registry (Update) or defaulted
// at backend construction time (EnsureDefaults).
type ModelSpec struct {
	Name        string
	Backend     string
	ModelID     string
	Temperature *float64
	Options     map[string]any
}

// NewModelSpec returns a spec that carries only a model name.
func NewModelSpec(name string) ModelSpec {
	return ModelSpec{Name: name}
}

// ModelSpecFromMap builds a spec from a raw registry record. Recognized keys
// are consumed; everything else is kept as free-form options.
func ModelSpecFromMap(raw map[string]any) (ModelSpec, error) {
	name, ok := stringValue(raw["model_name"])
	if !ok || name == "" {
		return ModelSpec{}, errors.Errorf("missing 'model_name' in model spec: %v", raw)
	}
	spec := ModelSpec{Name: name}
	spec.Backend, _ = stringValue(raw["backend"])
	spec.ModelID, _ = stringValue(raw["model_id"])
	if t, ok := floatValue(raw["temperature"]); ok {
		spec.Temperature = &t
	}
	opts := map[string]any{}
	for key, value := range raw {
		switch key {
		case "model_name", "backend", "model_id", "temperature":
			continue
		}
		opts[key] = value
	}
	if len(opts) > 0 {
		spec.Options = opts
	}
	return spec, nil
}

// Update fills every gap in s from other. Fields s already carries stay
// untouched; options merge per key, with s's keys winning.
func (s *ModelSpec) Update(other ModelSpec) {
	if s.Backend == "" {
		s.Backend = other.Backend
	}
	if s.ModelID == "" {
		s.ModelID = other.ModelID
	}
	if s.Temperature == nil && other.Temperature != nil {
		t := *other.Temperature
		s.Temperature = &t
	}
	if len(other.Options) == 0 {
		return
	}
	merged := make(map[string]any, len(other.Options)+len(s.Options))
	for key, value := range other.Options {
		merged[key] = value
	}
	for key, value := range s.Options {
		merged[key] = value
	}
	s.Options = merged
}

// Matches reports whether other can serve as a registry entry for s. Names
// must be equal; the backend is only compared when s constrains it. ModelID,
// temperature and options never take part in matching.
func (s ModelSpec) Matches(other ModelSpec) bool {
	if s.Name != other.Name {
		return false
	}
	if s.HasBackend() && s.Backend != other.Backend {
		return false
	}
	return true
}

func (s ModelSpec) HasBackend() bool     { return s.Backend != "" }
func (s ModelSpec) HasModelID() bool     { return s.ModelID != "" }
func (s ModelSpec) HasTemperature() bool { return s.Temperature != nil }

// EnsureDefaults fills the remaining per-backend defaults. Backends call
// this from their constructor.
func (s *ModelSpec) EnsureDefaults() {
	if !s.HasModelID() {
		s.ModelID = s.Name
	}
	if !s.HasTemperature() {
		t := 0.0
		s.Temperature = &t
	}
}

// TemperatureValue returns the temperature, defaulting to 0.0 when unset.
func (s ModelSpec) TemperatureValue() float64 {
	if s.Temperature == nil {
		return 0.0
	}
	return *s.Temperature
}

// IsProgrammatic reports whether the name denotes a scripted stand-in.
func (s ModelSpec) IsProgrammatic() bool {
	return containsName(programmaticNames, s.Name)
}

// IsHuman reports whether the name denotes a human participant.
func (s ModelSpec) IsHuman() bool {
	return containsName(humanNames, s.Name)
}

// BoolOption reads a boolean option, false when absent or not a bool.
func (s ModelSpec) BoolOption(key string) bool {
	v, ok := s.Options[key].(bool)
	return ok && v
}

// SecondsOption reads a numeric option expressed in seconds, falling back to
// def when absent or malformed.
func (s ModelSpec) SecondsOption(key string, def time.Duration) time.Duration {
	v, ok := floatValue(s.Options[key])
	if !ok || v <= 0 {
		return def
	}
	return time.Duration(v * float64(time.Second))
}

func (s ModelSpec) String() string {
	if s.HasBackend() {
		return fmt.Sprintf("ModelSpec(%s@%s)", s.Name, s.Backend)
	}
	return fmt.Sprintf("ModelSpec(%s)", s.Name)
}

// UnmarshalJSON folds unknown keys into Options so registry files can carry
// arbitrary per-model settings.
func (s *ModelSpec) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "decoding model spec")
	}
	spec, err := ModelSpecFromMap(raw)
	if err != nil {
		return err
	}
	*s = spec
	return nil
}

func (s *ModelSpec) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return errors.Wrap(err, "decoding model spec")
	}
	spec, err := ModelSpecFromMap(raw)
	if err != nil {
		return err
	}
	*s = spec
	return nil
}

func (s ModelSpec) MarshalJSON() ([]byte, error) {
	raw := map[string]any{"model_name": s.Name}
	if s.HasBackend() {
		raw["backend"] = s.Backend
	}
	if s.HasModelID() {
		raw["model_id"] = s.ModelID
	}
	if s.HasTemperature() {
		raw["temperature"] = *s.Temperature
	}
	for key, value := range s.Options {
		raw[key] = value
	}
	return json.Marshal(raw)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func stringValue(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func floatValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}
