// Package backends resolves model names to ready-to-call generation
// backends. A caller hands a possibly partial ModelSpec to a Resolver, which
// fills the gaps from the model registry, looks the backend constructor up in
// the backend table and returns a Backend whose Generate turns a conversation
// history into a reply.
package backends

import (
	"context"

	"github.com/pkg/errors"
)

// Role tags one turn of a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the conversation history handed to a backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completion is the full outcome of one generation call. Prompt and Response
// carry the request as actually issued and the raw provider answer so callers
// can log them for later inspection; Text is the extracted reply.
type Completion struct {
	Prompt   any
	Response any
	Text     string
}

// Backend turns a conversation history into a generated reply.
type Backend interface {
	// Generate produces the next reply given the ordered history.
	Generate(ctx context.Context, messages []Message) (Completion, error)
	// Spec returns the fully specified spec the backend was built from.
	Spec() ModelSpec
}

var (
	// ErrNotCallable marks backends whose replies come from elsewhere (human
	// input, scripted players). Reaching their Generate is a usage error.
	ErrNotCallable = errors.New("backend is not callable for reply generation")
	// ErrContractViolation marks a provider response that is structurally
	// wrong (for example a non-assistant reply role). Never retried.
	ErrContractViolation = errors.New("provider response violates the backend contract")
)

// Human stands in for a live person whose input the caller collects itself.
type Human struct {
	spec ModelSpec
}

func NewHuman(spec ModelSpec) *Human {
	spec.EnsureDefaults()
	return &Human{spec: spec}
}

func (h *Human) Spec() ModelSpec { return h.spec }

func (h *Human) Generate(ctx context.Context, messages []Message) (Completion, error) {
	return Completion{}, errors.Wrapf(ErrNotCallable, "human backend %s", h.spec.Name)
}

// Programmatic stands in for a scripted player driven by the game itself.
type Programmatic struct {
	spec ModelSpec
}

func NewProgrammatic(spec ModelSpec) *Programmatic {
	spec.EnsureDefaults()
	return &Programmatic{spec: spec}
}

func (p *Programmatic) Spec() ModelSpec { return p.spec }

func (p *Programmatic) Generate(ctx context.Context, messages []Message) (Completion, error) {
	return Completion{}, errors.Wrapf(ErrNotCallable, "programmatic backend %s", p.spec.Name)
}
