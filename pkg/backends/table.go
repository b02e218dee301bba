package backends

import (
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Constructor builds a Backend from a fully merged spec.
type Constructor func(spec ModelSpec) (Backend, error)

var (
	// ErrBackendUnknown means no constructor was ever registered for a name.
	ErrBackendUnknown = errors.New("no backend registered under this name")
	// ErrBackendAmbiguous means a name carries more than one constructor and
	// discovery refuses to guess.
	ErrBackendAmbiguous = errors.New("more than one backend registered under this name")
)

// Catalog collects backend constructors by name. Backend packages add
// themselves at process start (usually from an init function); the Table
// consults the catalog lazily on first use of each name.
type Catalog struct {
	mu      sync.Mutex
	entries map[string][]Constructor
}

func NewCatalog() *Catalog {
	return &Catalog{entries: map[string][]Constructor{}}
}

// Add registers a constructor under a backend name. Registering a second
// constructor under the same name makes the name ambiguous, which surfaces
// as an error on first lookup rather than silently picking one.
func (c *Catalog) Add(name string, ctor Constructor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = append(c.entries[name], ctor)
}

func (c *Catalog) constructors(name string) []Constructor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[name]
}

// DefaultCatalog holds the constructors of all backend packages linked into
// the binary.
var DefaultCatalog = NewCatalog()

// Register adds a constructor to the default catalog.
func Register(name string, ctor Constructor) {
	DefaultCatalog.Add(name, ctor)
}

// Table maps backend names to their constructor, discovering each name in
// the catalog on first use and caching the outcome for the process lifetime.
type Table struct {
	catalog *Catalog

	mu    sync.RWMutex
	cache map[string]Constructor
	group singleflight.Group
}

// NewTable builds a table over the given catalog; nil means DefaultCatalog.
func NewTable(catalog *Catalog) *Table {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	return &Table{catalog: catalog, cache: map[string]Constructor{}}
}

// Lookup resolves a backend name to its constructor. Discovery runs at most
// once per name, even when resolutions race.
func (t *Table) Lookup(name string) (Constructor, error) {
	t.mu.RLock()
	ctor, ok := t.cache[name]
	t.mu.RUnlock()
	if ok {
		return ctor, nil
	}

	v, err, _ := t.group.Do(name, func() (any, error) {
		candidates := t.catalog.constructors(name)
		switch len(candidates) {
		case 0:
			return nil, errors.Wrapf(ErrBackendUnknown,
				"backend %q; register such a backend or check the backend name", name)
		case 1:
			// fine
		default:
			return nil, errors.Wrapf(ErrBackendAmbiguous, "backend %q", name)
		}
		t.mu.Lock()
		t.cache[name] = candidates[0]
		t.mu.Unlock()
		return candidates[0], nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Constructor), nil
}
