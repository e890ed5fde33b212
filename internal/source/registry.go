package source

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrUnknownSource is returned when no adapter is registered for a tag.
var ErrUnknownSource = errors.New("unknown source")

// Registry maps source tags to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Name().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter registered for tag.
func (r *Registry) Get(tag string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[tag]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSource, "%q", tag)
	}
	return a, nil
}

// Tags returns the registered source tags, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.adapters))
	for tag := range r.adapters {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
