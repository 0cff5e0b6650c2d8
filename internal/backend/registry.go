package backend

import (
	"fmt"
	"strings"
)

// Registry holds the closed set of provider backends in priority order.
type Registry struct {
	backends []Backend
}

// NewRegistry builds a registry over the given backends, probed in the
// order supplied.
func NewRegistry(backends ...Backend) *Registry {
	return &Registry{backends: backends}
}

// DefaultRegistry returns the built-in provider set.
func DefaultRegistry() *Registry {
	return NewRegistry(Claude{}, OpenCode{}, Gemini{})
}

// Get returns the backend with the given name.
func (r *Registry) Get(name string) (Backend, error) {
	for _, b := range r.backends {
		if b.Name() == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("unknown backend %q (known: %s)", name, strings.Join(r.Names(), ", "))
}

// Detect returns the first available backend. When none is installed it
// returns ErrNoBackend wrapped with install guidance for every provider.
func (r *Registry) Detect() (Backend, error) {
	for _, b := range r.backends {
		if b.IsAvailable() {
			return b, nil
		}
	}

	var guidance strings.Builder
	for _, b := range r.backends {
		fmt.Fprintf(&guidance, "\n  %s: %s", b.Name(), b.InstallInstructions())
	}
	return nil, fmt.Errorf("%w; install one of:%s", ErrNoBackend, guidance.String())
}

// Select resolves an explicit backend name, or auto-detects when name is
// empty. An explicitly named backend that is not installed is an error up
// front rather than a failure per call.
func (r *Registry) Select(name string) (Backend, error) {
	if name == "" || name == "auto" {
		return r.Detect()
	}
	b, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if !b.IsAvailable() {
		return nil, fmt.Errorf("%w: %s is configured but not installed; %s",
			ErrNoBackend, b.Name(), b.InstallInstructions())
	}
	return b, nil
}

// Names lists the registered backend names in priority order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.backends))
	for i, b := range r.backends {
		names[i] = b.Name()
	}
	return names
}
