package collect

import (
	"context"
	"fmt"
	"time"

	"SocialMonitor/internal/domain"
)

// Request carries all parameters required to execute a collection pass
// against one source.
type Request struct {
	Keywords []string
	Channels []string
	Window   time.Duration
	Limit    int
	BaseURL  string
}

// Source captures a single platform implementation (Reddit, etc.).
type Source interface {
	Name() string
	Collect(ctx context.Context, req Request) ([]domain.RawPost, error)
}

// Registry keeps a mapping from platform names to their implementations.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(source Source) {
	if r.sources == nil {
		r.sources = map[string]Source{}
	}
	r.sources[source.Name()] = source
}

// Resolve returns a source by platform name or an error if it is absent.
func (r *Registry) Resolve(name string) (Source, error) {
	if source, ok := r.sources[name]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("source %s is not registered", name)
}
