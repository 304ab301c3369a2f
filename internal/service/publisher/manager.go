package publisher

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Registry maps platform names to publishers. It is filled at start-up and
// read-only afterwards.
type Registry struct {
	publishers map[string]Publisher
	logger     *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		publishers: make(map[string]Publisher),
		logger:     logger,
	}
}

func (r *Registry) Register(p Publisher) error {
	name := p.Platform()
	if _, exists := r.publishers[name]; exists {
		return fmt.Errorf("publisher for platform %s already registered", name)
	}

	r.publishers[name] = p
	r.logger.Info("Publisher registered", zap.String("platform", name))
	return nil
}

func (r *Registry) Get(platform string) (Publisher, error) {
	p, exists := r.publishers[platform]
	if !exists {
		return nil, fmt.Errorf("publisher for platform %s not found", platform)
	}
	return p, nil
}

func (r *Registry) Platforms() []string {
	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
