package ingest

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// sourceEntry pairs a source constructor with the transformer that
// understands its raw output.
type sourceEntry struct {
	factory     SourceFactory
	transformer Transformer
}

// Registry decouples task definitions, which reference plugins by name,
// from concrete implementations. Re-registration under an existing name
// overwrites with a warning - last registration wins. There is no
// unregister; a task referencing an unknown type fails at execution.
type Registry struct {
	mu           sync.RWMutex
	sources      map[string]sourceEntry
	destinations map[string]DestinationFactory
	logger       *zap.SugaredLogger
}

// NewRegistry creates an empty plugin registry.
func NewRegistry(logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		sources:      make(map[string]sourceEntry),
		destinations: make(map[string]DestinationFactory),
		logger:       logger,
	}
}

// RegisterSource stores a (constructor, transformer) pair under name.
func (r *Registry) RegisterSource(name string, factory SourceFactory, transformer Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		r.logger.Warnw("Overwriting existing source plugin registration",
			"plugin", name,
		)
	}
	r.sources[name] = sourceEntry{factory: factory, transformer: transformer}
}

// RegisterDestination stores a destination constructor under name.
func (r *Registry) RegisterDestination(name string, factory DestinationFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.destinations[name]; exists {
		r.logger.Warnw("Overwriting existing destination plugin registration",
			"plugin", name,
		)
	}
	r.destinations[name] = factory
}

// source looks up a registered source entry.
func (r *Registry) source(name string) (sourceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sources[name]
	return entry, ok
}

// destination looks up a registered destination factory.
func (r *Registry) destination(name string) (DestinationFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.destinations[name]
	return factory, ok
}

// SourceNames returns registered source type names in sorted order.
func (r *Registry) SourceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DestinationNames returns registered destination type names in sorted order.
func (r *Registry) DestinationNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.destinations))
	for name := range r.destinations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
