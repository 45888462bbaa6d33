package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/auricle/pkg/audio/capture"
	"github.com/MrWong99/auricle/pkg/provider/asr"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: factory not registered")

// Registry maps capture-source and analysis-provider names to their
// constructor functions. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	sources   map[string]func(CaptureConfig) (capture.Source, error)
	providers map[string]func(StreamingConfig) (asr.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		sources:   make(map[string]func(CaptureConfig) (capture.Source, error)),
		providers: make(map[string]func(StreamingConfig) (asr.Provider, error)),
	}
}

// RegisterSource registers a capture source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, factory func(CaptureConfig) (capture.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// RegisterProvider registers an analysis provider factory under name.
func (r *Registry) RegisterProvider(name string, factory func(StreamingConfig) (asr.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = factory
}

// CreateSource instantiates the capture source registered under cfg.Source.
// Returns [ErrNotRegistered] if no factory has been registered for that
// name.
func (r *Registry) CreateSource(cfg CaptureConfig) (capture.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[cfg.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: capture/%q", ErrNotRegistered, cfg.Source)
	}
	return factory(cfg)
}

// CreateProvider instantiates the analysis provider registered under name.
func (r *Registry) CreateProvider(name string, cfg StreamingConfig) (asr.Provider, error) {
	r.mu.RLock()
	factory, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: provider/%q", ErrNotRegistered, name)
	}
	return factory(cfg)
}
