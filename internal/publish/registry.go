package publish

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func(*slog.Logger) Target)
)

// Register adds a target factory to the registry.
// Called by target implementations in their init() functions.
func Register(name string, factory func(*slog.Logger) Target) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get retrieves a target factory by name.
func Get(name string) (func(*slog.Logger) Target, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// NewTarget creates a target instance based on config type.
// The logger parameter is passed to the target constructor (nil uses discard logger).
func NewTarget(cfg Config, logger *slog.Logger) (Target, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("publish target type not specified")
	}

	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownTargetError{
			Type:      cfg.Type,
			Available: ListTargets(),
		}
	}
	return factory(logger), nil
}

// ListTargets returns all registered target names (sorted).
func ListTargets() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a target type is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// UnknownTargetError is returned when an unknown target type is requested.
type UnknownTargetError struct {
	Type      string
	Available []string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("unknown publish target %q\nAvailable targets: %v\nHint: Check publish.type in enricher.yaml", e.Type, e.Available)
}
