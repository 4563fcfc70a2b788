package tool

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"jarvis/internal/domain"
)

// Registry holds the tools offered to the model, keyed by name.
// It satisfies domain.ToolExecutor.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]domain.Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{byName: make(map[string]domain.Tool), logger: logger}
}

// Register adds t, guarded by its parameter schema. Names must be unique and
// the schema must compile.
func (r *Registry) Register(t domain.Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "tool name is empty")
	}
	checked, err := WithSchemaValidation(t)
	if err != nil {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, err.Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byName[name]; taken {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, name)
	}
	r.byName[name] = checked
	r.logger.Debug("tool registered", "tool", name)
	return nil
}

// Get returns the named tool or an error wrapping domain.ErrToolNotFound.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Names lists the registered tools alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.byName))
}

// Schemas returns the function-calling schemas ordered by name, so requests
// to the model are stable.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ToolSchema, 0, len(r.byName))
	for _, name := range slices.Sorted(maps.Keys(r.byName)) {
		out = append(out, r.byName[name].Schema())
	}
	return out
}
