package gateway

import (
	"settlement-service/internal/apperr"
)

// Registry holds adapters in registration order. Select returns the first
// adapter whose Supports matches, so earlier registrations win ties.
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry with adapters in the given order
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: append([]Adapter(nil), adapters...)}
}

// Select returns the first adapter supporting sc
func (r *Registry) Select(sc SettlementContext) (Adapter, error) {
	for _, adapter := range r.adapters {
		if adapter.Supports(sc) {
			return adapter, nil
		}
	}
	return nil, apperr.Newf(apperr.CodeNoAdapterFound,
		"no gateway adapter for provider=%s type=%s amount=%s", sc.Provider, sc.Type, sc.Amount)
}

// Names lists registered adapters in order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		names = append(names, adapter.Name())
	}
	return names
}
