package hooks

import (
	pkgerrors "github.com/pkg/errors"

	"settlement/internal/app/apperr"
	"settlement/internal/app/logger"
)

// Registry resolves the hook for a network or provider name. Registration
// happens once at wiring time; lookups fail loudly on an unregistered key so
// ingress adapters can drop the event with a warning instead of crashing.
type Registry struct {
	hooks map[string]Hook
}

func NewRegistry(hooks ...Hook) *Registry {
	r := &Registry{hooks: make(map[string]Hook, len(hooks))}
	for _, h := range hooks {
		r.Register(h)
	}
	return r
}

func (r *Registry) Register(h Hook) {
	if _, dup := r.hooks[h.Network()]; dup {
		logger.Global().Warn().Str("network", h.Network()).Msg("Hook registered twice, keeping the last one")
	}
	r.hooks[h.Network()] = h
}

func (r *Registry) Resolve(network string) (Hook, error) {
	h, ok := r.hooks[network]
	if !ok {
		return nil, pkgerrors.Wrap(apperr.ErrUnknownNetwork, network)
	}
	return h, nil
}
