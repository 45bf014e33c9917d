package provider

import (
	"errors"
	"strings"
)

var ErrProviderNotSupported = errors.New("provider is not supported")

type Registry struct {
	providers map[string]Gateway
}

func NewRegistry(providers ...Gateway) *Registry {
	items := make(map[string]Gateway, len(providers))
	for _, p := range providers {
		items[strings.ToLower(p.Name())] = p
	}
	return &Registry{providers: items}
}

func (r *Registry) Get(name string) (Gateway, error) {
	provider, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, ErrProviderNotSupported
	}
	return provider, nil
}
