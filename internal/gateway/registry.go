package gateway

import (
	"fmt"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
)

// Registry holds the configured provider variants.
type Registry struct {
	providers map[enums.PayoutProvider]Provider
	fallback  enums.PayoutProvider
}

// NewRegistry registers providers and selects the one new accounts use.
func NewRegistry(defaultProvider enums.PayoutProvider, providers ...Provider) (*Registry, error) {
	reg := &Registry{providers: make(map[enums.PayoutProvider]Provider, len(providers)), fallback: defaultProvider}
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, dup := reg.providers[p.Name()]; dup {
			return nil, fmt.Errorf("payout provider %s registered twice", p.Name())
		}
		reg.providers[p.Name()] = p
	}
	if _, ok := reg.providers[defaultProvider]; !ok {
		return nil, fmt.Errorf("default payout provider %q is not configured", defaultProvider)
	}
	return reg, nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name enums.PayoutProvider) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout provider not configured").
			WithDetails(map[string]any{"provider": name})
	}
	return p, nil
}

// Default returns the provider used for new accounts.
func (r *Registry) Default() Provider {
	return r.providers[r.fallback]
}
