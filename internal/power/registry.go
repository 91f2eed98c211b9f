package power

import (
	"fmt"
	"sort"
)

const (
	NameAllOn           = "all_on"
	NameOnDemand        = "on_demand"
	NameOnDemandTimeout = "on_demand_timeout"
	NameRandom          = "random"
)

// Factory builds a fresh strategy from validated parameters.
type Factory func(p Params) Strategy

// Registry maps strategy names to factories.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry holds the four built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(NameAllOn, func(Params) Strategy { return AllOn{} })
	_ = r.Register(NameOnDemand, func(Params) Strategy { return OnDemand{} })
	_ = r.Register(NameOnDemandTimeout, func(p Params) Strategy { return NewOnDemandTimeout(p.Timeout) })
	_ = r.Register(NameRandom, func(p Params) Strategy { return NewRandom(p.Epsilon, p.WithChange, p.ChangeInterval) })
	return r
}

// Register adds a factory under name after checking it builds a strategy
// from the default parameters.
func (r *Registry) Register(name string, f Factory) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidRegistration)
	case f == nil:
		return fmt.Errorf("%w: nil factory for %q", ErrInvalidRegistration, name)
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %q already registered", ErrInvalidRegistration, name)
	}
	if f(DefaultParams()) == nil {
		return fmt.Errorf("%w: factory for %q returned nil", ErrInvalidRegistration, name)
	}
	r.factories[name] = f
	return nil
}

// New validates p and builds the strategy registered under name.
func (r *Registry) New(name string, p Params) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s := f(p)
	if s == nil {
		return nil, fmt.Errorf("%w: factory for %q returned nil", ErrInvalidRegistration, name)
	}
	return s, nil
}

func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
