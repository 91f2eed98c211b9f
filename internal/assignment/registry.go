package assignment

import (
	"fmt"
	"sort"
)

// Built-in strategy names.
const (
	NameClosest      = "closest"
	NameTimeGreedy   = "time_greedy"
	NameEnergyGreedy = "energy_greedy"
	NameHAPSOnly     = "haps_only"
	NameRandom       = "random"
	NameMatrix       = "matrix"
	NameQLearning    = "qlearning"
)

// Factory builds a fresh, unbound strategy.
type Factory func() Strategy

// Registry maps strategy names to factories. It is populated at startup
// and read when a simulation is configured.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding every built-in strategy that
// can be built from its name alone. The matrix strategy needs a vector and
// is installed directly instead.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for name, f := range map[string]Factory{
		NameClosest:      func() Strategy { return NewClosestNode() },
		NameTimeGreedy:   func() Strategy { return NewTimeGreedy() },
		NameEnergyGreedy: func() Strategy { return NewEnergyGreedy() },
		NameHAPSOnly:     func() Strategy { return NewHAPSOnly() },
		NameRandom:       func() Strategy { return NewRandom() },
		NameQLearning:    func() Strategy { return NewQLearning(DefaultQLearningConfig()) },
	} {
		// Built-in names are distinct and factories are non-nil.
		_ = r.Register(name, f)
	}
	return r
}

// Register adds a factory under name. The factory is invoked once to
// check that it produces a strategy.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidRegistration)
	}
	if f == nil {
		return fmt.Errorf("%w: nil factory for %q", ErrInvalidRegistration, name)
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %q already registered", ErrInvalidRegistration, name)
	}
	if f() == nil {
		return fmt.Errorf("%w: factory for %q returned nil", ErrInvalidRegistration, name)
	}
	r.factories[name] = f
	return nil
}

// New builds the strategy registered under name.
func (r *Registry) New(name string) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	s := f()
	if s == nil {
		return nil, fmt.Errorf("%w: factory for %q returned nil", ErrInvalidRegistration, name)
	}
	return s, nil
}

// Has reports whether name is registered.
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
