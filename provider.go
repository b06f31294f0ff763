package wireup

import (
	"reflect"
	"strings"
	"time"

	"github.com/wireup-go/wireup/internal/cache"
	"github.com/wireup-go/wireup/internal/graph"
	"github.com/wireup-go/wireup/internal/icontext"
	"github.com/wireup-go/wireup/internal/lifetime"
	"github.com/wireup-go/wireup/internal/typeindex"
)

// ProviderOptions configures Collection.BuildWithOptions.
type ProviderOptions struct {
	// BuildTimeout bounds how long Build may spend compiling the
	// collection and eagerly creating its singletons. Zero means no
	// timeout.
	BuildTimeout time.Duration
}

// Provider is the compiled, immutable result of Collection.Build: the
// dependency graph plus shared state (the lifetime manager and delegate
// cache) every Scope rooted at it draws from.
type Provider struct {
	collection *Collection
	graph      *graph.DependencyGraph
	lifetimes  *lifetime.Manager
	delegates  *cache.Cache
	rootScope  *Scope
}

func newProvider(c *Collection, g *graph.DependencyGraph, options *ProviderOptions) *Provider {
	p := &Provider{
		collection: c,
		graph:      g,
		lifetimes:  lifetime.New(),
		delegates:  cache.New(),
	}
	p.rootScope = newScope(p, nil, nil, "root")
	return p
}

// RootScope returns the provider's root scope, the ancestor of every child
// scope created with BeginLifetimeScope.
func (p *Provider) RootScope() *Scope {
	return p.rootScope
}

// Locate resolves t against the root scope.
func (p *Provider) Locate(t reflect.Type, opts ...ResolveOption) (any, error) {
	return p.rootScope.Locate(t, opts...)
}

// BeginLifetimeScope creates a child of the root scope.
func (p *Provider) BeginLifetimeScope() *Scope {
	return p.rootScope.BeginLifetimeScope(nil)
}

// Close disposes every Singleton instance and the entire scope tree.
func (p *Provider) Close() error {
	err := p.rootScope.Close()
	if derr := p.lifetimes.DisposeSingletons(); derr != nil {
		err = derr
	}
	return err
}

// createSingletons eagerly activates every Singleton-lifetime, closed-type
// strategy so that a configuration mistake surfaces at Build time rather
// than on first use.
func (p *Provider) createSingletons() error {
	ic := icontext.New()
	seen := make(map[*Descriptor]bool)

	activate := func(d *Descriptor) error {
		if d.Lifetime != Singleton || seen[d] {
			return nil
		}
		seen[d] = true
		_, err := p.rootScope.resolveDescriptor(d, d.Type, ic)
		return err
	}

	for _, strategies := range p.collection.strategies {
		for _, d := range strategies {
			if err := activate(d); err != nil {
				return err
			}
		}
	}
	for _, strategies := range p.collection.groups {
		for _, d := range strategies {
			if err := activate(d); err != nil {
				return err
			}
		}
	}

	return nil
}

// findStrategy returns the highest-priority strategy registered for
// (t, key), or a best-effort open-generic match when no closed-type
// strategy exists.
func (p *Provider) findStrategy(t reflect.Type, key any) (*Descriptor, bool) {
	p.collection.mu.RLock()
	defer p.collection.mu.RUnlock()

	if strategies, ok := p.collection.strategies[TypeKey{Type: t, Key: key}]; ok && len(strategies) > 0 {
		return strategies[0], true
	}

	if base, ok := genericBaseName(t); ok {
		if strategies, ok := p.collection.openGeneric[base]; ok && len(strategies) > 0 {
			return strategies[0], true
		}
	}

	return nil, false
}

// findGroup returns every strategy registered in group for t, already
// sorted by priority.
func (p *Provider) findGroup(t reflect.Type, group string) []*Descriptor {
	p.collection.mu.RLock()
	defer p.collection.mu.RUnlock()
	return p.collection.groups[GroupKey{Type: t, Group: group}]
}

// findDecorators returns the decorator chain registered for t, closed-type
// first and falling back to an open-generic match.
func (p *Provider) findDecorators(t reflect.Type) []*DecoratorDescriptor {
	p.collection.mu.RLock()
	defer p.collection.mu.RUnlock()

	if decorators, ok := p.collection.decorators[t]; ok && len(decorators) > 0 {
		return decorators
	}
	if base, ok := genericBaseName(t); ok {
		return p.collection.openGenericDecorators[base]
	}
	return nil
}

// collectAll resolves every ungrouped strategy registered for elem, keyed
// or not, in priority order; group members are not included. It is used
// to build iter.Seq[T]/[]T wrapper values.
func (p *Provider) collectAll(elem reflect.Type, resolve func(*Descriptor) (any, error)) ([]any, error) {
	p.collection.mu.RLock()
	matches := make([]*Descriptor, 0)
	for key, strategies := range p.collection.strategies {
		if key.Type == elem {
			matches = append(matches, strategies...)
		}
	}
	p.collection.mu.RUnlock()

	typeindex.Sort(matches, descriptorPriority, descriptorOrder)

	out := make([]any, 0, len(matches))
	for _, d := range matches {
		v, err := resolve(d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// disposeScopeIgnoringMissing disposes scopeID, treating "no instances
// were ever tracked for this scope" as success rather than an error: a
// Scope with no Scoped-lifetime activations never gets an entry in the
// lifetime manager at all.
func disposeScopeIgnoringMissing(m *lifetime.Manager, scopeID string) error {
	err := m.DisposeScope(scopeID)
	if err != nil && strings.Contains(err.Error(), "not found") {
		return nil
	}
	return err
}
