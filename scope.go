package wireup

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/wireup-go/wireup/internal/cache"
	"github.com/wireup-go/wireup/internal/compiler"
	"github.com/wireup-go/wireup/internal/icontext"
	"github.com/wireup-go/wireup/internal/lifetime"
	"github.com/wireup-go/wireup/internal/reflection"
	"github.com/wireup-go/wireup/internal/wrapper"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	scopeType   = reflect.TypeOf((*Scope)(nil))
)

// Scope is a node in the injection scope tree (C4). It resolves requested
// types against its Provider's registered strategies, caches
// Scoped-lifetime instances for its own lifetime, and disposes them (and
// its children) in LIFO order when Close is called.
type Scope struct {
	id       string
	name     string
	provider *Provider
	parent   *Scope
	ctx      context.Context

	mu       sync.Mutex
	children map[string]*Scope
}

func newScope(p *Provider, parent *Scope, ctx context.Context, name string) *Scope {
	s := &Scope{
		id:       uuid.NewString(),
		name:     name,
		provider: p,
		parent:   parent,
		ctx:      ctx,
		children: make(map[string]*Scope),
	}
	if parent != nil {
		parent.mu.Lock()
		parent.children[s.id] = s
		parent.mu.Unlock()
	}
	return s
}

// ScopeID returns the unique id assigned to this scope.
func (s *Scope) ScopeID() string { return s.id }

// ScopeName returns the name this scope was created with, if any.
func (s *Scope) ScopeName() string { return s.name }

// Parent returns the scope that created this one, or nil for the root.
func (s *Scope) Parent() *Scope { return s.parent }

// CreateContext returns a context.Context carrying this scope, retrievable
// later with ScopeFromContext.
func (s *Scope) CreateContext(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, scopeContextKey{}, s)
}

// BeginLifetimeScope creates a child scope (C5): a new lifetime boundary
// whose Scoped exports are independent of its parent's, disposed together
// when the child itself is closed.
func (s *Scope) BeginLifetimeScope(ctx context.Context) *Scope {
	if ctx == nil {
		ctx = s.ctx
	}
	return newScope(s.provider, s, ctx, "")
}

// CreateChildScope is an alias for BeginLifetimeScope, naming the same
// operation the way a scope-tree consumer more commonly phrases it.
func (s *Scope) CreateChildScope(ctx context.Context) *Scope {
	return s.BeginLifetimeScope(ctx)
}

// Close disposes every Scoped instance created directly in this scope,
// then recurses into children before removing itself from its parent.
// Disposal order is LIFO and children are disposed before the scope's own
// instances, matching the teardown order a nested resource tree expects.
func (s *Scope) Close() error {
	s.mu.Lock()
	children := make([]*Scope, 0, len(s.children))
	for _, c := range s.children {
		children = append(children, c)
	}
	s.children = make(map[string]*Scope)
	s.mu.Unlock()

	var err error
	for _, c := range children {
		if cerr := c.Close(); cerr != nil {
			err = cerr
		}
	}

	if derr := disposeScopeIgnoringMissing(s.provider.lifetimes, s.id); derr != nil {
		err = derr
	}

	if s.parent != nil {
		s.parent.mu.Lock()
		delete(s.parent.children, s.id)
		s.parent.mu.Unlock()
	}

	return err
}

type scopeContextKey struct{}

// ScopeFromContext retrieves the Scope previously attached with
// Scope.CreateContext, if any.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	s, ok := ctx.Value(scopeContextKey{}).(*Scope)
	return s, ok
}

// ============================================================
// Locator API
// ============================================================

// Locate resolves t, optionally keyed, starting a fresh injection context
// (C6) for this call: every PerContext export reached while resolving t
// and its transitive dependencies shares exactly one instance.
func (s *Scope) Locate(t reflect.Type, opts ...ResolveOption) (any, error) {
	options := &resolveOptions{}
	for _, opt := range opts {
		opt.applyResolveOption(options)
	}
	ic := icontext.New()
	return s.resolve(t, options.key, options.group, ic)
}

// LocateByName resolves t under a specific name key.
func (s *Scope) LocateByName(t reflect.Type, name string) (any, error) {
	return s.Locate(t, Key(name))
}

// LocateAll resolves every export registered in group for t.
func (s *Scope) LocateAll(t reflect.Type, group string) ([]any, error) {
	ic := icontext.New()
	return s.resolveGroup(t, group, ic)
}

// CanLocate reports whether a strategy (closed or open-generic) exists
// for t, without resolving it.
func (s *Scope) CanLocate(t reflect.Type, opts ...ResolveOption) bool {
	options := &resolveOptions{}
	for _, opt := range opts {
		opt.applyResolveOption(options)
	}
	if t == contextType || t == scopeType {
		return true
	}
	if _, ok := wrapper.Recognize(t); ok {
		return true
	}
	_, ok := s.provider.findStrategy(t, options.key)
	return ok
}

// TryLocate resolves t, returning (nil, false) instead of an error when no
// strategy matches, while still surfacing genuine activation failures.
func (s *Scope) TryLocate(t reflect.Type, opts ...ResolveOption) (any, bool, error) {
	v, err := s.Locate(t, opts...)
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

// ResolveOption customizes a Locate call.
type ResolveOption interface {
	applyResolveOption(*resolveOptions)
}

type resolveOptions struct {
	key   any
	group string
}

type resolveKeyOption struct{ key any }

func (o resolveKeyOption) applyResolveOption(opts *resolveOptions) { opts.key = o.key }

// Key requests a specific named/keyed strategy.
func Key(key any) ResolveOption { return resolveKeyOption{key} }

type resolveGroupOption struct{ group string }

func (o resolveGroupOption) applyResolveOption(opts *resolveOptions) { opts.group = o.group }

// InGroup requests the group form of Locate (equivalent to LocateAll).
func InGroup(group string) ResolveOption { return resolveGroupOption{group} }

// Resolve is the generic counterpart to Scope.Locate.
func Resolve[T any](s *Scope, opts ...ResolveOption) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()
	v, err := s.Locate(t, opts...)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &ValidationError{ServiceType: t, Cause: fmt.Errorf("resolved value of type %T is not assignable to %s", v, t)}
	}
	return typed, nil
}

// TryResolve is the generic counterpart to Scope.TryLocate.
func TryResolve[T any](s *Scope, opts ...ResolveOption) (T, bool, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()
	v, ok, err := s.TryLocate(t, opts...)
	if err != nil || !ok {
		return zero, ok, err
	}
	typed, ok2 := v.(T)
	if !ok2 {
		return zero, false, &ValidationError{ServiceType: t, Cause: fmt.Errorf("resolved value of type %T is not assignable to %s", v, t)}
	}
	return typed, true, nil
}

// ResolveAll is the generic counterpart to Scope.LocateAll.
func ResolveAll[T any](s *Scope, group string) ([]T, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	values, err := s.LocateAll(t, group)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(values))
	for _, v := range values {
		typed, ok := v.(T)
		if !ok {
			return nil, &ValidationError{ServiceType: t, Cause: fmt.Errorf("group member of type %T is not assignable to %s", v, t)}
		}
		out = append(out, typed)
	}
	return out, nil
}

// ============================================================
// Resolution engine
// ============================================================

func (s *Scope) resolve(t reflect.Type, key any, group string, ic *icontext.Context) (any, error) {
	if t == nil {
		return nil, &ValidationError{Cause: ErrInvalidServiceType}
	}

	switch t {
	case contextType:
		if s.ctx != nil {
			return s.ctx, nil
		}
		return context.Background(), nil
	}
	if t.Kind() == reflect.Ptr && t == scopeType {
		return s, nil
	}

	if group != "" {
		values, err := s.resolveGroup(t, group, ic)
		if err != nil {
			return nil, err
		}
		slice := reflect.MakeSlice(reflect.SliceOf(t), len(values), len(values))
		for i, v := range values {
			slice.Index(i).Set(reflect.ValueOf(v))
		}
		return slice.Interface(), nil
	}

	if shape, ok := wrapper.Recognize(t); ok {
		return s.resolveWrapper(t, shape, ic)
	}

	// Values already bound in this injection context (factory arguments,
	// PerContext instances) take precedence over a fresh lookup.
	if v, ok := ic.PerContext(icontext.Key{Type: t, Key: key}); ok {
		return v, nil
	}

	descriptor, ok := s.provider.findStrategy(t, key)
	if !ok {
		return nil, &NoMatchingExportError{ServiceType: t, Key: key}
	}

	return s.resolveDescriptor(descriptor, t, ic)
}

func (s *Scope) resolveGroup(t reflect.Type, group string, ic *icontext.Context) ([]any, error) {
	descriptors := s.provider.findGroup(t, group)
	out := make([]any, 0, len(descriptors))
	for _, d := range descriptors {
		v, err := s.resolveDescriptor(d, d.Type, ic)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// resolveDescriptor activates d, caching/tracking the result under
// requested rather than d.Type: for a closed-type strategy the two are
// the same type, but for an open-generic strategy d.Type is only the
// template instantiation used to derive GenericBase, so every distinct
// requested instantiation (Repository[int] vs Repository[string]) needs
// its own cache entry even though they share one Descriptor.
func (s *Scope) resolveDescriptor(d *Descriptor, requested reflect.Type, ic *icontext.Context) (any, error) {
	chainKey := icontext.Key{Type: requested, Key: d.Key, Group: d.Group}
	if !ic.Enter(chainKey) {
		chain := ic.Chain()
		types := make([]reflect.Type, 0, len(chain))
		for _, k := range chain {
			types = append(types, k.Type)
		}
		return nil, &CircularDependencyError{ServiceType: requested, Chain: types}
	}
	defer ic.Leave()

	resolutionKey := d.Key
	if resolutionKey == nil {
		resolutionKey = d.Seq
	}

	switch d.Lifetime {
	case Singleton:
		if v, ok := s.provider.lifetimes.Access(requested, resolutionKey, lifetime.Singleton, s.provider.rootScope.id); ok {
			return v, nil
		}
		v, err := s.activate(d, requested, ic)
		if err != nil {
			return nil, err
		}
		if err := s.provider.lifetimes.Track(v, requested, resolutionKey, lifetime.Singleton, s.provider.rootScope.id); err != nil {
			return nil, err
		}
		return v, nil

	case Scoped:
		if v, ok := s.provider.lifetimes.Access(requested, resolutionKey, lifetime.Scoped, s.id); ok {
			return v, nil
		}
		v, err := s.activate(d, requested, ic)
		if err != nil {
			return nil, err
		}
		if err := s.provider.lifetimes.Track(v, requested, resolutionKey, lifetime.Scoped, s.id); err != nil {
			return nil, err
		}
		return v, nil

	case PerContext:
		pcKey := icontext.Key{Type: requested, Key: d.Key, Group: d.Group}
		if v, ok := ic.PerContext(pcKey); ok {
			return v, nil
		}
		v, err := s.activate(d, requested, ic)
		if err != nil {
			return nil, err
		}
		ic.SetPerContext(pcKey, v)
		return v, nil

	default: // Transient
		v, err := s.activate(d, requested, ic)
		if err != nil {
			return nil, err
		}
		_ = s.provider.lifetimes.Track(v, requested, resolutionKey, lifetime.Transient, s.id)
		return v, nil
	}
}

// activate runs (or retrieves from the shared delegate cache) the
// compiled activation for d, then applies its decorators.
func (s *Scope) activate(d *Descriptor, requested reflect.Type, ic *icontext.Context) (any, error) {
	resolver := scopeResolver{scope: s, ic: ic}

	if d.IsOpenGeneric() {
		return s.activateOpenGeneric(d, requested, resolver)
	}

	cacheKey := cache.Key{Key: d}
	compiled, err := s.provider.delegates.LoadOrCompile(cacheKey, func() (any, error) {
		return compiler.Compile(compiler.Spec{
			IsInstance:       d.IsInstance,
			Instance:         d.Instance,
			ConstructorType:  d.ConstructorType,
			Constructor:      d.Constructor,
			IsParamObject:    d.isParamObject,
			Dependencies:     d.Dependencies,
			MultiReturnIndex: d.MultiReturnIndex,
			ResultFieldIndex: d.ResultFieldIndex,
			Decorators:       s.decoratorSteps(d.Type, resolver),
		}), nil
	})
	if err != nil {
		return nil, err
	}

	activation := compiled.(compiler.Activation)
	v, err := activation(resolver)
	if err != nil {
		return nil, &ResolutionError{ServiceType: d.Type, Key: d.Key, Cause: err}
	}
	return v, nil
}

func (s *Scope) activateOpenGeneric(d *Descriptor, requested reflect.Type, resolver reflection.DependencyResolver) (any, error) {
	args := make([]reflect.Value, 0, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		v, err := resolveValue(resolver, dep)
		if err != nil {
			if dep.Optional {
				args = append(args, reflect.Zero(dep.Type))
				continue
			}
			return nil, &ResolutionError{ServiceType: requested, Cause: err}
		}
		args = append(args, v)
	}

	result, err := d.OpenGenericBuilder(requested, args)
	if err != nil {
		return nil, &ResolutionError{ServiceType: requested, Cause: err}
	}

	instance := result.Interface()
	for _, step := range s.decoratorSteps(requested, resolver) {
		instance, err = step.Apply(instance, func(t reflect.Type, dep *reflection.Dependency) (reflect.Value, error) {
			return resolveValue(resolver, dep)
		})
		if err != nil {
			return nil, err
		}
	}
	return instance, nil
}

func resolveValue(resolver reflection.DependencyResolver, dep *reflection.Dependency) (reflect.Value, error) {
	t := dep.Type
	var (
		v   any
		err error
	)
	switch {
	case dep.Group != "":
		var values []any
		values, err = resolver.GetGroup(t, dep.Group)
		if err == nil {
			slice := reflect.MakeSlice(reflect.SliceOf(t), len(values), len(values))
			for i, val := range values {
				slice.Index(i).Set(reflect.ValueOf(val))
			}
			return slice, nil
		}
	case dep.Key != nil:
		v, err = resolver.GetKeyed(t, dep.Key)
	default:
		v, err = resolver.Get(t)
	}
	if err != nil {
		return reflect.Value{}, err
	}
	if v == nil {
		return reflect.Zero(t), nil
	}
	return reflect.ValueOf(v), nil
}

// decoratorSteps gathers the (already priority-sorted) decorator chain
// registered for t, each adapted to compiler.DecoratorStep.
func (s *Scope) decoratorSteps(t reflect.Type, resolver reflection.DependencyResolver) []compiler.DecoratorStep {
	decorators := s.provider.findDecorators(t)
	if len(decorators) == 0 {
		return nil
	}
	steps := make([]compiler.DecoratorStep, len(decorators))
	for i, dec := range decorators {
		dec := dec
		steps[i] = compiler.DecoratorStep{
			Apply: func(instance any, resolve func(reflect.Type, *reflection.Dependency) (reflect.Value, error)) (any, error) {
				return dec.Invoke(instance, func(pt reflect.Type, pdep *reflection.Dependency) (reflect.Value, error) {
					if pdep == nil {
						pdep = &reflection.Dependency{Type: pt}
					}
					return resolve(pt, pdep)
				})
			},
		}
	}
	return steps
}

// scopeResolver adapts a Scope + injection context into a
// reflection.DependencyResolver for constructor argument resolution.
type scopeResolver struct {
	scope *Scope
	ic    *icontext.Context
}

func (r scopeResolver) Get(t reflect.Type) (any, error) {
	return r.scope.resolve(t, nil, "", r.ic)
}

func (r scopeResolver) GetKeyed(t reflect.Type, key any) (any, error) {
	return r.scope.resolve(t, key, "", r.ic)
}

func (r scopeResolver) GetGroup(t reflect.Type, group string) ([]any, error) {
	return r.scope.resolveGroup(t, group, r.ic)
}

// resolveWrapper builds a value of wrapper type t, whose recognized shape
// is described by shape, by recursively resolving its Elem (and, for
// FactoryN, its argument types) through this scope.
func (s *Scope) resolveWrapper(t reflect.Type, shape wrapper.Shape, ic *icontext.Context) (any, error) {
	switch shape.Kind {
	case wrapper.Array:
		values, err := s.provider.collectAll(shape.Elem, func(d *Descriptor) (any, error) {
			return s.resolveDescriptor(d, shape.Elem, ic)
		})
		if err != nil {
			return nil, err
		}
		slice := reflect.MakeSlice(t, len(values), len(values))
		for i, v := range values {
			slice.Index(i).Set(reflect.ValueOf(v))
		}
		return slice.Interface(), nil

	case wrapper.Collection:
		values, err := s.provider.collectAll(shape.Elem, func(d *Descriptor) (any, error) {
			return s.resolveDescriptor(d, shape.Elem, ic)
		})
		if err != nil {
			return nil, err
		}
		reflectValues := make([]reflect.Value, len(values))
		for i, v := range values {
			reflectValues[i] = reflect.ValueOf(v)
		}
		return wrapper.BuildCollection(t, reflectValues).Interface(), nil

	case wrapper.Lazy:
		return wrapper.BuildLazy(t, func() (reflect.Value, error) {
			v, err := s.resolve(shape.Elem, nil, "", icontext.New())
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(v), nil
		}).Interface(), nil

	case wrapper.Optional:
		v, found, err := s.tryResolveValue(shape.Elem, ic)
		if err != nil {
			return nil, err
		}
		if !found {
			return wrapper.BuildOptional(t, reflect.Value{}, false).Interface(), nil
		}
		return wrapper.BuildOptional(t, reflect.ValueOf(v), true).Interface(), nil

	case wrapper.Owned:
		child := s.BeginLifetimeScope(s.ctx)
		v, err := child.resolve(shape.Elem, nil, "", icontext.New())
		if err != nil {
			_ = child.Close()
			return nil, err
		}
		return wrapper.BuildOwned(t, reflect.ValueOf(v), reflect.ValueOf(child)).Interface(), nil

	case wrapper.Factory0, wrapper.Factory1, wrapper.Factory2, wrapper.Factory3:
		return wrapper.BuildFactory(t, func(args []reflect.Value) (reflect.Value, error) {
			fic := icontext.New()
			for i, argType := range shape.Args {
				fic.SetPerContext(icontext.Key{Type: argType}, args[i].Interface())
			}
			v, err := s.resolve(shape.Elem, nil, "", fic)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(v), nil
		}).Interface(), nil
	}

	return nil, &NoMatchingExportError{ServiceType: t}
}

func (s *Scope) tryResolveValue(t reflect.Type, ic *icontext.Context) (any, bool, error) {
	v, err := s.resolve(t, nil, "", ic)
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}
