package wireup

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/wireup-go/wireup/internal/graph"
	"github.com/wireup-go/wireup/internal/reflection"
	"github.com/wireup-go/wireup/internal/typeindex"
)

// TypeKey uniquely identifies a closed (non-generic) export: a concrete
// type paired with an optional name key.
type TypeKey struct {
	Type reflect.Type
	Key  any
}

// GroupKey uniquely identifies a named group of exports of a type.
type GroupKey struct {
	Type  reflect.Type
	Group string
}

// Collection is a builder for a Provider: it accumulates strategies
// (registered constructors), decorators, and modules, then compiles them
// into a working dependency graph via Build.
//
// A Collection is NOT safe for concurrent registration; build it up from a
// single goroutine, then call Build once.
//
//	c := wireup.NewCollection()
//	c.AddSingleton(NewLogger)
//	c.AddScoped(NewDatabase, wireup.Priority(10))
//
//	provider, err := c.Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
type Collection struct {
	mu    sync.RWMutex
	built bool
	seq   int64

	analyzer *reflection.Analyzer

	// strategies holds every closed-type export, keyed by (Type, Key).
	// Multiple strategies may share a key when none of them is the sole
	// "primary" (unkeyed, ungrouped) registration for that type.
	strategies map[TypeKey][]*Descriptor

	// groups holds exports registered into a named group.
	groups map[GroupKey][]*Descriptor

	// openGeneric holds open-generic exports, keyed by GenericBase.
	openGeneric map[string][]*Descriptor

	// decorators holds closed-type decorators, keyed by ServiceType.
	decorators map[reflect.Type][]*DecoratorDescriptor

	// openGenericDecorators holds decorators whose first parameter is an
	// open-generic instantiation, keyed by GenericBase.
	openGenericDecorators map[string][]*DecoratorDescriptor
}

// reservedTypes can never be registered directly; they are supplied by the
// runtime scope itself.
var reservedTypes = map[reflect.Type]struct{}{
	reflect.TypeOf((*context.Context)(nil)).Elem(): {},
}

func init() {
	reservedTypes[reflect.TypeOf((*Scope)(nil)).Elem()] = struct{}{}
	reservedTypes[reflect.TypeOf((*Scope)(nil))] = struct{}{}
}

// NewCollection creates an empty Collection.
func NewCollection() *Collection {
	return &Collection{
		analyzer:              reflection.New(),
		strategies:            make(map[TypeKey][]*Descriptor),
		groups:                make(map[GroupKey][]*Descriptor),
		openGeneric:           make(map[string][]*Descriptor),
		decorators:            make(map[reflect.Type][]*DecoratorDescriptor),
		openGenericDecorators: make(map[string][]*DecoratorDescriptor),
	}
}

// AddSingleton registers an export with Singleton lifetime: one instance
// is built at most once per Provider and shared by every requester.
func (c *Collection) AddSingleton(service any, opts ...AddOption) error {
	return c.addService(service, Singleton, opts...)
}

// AddScoped registers an export with Scoped lifetime: one instance is
// built per Scope and shared within it.
func (c *Collection) AddScoped(service any, opts ...AddOption) error {
	return c.addService(service, Scoped, opts...)
}

// AddTransient registers an export with Transient lifetime: a new
// instance is built on every request.
func (c *Collection) AddTransient(service any, opts ...AddOption) error {
	return c.addService(service, Transient, opts...)
}

// AddPerContext registers an export with PerContext lifetime: one instance
// is built per top-level Locate call and shared by everything resolved
// during that call.
func (c *Collection) AddPerContext(service any, opts ...AddOption) error {
	return c.addService(service, PerContext, opts...)
}

// AddInstance registers an already-constructed value as a Singleton
// export, skipping constructor analysis.
func (c *Collection) AddInstance(instance any, opts ...AddOption) error {
	return c.addService(instance, Singleton, opts...)
}

// AddOpenGeneric registers an open-generic export. template is a concrete
// instantiation used only to derive the export's GenericBase (e.g.
// Repository[struct{}] for a Repository[T] family); builder performs the
// actual construction for whatever instantiation is requested at
// resolution time, since Go has no runtime facility to instantiate an
// arbitrary generic for a reflect.Type discovered only at request time.
func (c *Collection) AddOpenGeneric(template any, lifetime Lifetime, builder OpenGenericBuilder, opts ...AddOption) error {
	if c.isBuilt() {
		return ErrCollectionModifyAfterBuild
	}

	t := reflect.TypeOf(template)
	descriptor, err := newOpenGenericDescriptor(t, lifetime, builder, opts...)
	if err != nil {
		return &RegistrationError{ServiceType: t, Operation: "create open generic descriptor", Cause: err}
	}
	if err := descriptor.Validate(); err != nil {
		return &RegistrationError{ServiceType: t, Operation: "validate open generic descriptor", Cause: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	descriptor.Seq = c.nextSeq()
	c.openGeneric[descriptor.GenericBase] = append(c.openGeneric[descriptor.GenericBase], descriptor)
	typeindex.Sort(c.openGeneric[descriptor.GenericBase], descriptorPriority, descriptorOrder)
	return nil
}

// Decorate registers a decorator: a function whose first parameter
// receives an already-built instance of its service type and whose return
// value replaces it for every subsequent consumer.
func (c *Collection) Decorate(decorator any, opts ...AddOption) error {
	if c.isBuilt() {
		return ErrCollectionModifyAfterBuild
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.nextSeq()
	descriptor, err := newDecoratorDescriptor(decorator, seq, c.analyzer, opts...)
	if err != nil {
		return &RegistrationError{Operation: "create decorator", Cause: err}
	}

	if descriptor.GenericBase != "" {
		c.openGenericDecorators[descriptor.GenericBase] = append(c.openGenericDecorators[descriptor.GenericBase], descriptor)
		typeindex.Sort(c.openGenericDecorators[descriptor.GenericBase], decoratorPriority, decoratorOrder)
		return nil
	}

	c.decorators[descriptor.ServiceType] = append(c.decorators[descriptor.ServiceType], descriptor)
	typeindex.Sort(c.decorators[descriptor.ServiceType], decoratorPriority, decoratorOrder)
	return nil
}

// AddModules applies one or more RegistrationBlocks to the collection.
func (c *Collection) AddModules(blocks ...RegistrationBlock) error {
	for _, block := range blocks {
		if block == nil {
			continue
		}
		if err := block(c); err != nil {
			return err
		}
	}
	return nil
}

func descriptorPriority(d *Descriptor) int    { return d.Priority }
func descriptorOrder(d *Descriptor) int64     { return d.Seq }
func decoratorPriority(d *DecoratorDescriptor) int { return d.Priority }
func decoratorOrder(d *DecoratorDescriptor) int64  { return d.Seq }

func (c *Collection) isBuilt() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.built
}

func (c *Collection) nextSeq() int64 {
	return atomic.AddInt64(&c.seq, 1)
}

// addService registers service under lifetime, expanding multi-return
// constructors and As-interface registrations into their own strategies.
func (c *Collection) addService(service any, lifetime Lifetime, opts ...AddOption) error {
	if c.isBuilt() {
		return ErrCollectionModifyAfterBuild
	}
	if service == nil {
		return &ValidationError{Cause: ErrConstructorNil}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	descriptor, err := newDescriptor(service, lifetime, c.analyzer, opts...)
	if err != nil {
		return &RegistrationError{Operation: "create descriptor", Cause: err}
	}
	if err := descriptor.Validate(); err != nil {
		return &RegistrationError{ServiceType: descriptor.Type, Operation: "validate descriptor", Cause: err}
	}
	if _, reserved := reservedTypes[descriptor.Type]; reserved {
		return &ValidationError{ServiceType: descriptor.Type, Cause: fmt.Errorf("service type %s is reserved and cannot be registered", formatType(descriptor.Type))}
	}

	options := &addOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyAddOption(options)
		}
	}

	// Expand a constructor returning an Out struct into one strategy per
	// exported field, each extracted from the constructed struct by field
	// index at activation time (see compiler.Spec.ResultFieldIndex).
	if descriptor.isFunc && descriptor.isResultObject {
		if len(descriptor.resultFields) == 0 {
			return &RegistrationError{ServiceType: descriptor.Type, Operation: "register result object", Cause: fmt.Errorf("result object %s exports no fields", formatType(descriptor.Type))}
		}
		for _, rf := range descriptor.resultFields {
			sub := &Descriptor{
				Type:             rf.Type,
				Key:              rf.Key,
				Group:            rf.Group,
				Lifetime:         descriptor.Lifetime,
				Priority:         descriptor.Priority,
				Constructor:      descriptor.Constructor,
				ConstructorType:  descriptor.ConstructorType,
				Dependencies:     descriptor.Dependencies,
				MultiReturnIndex: -1,
				ResultFieldIndex: rf.Index,
				isFunc:           descriptor.isFunc,
				isResultObject:   true,
				isParamObject:    descriptor.isParamObject,
				paramFields:      descriptor.paramFields,
			}
			if err := c.registerDescriptor(sub); err != nil {
				return &RegistrationError{ServiceType: sub.Type, Operation: "register result object field", Cause: err}
			}
		}
		return nil
	}

	// Expand a constructor with multiple non-error, non-Out return values
	// into one strategy per return type.
	if descriptor.isFunc && descriptor.ConstructorType.Kind() == reflect.Func {
		numOut := descriptor.ConstructorType.NumOut()
		nonErrorOut := make([]int, 0, numOut)
		for i := 0; i < numOut; i++ {
			if !descriptor.ConstructorType.Out(i).Implements(errorType) {
				nonErrorOut = append(nonErrorOut, i)
			}
		}

		if len(nonErrorOut) > 1 {
			for n, idx := range nonErrorOut {
				sub := &Descriptor{
					Type:             descriptor.ConstructorType.Out(idx),
					Lifetime:         descriptor.Lifetime,
					Priority:         descriptor.Priority,
					Constructor:      descriptor.Constructor,
					ConstructorType:  descriptor.ConstructorType,
					Dependencies:     descriptor.Dependencies,
					Group:            descriptor.Group,
					MultiReturnIndex: idx,
					ResultFieldIndex: -1,
					isFunc:           descriptor.isFunc,
					isParamObject:    descriptor.isParamObject,
					paramFields:      descriptor.paramFields,
				}
				if options.Name != "" && n == 0 {
					sub.Key = options.Name
				}
				if err := c.registerDescriptor(sub); err != nil {
					return &RegistrationError{ServiceType: sub.Type, Operation: "register multi-return strategy", Cause: err}
				}
			}
			return nil
		}
	}

	if len(options.As) > 0 {
		for _, iface := range options.As {
			interfaceType := reflect.TypeOf(iface).Elem()
			if !descriptor.Type.Implements(interfaceType) && !reflect.PointerTo(descriptor.Type).Implements(interfaceType) {
				return &TypeMismatchError{Expected: interfaceType, Actual: descriptor.Type, Context: "interface implementation"}
			}

			ifaceDescriptor := &Descriptor{
				Type:             interfaceType,
				Key:              descriptor.Key,
				Lifetime:         descriptor.Lifetime,
				Priority:         descriptor.Priority,
				Constructor:      descriptor.Constructor,
				ConstructorType:  descriptor.ConstructorType,
				Dependencies:     descriptor.Dependencies,
				Group:            descriptor.Group,
				As:               options.As,
				IsInstance:       descriptor.IsInstance,
				Instance:         descriptor.Instance,
				MultiReturnIndex: descriptor.MultiReturnIndex,
				ResultFieldIndex: descriptor.ResultFieldIndex,
				isFunc:           descriptor.isFunc,
				isResultObject:   descriptor.isResultObject,
				resultFields:     descriptor.resultFields,
				isParamObject:    descriptor.isParamObject,
				paramFields:      descriptor.paramFields,
			}
			if err := c.registerDescriptor(ifaceDescriptor); err != nil {
				return &RegistrationError{ServiceType: interfaceType, Operation: "register as interface", Cause: err}
			}
		}
		return nil
	}

	return c.registerDescriptor(descriptor)
}

func (c *Collection) registerDescriptor(descriptor *Descriptor) error {
	descriptor.Seq = c.nextSeq()

	if descriptor.Group != "" && descriptor.Key == nil {
		groupKey := GroupKey{Type: descriptor.Type, Group: descriptor.Group}
		c.groups[groupKey] = append(c.groups[groupKey], descriptor)
		typeindex.Sort(c.groups[groupKey], descriptorPriority, descriptorOrder)
		return nil
	}

	key := TypeKey{Type: descriptor.Type, Key: descriptor.Key}
	c.strategies[key] = append(c.strategies[key], descriptor)
	typeindex.Sort(c.strategies[key], descriptorPriority, descriptorOrder)
	return nil
}

// HasService reports whether an unkeyed strategy is registered for t.
func (c *Collection) HasService(t reflect.Type) bool {
	if t == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	strategies, ok := c.strategies[TypeKey{Type: t}]
	return ok && len(strategies) > 0
}

// HasKeyedService reports whether a strategy is registered for t under key.
func (c *Collection) HasKeyedService(t reflect.Type, key any) bool {
	if t == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	strategies, ok := c.strategies[TypeKey{Type: t, Key: key}]
	return ok && len(strategies) > 0
}

// HasGroup reports whether any strategy is registered in group for t.
func (c *Collection) HasGroup(t reflect.Type, group string) bool {
	if t == nil || group == "" {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	strategies, ok := c.groups[GroupKey{Type: t, Group: group}]
	return ok && len(strategies) > 0
}

// Remove removes every unkeyed strategy registered for t.
func (c *Collection) Remove(t reflect.Type) {
	if t == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.strategies, TypeKey{Type: t})
}

// RemoveKeyed removes the strategies registered for t under key.
func (c *Collection) RemoveKeyed(t reflect.Type, key any) {
	if t == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.strategies, TypeKey{Type: t, Key: key})
}

// ToSlice returns every registered strategy, including group members and
// open-generic templates, for inspection.
func (c *Collection) ToSlice() []*Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Descriptor, 0)
	for _, strategies := range c.strategies {
		out = append(out, strategies...)
	}
	for _, strategies := range c.groups {
		out = append(out, strategies...)
	}
	for _, strategies := range c.openGeneric {
		out = append(out, strategies...)
	}
	return out
}

// Count returns the number of registered strategies.
func (c *Collection) Count() int {
	return len(c.ToSlice())
}

// Build compiles the collection into a Provider using default options.
func (c *Collection) Build() (*Provider, error) {
	return c.BuildWithOptions(nil)
}

// BuildWithOptions compiles the collection into a Provider, bounding the
// build itself by options.BuildTimeout when set.
func (c *Collection) BuildWithOptions(options *ProviderOptions) (*Provider, error) {
	if options != nil && options.BuildTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), options.BuildTimeout)
		defer cancel()

		type result struct {
			provider *Provider
			err      error
		}
		done := make(chan result, 1)
		go func() {
			p, err := c.doBuild(options)
			done <- result{p, err}
		}()

		select {
		case <-ctx.Done():
			return nil, &BuildError{Phase: "build", Cause: context.DeadlineExceeded}
		case r := <-done:
			return r.provider, r.err
		}
	}

	return c.doBuild(options)
}

func (c *Collection) doBuild(options *ProviderOptions) (*Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built {
		return nil, ErrCollectionBuilt
	}

	if err := c.validateDependencyGraph(); err != nil {
		return nil, &BuildError{Phase: "validation", Details: "dependency graph validation failed", Cause: err}
	}
	if err := c.validateLifetimes(); err != nil {
		return nil, &BuildError{Phase: "validation", Details: "lifetime validation failed", Cause: err}
	}

	g := graph.NewDependencyGraph()
	for _, strategies := range c.strategies {
		for _, d := range strategies {
			if err := g.AddProvider(d); err != nil {
				return nil, &BuildError{Phase: "graph", Details: fmt.Sprintf("failed to add provider %s", formatType(d.Type)), Cause: err}
			}
		}
	}
	for _, strategies := range c.groups {
		for _, d := range strategies {
			if err := g.AddProvider(d); err != nil {
				return nil, &BuildError{Phase: "graph", Details: fmt.Sprintf("failed to add provider %s", formatType(d.Type)), Cause: err}
			}
		}
	}

	p := newProvider(c, g, options)

	if err := p.createSingletons(); err != nil {
		_ = p.Close()
		return nil, &BuildError{Phase: "singleton-creation", Details: "failed to initialize singletons", Cause: err}
	}

	c.built = true
	return p, nil
}

// validateDependencyGraph checks the static, closed-type portion of the
// graph for cycles. Open-generic and decorator chains are checked at
// compile-delegate time, since their shape depends on the requested type.
func (c *Collection) validateDependencyGraph() error {
	g := graph.NewDependencyGraph()
	for _, strategies := range c.strategies {
		for _, d := range strategies {
			if err := g.AddProvider(d); err != nil {
				return err
			}
		}
	}
	for _, strategies := range c.groups {
		for _, d := range strategies {
			if err := g.AddProvider(d); err != nil {
				return err
			}
		}
	}
	return g.DetectCycles()
}

// validateLifetimes ensures no export other than a Scoped one (Singleton,
// Transient or PerContext) depends on a Scoped export, which could otherwise
// outlive the scope that created it.
func (c *Collection) validateLifetimes() error {
	lifetimes := make(map[TypeKey]Lifetime)
	for key, strategies := range c.strategies {
		for _, d := range strategies {
			lifetimes[TypeKey{Type: key.Type, Key: d.Key}] = d.Lifetime
		}
	}
	for groupKey, strategies := range c.groups {
		for _, d := range strategies {
			lifetimes[TypeKey{Type: groupKey.Type, Key: d.Key}] = d.Lifetime
		}
	}

	check := func(d *Descriptor) error {
		if d.Lifetime == Scoped {
			return nil
		}
		for _, dep := range d.Dependencies {
			if dep == nil {
				continue
			}
			depLife, ok := lifetimes[TypeKey{Type: dep.Type, Key: dep.Key}]
			if !ok {
				continue
			}
			if depLife == Scoped {
				return &LifestyleViolationError{ServiceType: d.Type, Lifestyle: d.Lifetime, DependsOn: dep.Type, DependsOnLife: depLife}
			}
		}
		return nil
	}

	for _, strategies := range c.strategies {
		for _, d := range strategies {
			if err := check(d); err != nil {
				return err
			}
		}
	}
	for _, strategies := range c.groups {
		for _, d := range strategies {
			if err := check(d); err != nil {
				return err
			}
		}
	}
	return nil
}
