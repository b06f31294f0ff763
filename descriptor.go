package wireup

import (
	"fmt"
	"reflect"
	"strconv"
	"sync/atomic"

	"github.com/wireup-go/wireup/internal/reflection"
	"github.com/wireup-go/wireup/internal/typeindex"
)

// Global atomic counter for fast void-return service key generation.
var voidKeyCounter uint64

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Descriptor is an export strategy: a registered recipe for producing
// instances of a service type. A Collection holds zero or more
// Descriptors per type, ordered by Priority (descending) and then by
// registration order.
type Descriptor struct {
	// Type is the service type this descriptor produces. For an open
	// generic registration this is the template instantiation (e.g.
	// Repository[struct{}]) used purely to compute GenericBase; requests
	// are matched against GenericBase, not Type, for open generics.
	Type reflect.Type

	// Key is optional - for named/keyed services.
	Key any

	// Group this provider belongs to.
	Group string

	// Lifetime determines instance caching behavior.
	Lifetime Lifetime

	// Priority orders strategies that export the same type; higher
	// priority is preferred. Strategies of equal priority are tried in
	// registration order.
	Priority int

	// Seq is the registration order of this descriptor within its
	// Collection, used to break Priority ties.
	Seq int64

	// GenericBase is non-empty when this descriptor is an open-generic
	// export: the package-qualified name of the generic type with its
	// bracketed type argument list stripped (e.g. "myapp.Repository").
	// A request matches this descriptor when the requested type's own
	// GenericBase equals this value.
	GenericBase string

	// OpenGenericBuilder constructs an instance for a specific
	// instantiation of an open-generic export. Set only when
	// GenericBase is non-empty.
	OpenGenericBuilder OpenGenericBuilder

	// Constructor is the reflected function value.
	Constructor reflect.Value

	// ConstructorType is the type of the constructor function.
	ConstructorType reflect.Type

	// Dependencies are the analyzed dependencies.
	Dependencies []*reflection.Dependency

	// As is an optional list of interface types this service can be
	// registered as, in addition to (or instead of) its concrete type.
	As []any

	// IsInstance indicates if this descriptor holds an instance value.
	IsInstance bool

	// Instance is the actual instance value when IsInstance is true.
	Instance any

	// MultiReturnIndex indicates which return value this descriptor
	// represents: -1 for single returns or Out structs, >= 0 for a
	// specific return index in a multi-return constructor.
	MultiReturnIndex int

	// ResultFieldIndex indicates which field of an Out struct this
	// descriptor extracts after construction: -1 unless this descriptor
	// was expanded from one field of a result object.
	ResultFieldIndex int

	// VoidReturn indicates the constructor has no usable return values
	// (only errors, or nothing at all).
	VoidReturn bool

	// Analysis results cached for performance.
	isFunc         bool
	isResultObject bool
	resultFields   []reflection.ResultField
	isParamObject  bool
	paramFields    []reflection.ParamField
}

// OpenGenericBuilder constructs an instance of an open-generic export for a
// specific requested instantiation. It receives the already-resolved
// constructor arguments for the descriptor's Dependencies (positionally) and
// the concrete requested type, and is responsible for performing the actual
// type-parameterized construction (typically by delegating to a concrete,
// compile-time instantiation the caller already knows about). Go provides no
// runtime facility to instantiate an arbitrary generic function for a type
// argument only known via reflect.Type, so this callback is the seam where
// the registering code supplies that knowledge.
type OpenGenericBuilder func(requested reflect.Type, args []reflect.Value) (reflect.Value, error)

// newDescriptor creates a new descriptor from a service with the given
// lifetime and options.
func newDescriptor(service any, lifetime Lifetime, analyzer *reflection.Analyzer, opts ...AddOption) (*Descriptor, error) {
	if service == nil {
		return nil, &ValidationError{Cause: ErrConstructorNil}
	}

	options := &addOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyAddOption(options)
		}
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	constructorValue := reflect.ValueOf(service)
	if !constructorValue.IsValid() || (constructorValue.Kind() == reflect.Pointer && constructorValue.IsNil()) {
		return nil, &ValidationError{Cause: ErrConstructorNil}
	}

	constructorType := constructorValue.Type()
	isInstance := constructorType.Kind() != reflect.Func

	if analyzer == nil {
		analyzer = reflection.New()
	}

	info, err := analyzer.Analyze(service)
	if err != nil {
		return nil, &ReflectionAnalysisError{Constructor: service, Operation: "analyze", Cause: err}
	}

	dependencies, err := analyzer.GetDependencies(service)
	if err != nil {
		return nil, &ReflectionAnalysisError{Constructor: service, Operation: "dependencies", Cause: err}
	}

	descriptor := &Descriptor{
		Lifetime:         lifetime,
		Priority:         options.Priority,
		Constructor:      constructorValue,
		ConstructorType:  constructorType,
		Dependencies:     dependencies,
		Group:            options.Group,
		IsInstance:       isInstance,
		MultiReturnIndex: -1,
		ResultFieldIndex: -1,
	}

	if isInstance {
		descriptor.Instance = service
		descriptor.Type = constructorType
	} else {
		numReturns := constructorType.NumOut()
		descriptor.VoidReturn = numReturns == 0
		if !descriptor.VoidReturn {
			allErrors := true
			for i := 0; i < numReturns; i++ {
				if !constructorType.Out(i).Implements(errorType) {
					allErrors = false
					break
				}
			}
			descriptor.VoidReturn = allErrors
		}

		if descriptor.VoidReturn {
			descriptor.Type = reflect.TypeOf((*struct{})(nil)).Elem()
			if descriptor.Key == nil {
				descriptor.Key = "v" + strconv.FormatUint(atomic.AddUint64(&voidKeyCounter, 1), 36)
			}
		} else {
			descriptor.Type = constructorType.Out(0)
		}
	}

	if options.Name != "" {
		descriptor.Key = options.Name
	}

	descriptor.isFunc = info.IsFunc
	descriptor.isResultObject = info.IsResultObject
	descriptor.isParamObject = info.IsParamObject

	if info.IsParamObject && len(info.Parameters) > 0 {
		descriptor.paramFields = make([]reflection.ParamField, 0, len(info.Parameters))
		for _, param := range info.Parameters {
			descriptor.paramFields = append(descriptor.paramFields, reflection.ParamField{
				Name: param.Name, Type: param.Type, Key: param.Key,
				Group: param.Group, Optional: param.Optional, Index: param.Index,
			})
		}
	}

	if info.IsResultObject && len(info.Returns) > 0 {
		descriptor.resultFields = make([]reflection.ResultField, 0, len(info.Returns))
		for _, ret := range info.Returns {
			if !ret.IsError {
				descriptor.resultFields = append(descriptor.resultFields, reflection.ResultField{
					Name: ret.Name, Type: ret.Type, Key: ret.Key, Group: ret.Group, Index: ret.Index,
				})
			}
		}
	}

	return descriptor, nil
}

// newOpenGenericDescriptor builds a descriptor representing an open-generic
// export, matched structurally against requests whose GenericBase equals
// template's.
func newOpenGenericDescriptor(template reflect.Type, lifetime Lifetime, builder OpenGenericBuilder, opts ...AddOption) (*Descriptor, error) {
	if template == nil {
		return nil, &ValidationError{Cause: fmt.Errorf("open generic template type cannot be nil")}
	}
	if builder == nil {
		return nil, &ValidationError{ServiceType: template, Cause: fmt.Errorf("open generic builder cannot be nil")}
	}

	base, ok := genericBaseName(template)
	if !ok {
		return nil, &ValidationError{ServiceType: template, Cause: fmt.Errorf("template type is not a generic instantiation")}
	}

	options := &addOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyAddOption(options)
		}
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	return &Descriptor{
		Type:               template,
		Lifetime:           lifetime,
		Priority:           options.Priority,
		Group:              options.Group,
		Key:                options.Name,
		GenericBase:        base,
		OpenGenericBuilder: builder,
		MultiReturnIndex:   -1,
		ResultFieldIndex:   -1,
	}, nil
}

// genericBaseName returns the package-qualified base name of a generic
// instantiation (the part before its bracketed type argument list), and
// whether t looks like a generic instantiation at all.
func genericBaseName(t reflect.Type) (string, bool) {
	return typeindex.GenericBaseName(t.String())
}

// GetType returns the service type this descriptor produces. Implements the
// graph.Provider interface.
func (d *Descriptor) GetType() reflect.Type {
	return d.Type
}

// GetKey returns the optional key for named/keyed services. Implements the
// graph.Provider interface.
func (d *Descriptor) GetKey() any {
	return d.Key
}

// GetGroup returns the group this provider belongs to.
func (d *Descriptor) GetGroup() string {
	return d.Group
}

// GetDependencies returns the analyzed dependencies for this descriptor.
// Implements the graph.Provider interface.
func (d *Descriptor) GetDependencies() []*reflection.Dependency {
	return d.Dependencies
}

// IsOpenGeneric reports whether this descriptor is an open-generic export.
func (d *Descriptor) IsOpenGeneric() bool {
	return d.GenericBase != ""
}

// Validate validates the descriptor's configuration.
func (d *Descriptor) Validate() error {
	if d.Type == nil {
		return &ValidationError{Cause: ErrDescriptorNil}
	}

	if d.IsOpenGeneric() {
		if d.OpenGenericBuilder == nil {
			return &ValidationError{ServiceType: d.Type, Cause: fmt.Errorf("open generic descriptor has no builder")}
		}
	} else {
		if !d.Constructor.IsValid() || d.ConstructorType == nil {
			return &ValidationError{ServiceType: d.Type, Cause: ErrConstructorNil}
		}
	}

	if d.Key != nil && d.Group != "" {
		return &ValidationError{ServiceType: d.Type, Cause: fmt.Errorf("descriptor cannot have both key and group set")}
	}

	if !d.Lifetime.IsValid() {
		return LifetimeError{Value: d.Lifetime}
	}

	if d.isFunc && !d.VoidReturn {
		if err := d.validateReturnTypes(); err != nil {
			return err
		}
	}

	return d.validateParameterTypes()
}

func (d *Descriptor) validateReturnTypes() error {
	if d.ConstructorType == nil || d.ConstructorType.Kind() != reflect.Func {
		return nil
	}

	for i := 0; i < d.ConstructorType.NumOut(); i++ {
		outType := d.ConstructorType.Out(i)
		if outType.Implements(errorType) {
			continue
		}
		switch outType.Kind() {
		case reflect.Chan:
			return &ValidationError{ServiceType: d.Type, Cause: fmt.Errorf("constructor return type at index %d is a channel, which is not supported", i)}
		case reflect.UnsafePointer:
			return &ValidationError{ServiceType: d.Type, Cause: fmt.Errorf("constructor return type at index %d is an unsafe pointer, which is not supported", i)}
		}
	}
	return nil
}

func (d *Descriptor) validateParameterTypes() error {
	for _, dep := range d.Dependencies {
		if dep == nil || dep.Type == nil {
			continue
		}
		if dep.Group == "" {
			switch dep.Type.Kind() {
			case reflect.Chan:
				return &ValidationError{ServiceType: d.Type, Cause: fmt.Errorf("channel type %s is not supported as a dependency", dep.Type)}
			case reflect.UnsafePointer:
				return &ValidationError{ServiceType: d.Type, Cause: fmt.Errorf("unsafe pointer is not supported as a dependency")}
			}
		}
	}
	return nil
}
