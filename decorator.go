package wireup

import (
	"fmt"
	"reflect"

	"github.com/wireup-go/wireup/internal/reflection"
)

// DecoratorDescriptor is a registered decorator: a function whose first
// parameter receives an already-constructed instance of ServiceType and
// whose return value replaces it. Additional parameters are resolved as
// ordinary dependencies. Decorators of the same ServiceType apply in
// registration order, each wrapping the previous result (first registered
// is innermost).
type DecoratorDescriptor struct {
	ServiceType reflect.Type

	// GenericBase is set when the decorator's first parameter is an open
	// generic instantiation; it is matched against a requested type's own
	// GenericBase the same way Descriptor.GenericBase is.
	GenericBase string

	Key      any
	Group    string
	Priority int
	Seq      int64

	Constructor     reflect.Value
	ConstructorType reflect.Type

	// Dependencies are the decorator's parameters after the decorated
	// instance itself (index 0).
	Dependencies []*reflection.Dependency
}

func newDecoratorDescriptor(decorator any, seq int64, analyzer *reflection.Analyzer, opts ...AddOption) (*DecoratorDescriptor, error) {
	if decorator == nil {
		return nil, &ValidationError{Cause: ErrDecoratorNil}
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

	fn := reflect.ValueOf(decorator)
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return nil, &ValidationError{Cause: ErrDecoratorNotFunction}
	}

	fnType := fn.Type()
	if fnType.NumIn() == 0 {
		return nil, &ValidationError{Cause: ErrDecoratorNoParams}
	}
	if fnType.NumOut() == 0 {
		return nil, &ValidationError{Cause: ErrDecoratorNoReturn}
	}
	if fnType.NumOut() > 1 && !fnType.Out(1).Implements(errorType) {
		return nil, &ValidationError{Cause: ErrConstructorInvalidSecondReturn}
	}

	if analyzer == nil {
		analyzer = reflection.New()
	}

	deps, err := analyzer.GetDependencies(decorator)
	if err != nil {
		return nil, &ReflectionAnalysisError{Constructor: decorator, Operation: "dependencies", Cause: err}
	}

	serviceType := fnType.In(0)
	base, _ := genericBaseName(serviceType)

	if len(deps) > 0 && deps[0] != nil && deps[0].Type == serviceType {
		deps = deps[1:]
	}

	return &DecoratorDescriptor{
		ServiceType:     serviceType,
		GenericBase:     base,
		Key:             options.Name,
		Group:           options.Group,
		Priority:        options.Priority,
		Seq:             seq,
		Constructor:     fn,
		ConstructorType: fnType,
		Dependencies:    deps,
	}, nil
}

// Invoke applies the decorator to instance, resolving additional parameters
// through resolve. resolve is handed each dependency's parameter type plus
// its analyzed metadata (group/optional/key) so the caller can apply the
// same resolution rules used for ordinary constructor parameters.
func (d *DecoratorDescriptor) Invoke(instance any, resolve func(reflect.Type, *reflection.Dependency) (reflect.Value, error)) (any, error) {
	in := make([]reflect.Value, 0, 1+len(d.Dependencies))

	instanceVal := reflect.ValueOf(instance)
	if !instanceVal.IsValid() {
		instanceVal = reflect.Zero(d.ServiceType)
	}
	if !instanceVal.Type().AssignableTo(d.ServiceType) {
		return nil, &DecoratorError{
			ServiceType: d.ServiceType,
			Cause:       fmt.Errorf("instance of type %s is not assignable to decorator parameter type %s", instanceVal.Type(), d.ServiceType),
		}
	}
	in = append(in, instanceVal)

	for i, dep := range d.Dependencies {
		paramType := d.ConstructorType.In(i + 1)
		val, err := resolve(paramType, dep)
		if err != nil {
			if dep != nil && dep.Optional {
				val = reflect.Zero(paramType)
			} else {
				return nil, &DecoratorError{ServiceType: d.ServiceType, Cause: err}
			}
		}
		in = append(in, val)
	}

	out := d.Constructor.Call(in)
	if len(out) > 1 && !out[1].IsNil() {
		return nil, &DecoratorError{ServiceType: d.ServiceType, Cause: out[1].Interface().(error)}
	}

	return out[0].Interface(), nil
}
