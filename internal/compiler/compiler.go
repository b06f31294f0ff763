// Package compiler implements the activation-strategy compiler (C2): it
// turns an analyzed constructor plus its decorator chain into a single
// activation closure that, given a dependency resolver, produces one
// instance. The closure itself is what gets published into the lock-free
// delegate cache in the root package's scope implementation.
package compiler

import (
	"fmt"
	"reflect"

	"github.com/wireup-go/wireup/internal/reflection"
)

// Dependency mirrors reflection.Dependency; compiler never imports the
// root wireup package (which imports compiler), so descriptors are
// described structurally rather than by concrete type.
type Dependency = reflection.Dependency

// DecoratorStep applies one decorator to an already-built instance.
// Resolve is handed the decorator parameter's type and its analyzed
// Dependency metadata (group/key/optional) so it can apply the same
// resolution rules as ordinary constructor parameters.
type DecoratorStep struct {
	Apply func(instance any, resolve func(reflect.Type, *Dependency) (reflect.Value, error)) (any, error)
}

// Spec describes everything the compiler needs to activate one strategy.
// It is built once per Descriptor (at first resolution) and cached by the
// caller; Compile itself is pure with respect to Spec.
type Spec struct {
	// IsInstance marks a pre-built instance; Activation below returns
	// Instance directly without invoking a constructor.
	IsInstance bool
	Instance   any

	// ConstructorType and Constructor describe the registered function.
	ConstructorType reflect.Type
	Constructor     reflect.Value

	// IsParamObject marks a single-parameter constructor taking a struct
	// with an embedded In.
	IsParamObject bool

	// Dependencies are the constructor's parameters (ignored when
	// IsParamObject is true; the param-object builder re-derives field
	// dependencies directly from ConstructorType.In(0)'s struct tags).
	Dependencies []*Dependency

	// MultiReturnIndex selects one return value of a multi-return,
	// non-Out constructor; -1 for single-return constructors.
	MultiReturnIndex int

	// ResultFieldIndex selects one field of a constructed Out struct by
	// field index; -1 unless this Spec was compiled for one field of a
	// result object.
	ResultFieldIndex int

	Decorators []DecoratorStep
}

// Activation is the compiled delegate: call it with a resolver to produce
// one instance, applying the constructor and then every decorator in
// order.
type Activation func(resolver reflection.DependencyResolver) (any, error)

// Compile builds the Activation for spec.
func Compile(spec Spec) Activation {
	return func(resolver reflection.DependencyResolver) (any, error) {
		instance, err := activate(spec, resolver)
		if err != nil {
			return nil, err
		}

		for _, step := range spec.Decorators {
			instance, err = step.Apply(instance, func(t reflect.Type, dep *Dependency) (reflect.Value, error) {
				return resolveValue(resolver, t, dep)
			})
			if err != nil {
				return nil, err
			}
		}

		return instance, nil
	}
}

func activate(spec Spec, resolver reflection.DependencyResolver) (any, error) {
	if spec.IsInstance {
		return spec.Instance, nil
	}

	invoker := reflection.NewConstructorInvoker(reflection.New())

	info := &reflection.ConstructorInfo{
		Type:          spec.ConstructorType,
		Value:         spec.Constructor,
		IsFunc:        true,
		IsParamObject: spec.IsParamObject,
	}

	if !spec.IsParamObject {
		info.Parameters = make([]reflection.ParameterInfo, len(spec.Dependencies))
		for i, dep := range spec.Dependencies {
			paramType := spec.ConstructorType.In(dep.Index)
			info.Parameters[i] = reflection.ParameterInfo{
				Type:     paramType,
				Index:    dep.Index,
				Optional: dep.Optional,
				Group:    dep.Group,
				Key:      dep.Key,
				IsSlice:  dep.Group != "",
				ElemType: dep.Type,
			}
		}
	}

	numOut := spec.ConstructorType.NumOut()
	if numOut > 0 && spec.ConstructorType.Out(numOut-1).Implements(errType) {
		info.HasErrorReturn = true
	}

	effectiveResolver := resolver
	if !spec.IsParamObject {
		effectiveResolver = &perCallResolver{inner: resolver, deps: spec.Dependencies}
	}

	results, err := invoker.Invoke(info, effectiveResolver)
	if err != nil {
		return nil, err
	}

	idx := 0
	if spec.MultiReturnIndex >= 0 {
		idx = spec.MultiReturnIndex
	}
	if idx >= len(results) {
		return nil, fmt.Errorf("constructor returned %d values, no value at index %d", len(results), idx)
	}

	value := results[idx]
	if spec.ResultFieldIndex < 0 {
		return value.Interface(), nil
	}

	fields := value
	if fields.Kind() == reflect.Ptr {
		if fields.IsNil() {
			return nil, fmt.Errorf("result object is nil")
		}
		fields = fields.Elem()
	}
	if spec.ResultFieldIndex >= fields.NumField() {
		return nil, fmt.Errorf("result object has no field at index %d", spec.ResultFieldIndex)
	}
	return fields.Field(spec.ResultFieldIndex).Interface(), nil
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// perCallResolver wraps a DependencyResolver so a failed resolution for a
// parameter marked Optional degrades to its zero value instead of
// failing. reflection.ConstructorInvoker calls Get/GetKeyed/GetGroup once
// per parameter in declaration order with no optional flag of its own, so
// this wrapper tracks that same order against spec.Dependencies to know
// which call corresponds to which parameter.
type perCallResolver struct {
	inner reflection.DependencyResolver
	deps  []*Dependency
	idx   int
}

func (r *perCallResolver) nextDep() *Dependency {
	if r.idx >= len(r.deps) {
		return nil
	}
	d := r.deps[r.idx]
	r.idx++
	return d
}

func (r *perCallResolver) Get(t reflect.Type) (any, error) {
	dep := r.nextDep()
	v, err := r.inner.Get(t)
	if err != nil && dep != nil && dep.Optional {
		return reflect.Zero(t).Interface(), nil
	}
	return v, err
}

func (r *perCallResolver) GetKeyed(t reflect.Type, key any) (any, error) {
	dep := r.nextDep()
	v, err := r.inner.GetKeyed(t, key)
	if err != nil && dep != nil && dep.Optional {
		return reflect.Zero(t).Interface(), nil
	}
	return v, err
}

func (r *perCallResolver) GetGroup(t reflect.Type, group string) ([]any, error) {
	dep := r.nextDep()
	v, err := r.inner.GetGroup(t, group)
	if err != nil && dep != nil && dep.Optional {
		return nil, nil
	}
	return v, err
}

func resolveValue(resolver reflection.DependencyResolver, t reflect.Type, dep *Dependency) (reflect.Value, error) {
	var (
		v   any
		err error
	)

	switch {
	case dep != nil && dep.Group != "":
		var values []any
		values, err = resolver.GetGroup(t, dep.Group)
		if err == nil {
			slice := reflect.MakeSlice(reflect.SliceOf(t), len(values), len(values))
			for i, val := range values {
				slice.Index(i).Set(reflect.ValueOf(val))
			}
			return slice, nil
		}
	case dep != nil && dep.Key != nil:
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
