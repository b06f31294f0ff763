// Package wrapper implements wrapper-type resolution (C3): recognizing
// when a requested type is one of the container's built-in generic
// wrappers (iter.Seq[T], []T, Factory0[T]..Factory3[T], Lazy[T],
// Optional[T], Owned[T]) and building a value of that exact, already
// fully-instantiated reflect.Type.
//
// Go erases type parameters at compile time, so this package never
// constructs a wrapper "for T" in the generic sense - by the time a
// constructor parameter or Locate call names wireup.Lazy[Foo], the caller's
// own code has already monomorphized it into a concrete reflect.Type. What
// this package does is read that concrete type's shape (its single field's
// func signature, or its Value/Ok/Scope field layout) to recover the inner
// element type, and use reflect.MakeFunc / reflect.New to populate a value
// of that same concrete type - all without ever naming T.
package wrapper

import "reflect"

// Kind identifies which wrapper shape a type matched.
type Kind int

const (
	None Kind = iota
	Array
	Factory0
	Factory1
	Factory2
	Factory3
	Lazy
	Optional
	Owned
	Collection
)

// Shape describes a recognized wrapper type.
type Shape struct {
	Kind Kind
	Elem reflect.Type   // T
	Args []reflect.Type // factory argument types, for FactoryN
}

var errorIface = reflect.TypeOf((*error)(nil)).Elem()

// Recognize reports whether t is one of the built-in wrapper shapes.
func Recognize(t reflect.Type) (Shape, bool) {
	if t == nil {
		return Shape{}, false
	}
	switch t.Kind() {
	case reflect.Slice:
		return Shape{Kind: Array, Elem: t.Elem()}, true
	case reflect.Func:
		return recognizeFunc(t)
	case reflect.Struct:
		return recognizeStruct(t)
	}
	return Shape{}, false
}

func recognizeFunc(t reflect.Type) (Shape, bool) {
	// The Collection shape is iter.Seq[T]: func(yield func(T) bool).
	if t.NumIn() == 1 && t.NumOut() == 0 {
		yield := t.In(0)
		if yield.Kind() == reflect.Func && yield.NumIn() == 1 && yield.NumOut() == 1 && yield.Out(0).Kind() == reflect.Bool {
			return Shape{Kind: Collection, Elem: yield.In(0)}, true
		}
	}

	// FactoryN[T]: func(args...) (T, error).
	if t.NumOut() == 2 && t.Out(1) == errorIface {
		switch t.NumIn() {
		case 0:
			return Shape{Kind: Factory0, Elem: t.Out(0)}, true
		case 1:
			return Shape{Kind: Factory1, Elem: t.Out(0), Args: []reflect.Type{t.In(0)}}, true
		case 2:
			return Shape{Kind: Factory2, Elem: t.Out(0), Args: []reflect.Type{t.In(0), t.In(1)}}, true
		case 3:
			return Shape{Kind: Factory3, Elem: t.Out(0), Args: []reflect.Type{t.In(0), t.In(1), t.In(2)}}, true
		}
	}

	return Shape{}, false
}

func recognizeStruct(t reflect.Type) (Shape, bool) {
	switch t.NumField() {
	case 1:
		// Lazy[T]{ Resolve func() (T, error) }
		f := t.Field(0)
		if f.Name != "Resolve" || f.Type.Kind() != reflect.Func {
			return Shape{}, false
		}
		ft := f.Type
		if ft.NumIn() != 0 || ft.NumOut() != 2 || ft.Out(1) != errorIface {
			return Shape{}, false
		}
		return Shape{Kind: Lazy, Elem: ft.Out(0)}, true
	case 2:
		value := t.Field(0)
		second := t.Field(1)
		if value.Name != "Value" {
			return Shape{}, false
		}
		switch {
		case second.Name == "Ok" && second.Type.Kind() == reflect.Bool:
			return Shape{Kind: Optional, Elem: value.Type}, true
		case second.Name == "Scope" && second.Type.Kind() == reflect.Ptr:
			return Shape{Kind: Owned, Elem: value.Type}, true
		}
	}
	return Shape{}, false
}

// BuildLazy constructs a value of t (which must be the shape recognized as
// Lazy) whose Resolve field invokes resolve at most once, memoizing the
// result.
func BuildLazy(t reflect.Type, resolve func() (reflect.Value, error)) reflect.Value {
	structVal := reflect.New(t).Elem()
	fieldType := t.Field(0).Type

	var (
		done   bool
		cached reflect.Value
		cerr   error
	)

	shim := reflect.MakeFunc(fieldType, func([]reflect.Value) []reflect.Value {
		if !done {
			cached, cerr = resolve()
			if cerr != nil {
				cached = reflect.Zero(fieldType.Out(0))
			}
			done = true
		}
		return []reflect.Value{cached, errorValue(fieldType.Out(1), cerr)}
	})

	structVal.Field(0).Set(shim)
	return structVal
}

// BuildOptional constructs a value of t (the Optional shape). When ok is
// false, value is ignored and the zero value is used instead.
func BuildOptional(t reflect.Type, value reflect.Value, ok bool) reflect.Value {
	structVal := reflect.New(t).Elem()
	if ok && value.IsValid() {
		structVal.Field(0).Set(value)
	}
	structVal.Field(1).SetBool(ok)
	return structVal
}

// BuildOwned constructs a value of t (the Owned shape), pairing value with
// scopeVal (a reflect.Value of the field's concrete *Scope-ish type).
func BuildOwned(t reflect.Type, value reflect.Value, scopeVal reflect.Value) reflect.Value {
	structVal := reflect.New(t).Elem()
	structVal.Field(0).Set(value)
	if scopeVal.IsValid() {
		structVal.Field(1).Set(scopeVal)
	}
	return structVal
}

// BuildFactory constructs a value of factoryType (a FactoryN shape) that
// calls build with the call's arguments (already reflect.Values of the
// correct parameter types) on every invocation - never memoized, matching
// Factory<T> semantics of "a fresh instance on every call".
func BuildFactory(factoryType reflect.Type, build func(args []reflect.Value) (reflect.Value, error)) reflect.Value {
	return reflect.MakeFunc(factoryType, func(args []reflect.Value) []reflect.Value {
		val, err := build(args)
		outType := factoryType.Out(0)
		if err != nil {
			val = reflect.Zero(outType)
		}
		return []reflect.Value{val, errorValue(factoryType.Out(1), err)}
	})
}

// BuildCollection constructs a value of seqType (the Collection shape, an
// iter.Seq[T]) that ranges over values, calling the supplied yield
// function for each until it returns false.
func BuildCollection(seqType reflect.Type, values []reflect.Value) reflect.Value {
	return reflect.MakeFunc(seqType, func(args []reflect.Value) []reflect.Value {
		yield := args[0]
		for _, v := range values {
			out := yield.Call([]reflect.Value{v})
			if !out[0].Bool() {
				break
			}
		}
		return nil
	})
}

func errorValue(t reflect.Type, err error) reflect.Value {
	v := reflect.New(t).Elem()
	if err != nil {
		v.Set(reflect.ValueOf(err))
	}
	return v
}
