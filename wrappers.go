package wireup

// Lazy defers resolution of T until Get is called, memoizing the result
// (and any error) for the lifetime of the value. Requesting Lazy[T]
// instead of T lets a constructor depend on something expensive without
// forcing its construction before it is actually used.
//
// The Resolve field is populated by the container; constructing a Lazy
// value directly (outside of resolution) is only useful for tests, via
// Lazy[T]{Resolve: func() (T, error) { ... }}.
type Lazy[T any] struct {
	Resolve func() (T, error)
}

// Get returns the wrapped value by calling Resolve. A container-built
// Resolve resolves T on its first call and returns that memoized result
// on every later call.
func (l Lazy[T]) Get() (T, error) {
	if l.Resolve == nil {
		var zero T
		return zero, ErrConstructorNil
	}
	return l.Resolve()
}

// Optional resolves T if a strategy exists for it, without failing
// resolution when none does. Ok is false and Value is the zero value of T
// when nothing was registered.
type Optional[T any] struct {
	Value T
	Ok    bool
}

// Get returns the resolved value and whether it was actually found.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Ok
}

// Owned pairs a resolved value with the Scope that produced it, so the
// requester can dispose that instance (and everything transitively
// created for it) independently of the scope's own lifetime. Scope is
// populated by the container.
type Owned[T any] struct {
	Value T
	Scope *Scope
}

// Close disposes the scope that produced Value.
func (o Owned[T]) Close() error {
	if o.Scope == nil {
		return nil
	}
	return o.Scope.Close()
}

// Factory0 constructs a fresh T on every call, using the resolving
// scope's current dependency set.
type Factory0[T any] func() (T, error)

// Factory1 constructs a fresh T from one caller-supplied argument on
// every call.
type Factory1[A, T any] func(a A) (T, error)

// Factory2 constructs a fresh T from two caller-supplied arguments on
// every call.
type Factory2[A, B, T any] func(a A, b B) (T, error)

// Factory3 constructs a fresh T from three caller-supplied arguments on
// every call.
type Factory3[A, B, C, T any] func(a A, b B, c C) (T, error)
