// Package wireup is a dependency injection container built around a
// strategy-collection resolution model: a type may have more than one
// registered export, selected by priority and registration order, plus
// open-generic exports matched structurally against a requested type's
// generic base name.
//
// A Collection accumulates AddSingleton/AddScoped/AddTransient/
// AddPerContext registrations, optional Decorate wrapping, and compiles
// into a Provider via Build. A Provider's root Scope (and any child
// created with BeginLifetimeScope) resolves requested types through
// Locate, the generic Resolve[T], and their Try/All variants.
//
// Built-in wrapper types let a constructor ask for more than "give me a
// T": Lazy[T] defers construction, Optional[T] tolerates an unregistered
// T, Owned[T] pairs a value with the scope that produced it, Factory0[T]
// through Factory3[T] construct a fresh T on demand, and []T /
// iter.Seq[T] collect every strategy registered for T.
package wireup
