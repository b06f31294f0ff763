package wireup

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================

var (
	// Service resolution errors.
	ErrServiceNotFound             = errors.New("service not found")
	ErrServiceKeyNil               = errors.New("service key cannot be nil")
	ErrInvalidServiceType          = errors.New("invalid service type")
	ErrFailedToExtractService      = errors.New("failed to extract service")
	ErrFailedToExtractKeyedService = errors.New("failed to extract keyed service")

	// Lifecycle errors.
	ErrDisposed      = errors.New("disposed")
	ErrNilScope      = errors.New("scope cannot be nil")
	ErrScopeDisposed = errors.New("scope has been disposed")

	// Constructor/registration errors.
	ErrConstructorNil                 = errors.New("constructor cannot be nil")
	ErrConstructorNotFunction         = errors.New("constructor must be a function")
	ErrConstructorNoReturn            = errors.New("constructor must return at least one value")
	ErrConstructorInvalidSecondReturn = errors.New("constructor's second return value must be error")
	ErrConstructorMultipleIn          = errors.New("constructor cannot have multiple In parameters")

	// Decorator errors.
	ErrDecoratorNil         = errors.New("decorator cannot be nil")
	ErrDecoratorNotFunction = errors.New("decorator must be a function")
	ErrDecoratorNoParams    = errors.New("decorator must have at least one parameter")
	ErrDecoratorNoReturn    = errors.New("decorator must return at least one value")

	// Collection/descriptor errors.
	ErrCollectionBuilt            = errors.New("service collection has already been built")
	ErrCollectionModifyAfterBuild = errors.New("cannot modify service collection after build")
	ErrDescriptorNil              = errors.New("descriptor cannot be nil")

	// Context errors.
	ErrScopeNotInContext = errors.New("no scope found in context")
)

// ========================================
// Typed Errors for Rich Context
// ========================================

// LifetimeError indicates an invalid service lifetime value.
type LifetimeError struct {
	Value any
}

func (e LifetimeError) Error() string {
	return fmt.Sprintf("invalid service lifetime: %v", e.Value)
}

// NoMatchingExportError is returned when no registered strategy can produce
// the requested type, and no missing-export provider covers it either.
type NoMatchingExportError struct {
	ServiceType reflect.Type
	Key         any
}

func (e *NoMatchingExportError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("no matching export for %s[%v]", formatType(e.ServiceType), e.Key)
	}
	return fmt.Sprintf("no matching export for %s", formatType(e.ServiceType))
}

func (e *NoMatchingExportError) Is(target error) bool {
	_, ok := target.(*NoMatchingExportError)
	return ok
}

// CircularDependencyError represents a dependency cycle discovered either
// statically (build-time graph validation) or while compiling an activation
// delegate (runtime request-chain check).
type CircularDependencyError struct {
	ServiceType reflect.Type
	Chain       []reflect.Type
}

func (e *CircularDependencyError) Error() string {
	if len(e.Chain) == 0 {
		return fmt.Sprintf("circular dependency detected for service: %s", formatType(e.ServiceType))
	}

	chain := make([]string, 0, len(e.Chain)+1)
	for _, t := range e.Chain {
		chain = append(chain, formatType(t))
	}
	if e.ServiceType != nil {
		chain = append(chain, formatType(e.ServiceType))
	}

	return fmt.Sprintf("circular dependency detected: %s", strings.Join(chain, " -> "))
}

// ResolutionError wraps errors that occur while compiling or running an
// activation delegate for a requested type.
type ResolutionError struct {
	ServiceType reflect.Type
	Key         any
	Cause       error
}

func (e *ResolutionError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("unable to resolve %s[%v]: %v", formatType(e.ServiceType), e.Key, e.Cause)
	}
	return fmt.Sprintf("unable to resolve %s: %v", formatType(e.ServiceType), e.Cause)
}

func (e *ResolutionError) Unwrap() error {
	return e.Cause
}

// MissingConstructorParamError indicates a required constructor parameter
// could not be resolved and was not marked optional.
type MissingConstructorParamError struct {
	DependentType  reflect.Type
	DependencyType reflect.Type
	Key            any
	Group          string
}

func (e *MissingConstructorParamError) Error() string {
	var dependency string
	switch {
	case e.Group != "":
		dependency = fmt.Sprintf("group %q of type %s", e.Group, formatType(e.DependencyType))
	case e.Key != nil:
		dependency = fmt.Sprintf("%s[%v]", formatType(e.DependencyType), e.Key)
	default:
		dependency = formatType(e.DependencyType)
	}

	return fmt.Sprintf("%s requires %s which is not registered", formatType(e.DependentType), dependency)
}

// GenericConstraintUnsatisfiedError indicates an open-generic strategy's type
// parameters cannot be substituted to satisfy a generic constraint.
type GenericConstraintUnsatisfiedError struct {
	OpenGeneric reflect.Type
	Requested   reflect.Type
	Constraint  string
}

func (e *GenericConstraintUnsatisfiedError) Error() string {
	return fmt.Sprintf("open generic %s cannot satisfy constraint %s for requested type %s",
		formatType(e.OpenGeneric), e.Constraint, formatType(e.Requested))
}

// NullInstanceReturnedError indicates a constructor returned a nil instance
// for a non-optional, non-interface request where a null is never valid.
type NullInstanceReturnedError struct {
	ServiceType reflect.Type
}

func (e *NullInstanceReturnedError) Error() string {
	return fmt.Sprintf("constructor for %s returned a nil instance", formatType(e.ServiceType))
}

// LifestyleViolationError indicates a registration violates a lifestyle
// compatibility rule (e.g. a singleton depending on a scoped export).
type LifestyleViolationError struct {
	ServiceType   reflect.Type
	Lifestyle     Lifetime
	DependsOn     reflect.Type
	DependsOnLife Lifetime
}

func (e *LifestyleViolationError) Error() string {
	return fmt.Sprintf("%s export (%s) cannot depend on %s (%s)",
		formatType(e.ServiceType), e.Lifestyle, formatType(e.DependsOn), e.DependsOnLife)
}

// ScopeDisposedError indicates an operation was attempted against a scope
// that has already released its resources.
type ScopeDisposedError struct {
	ScopeID string
}

func (e *ScopeDisposedError) Error() string {
	return fmt.Sprintf("scope %s has been disposed", e.ScopeID)
}

// ValidationError indicates a validation failure while building a descriptor
// or collection.
type ValidationError struct {
	ServiceType reflect.Type
	Message     string
	Cause       error
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.ServiceType != nil {
		return fmt.Sprintf("%s: %s", formatType(e.ServiceType), msg)
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// ReflectionAnalysisError wraps a failure analyzing a constructor's shape.
type ReflectionAnalysisError struct {
	Constructor any
	Operation   string
	Cause       error
}

func (e *ReflectionAnalysisError) Error() string {
	return fmt.Sprintf("failed to %s constructor %T: %v", e.Operation, e.Constructor, e.Cause)
}

func (e *ReflectionAnalysisError) Unwrap() error {
	return e.Cause
}

// ModuleError wraps errors from module registration.
type ModuleError struct {
	Module string
	Cause  error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Cause)
}

func (e *ModuleError) Unwrap() error {
	return e.Cause
}

// BuildError wraps a failure during one phase of Collection.Build.
type BuildError struct {
	Phase   string
	Details string
	Cause   error
}

func (e *BuildError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("build failed during %s: %s: %v", e.Phase, e.Details, e.Cause)
	}
	return fmt.Sprintf("build failed during %s: %v", e.Phase, e.Cause)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// RegistrationError wraps a failure registering a strategy into a
// Collection.
type RegistrationError struct {
	ServiceType reflect.Type
	Operation   string
	Cause       error
}

func (e *RegistrationError) Error() string {
	if e.ServiceType != nil {
		return fmt.Sprintf("failed to %s for %s: %v", e.Operation, formatType(e.ServiceType), e.Cause)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Cause)
}

func (e *RegistrationError) Unwrap() error {
	return e.Cause
}

// AlreadyRegisteredError indicates a non-keyed, non-grouped export of a
// type has already been registered once and cannot be registered again.
type AlreadyRegisteredError struct {
	ServiceType reflect.Type
	Key         any
}

func (e *AlreadyRegisteredError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("%s[%v] is already registered", formatType(e.ServiceType), e.Key)
	}
	return fmt.Sprintf("%s is already registered", formatType(e.ServiceType))
}

// TypeMismatchError indicates a registered concrete type does not satisfy
// an interface it was registered As.
type TypeMismatchError struct {
	Expected reflect.Type
	Actual   reflect.Type
	Context  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s does not satisfy %s (%s)", formatType(e.Actual), formatType(e.Expected), e.Context)
}

// DecoratorError represents an error applying a decorator during compilation.
type DecoratorError struct {
	ServiceType reflect.Type
	Cause       error
}

func (e *DecoratorError) Error() string {
	return fmt.Sprintf("decorator for %s failed: %v", formatType(e.ServiceType), e.Cause)
}

func (e *DecoratorError) Unwrap() error {
	return e.Cause
}

// ========================================
// Error Analysis Functions
// ========================================

// IsNotFound reports whether err indicates no matching export was found.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrServiceNotFound) {
		return true
	}
	var noMatch *NoMatchingExportError
	if errors.As(err, &noMatch) {
		return true
	}
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return IsNotFound(resErr.Cause)
	}
	return false
}

// IsCircularDependency reports whether err is a CircularDependencyError.
func IsCircularDependency(err error) bool {
	var circErr *CircularDependencyError
	return errors.As(err, &circErr)
}

// IsDisposed reports whether err indicates a disposed scope.
func IsDisposed(err error) bool {
	if err == nil {
		return false
	}
	var scopeErr *ScopeDisposedError
	if errors.As(err, &scopeErr) {
		return true
	}
	return errors.Is(err, ErrDisposed) || errors.Is(err, ErrScopeDisposed)
}

// IsTimeout reports whether err is due to a context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// ========================================
// Type Formatting
// ========================================

// formatType formats a reflect.Type for error messages.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
