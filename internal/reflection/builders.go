package reflection

import (
	"fmt"
	"reflect"
)

// DependencyResolver is whatever can answer a field or parameter's
// dependency request. scope implements this to drive constructor
// invocation without reflection importing scope.
type DependencyResolver interface {
	Get(t reflect.Type) (any, error)
	GetKeyed(t reflect.Type, key any) (any, error)
	GetGroup(t reflect.Type, group string) ([]any, error)
}

// ServiceRegistration is one export discovered while processing a result
// object (Out struct): one field, to be registered as though it had been
// produced by its own constructor.
type ServiceRegistration struct {
	Type  reflect.Type
	Value any
	Name  string
	Key   string
	Group string
}

// fieldResolution resolves one struct field's value, shared by
// ParamObjectBuilder (In struct fields) and ConstructorInvoker (plain
// positional parameters) since both reduce to the same three cases: a
// group slice, a keyed lookup, or a plain type lookup.
func fieldResolution(resolver DependencyResolver, t reflect.Type, group string, key any) (reflect.Value, error) {
	if group != "" {
		if t.Kind() != reflect.Slice {
			return reflect.Value{}, fmt.Errorf("group field must be slice, got %v", t.Kind())
		}
		elemType := t.Elem()
		values, err := resolver.GetGroup(elemType, group)
		if err != nil {
			return reflect.Value{}, err
		}
		slice := reflect.MakeSlice(t, len(values), len(values))
		for i, v := range values {
			slice.Index(i).Set(reflect.ValueOf(v))
		}
		return slice, nil
	}

	if key != nil {
		v, err := resolver.GetKeyed(t, key)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(v), nil
	}

	v, err := resolver.Get(t)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(v), nil
}

// ParamObjectBuilder populates a parameter object (a struct embedding In)
// by resolving one dependency per exported field.
type ParamObjectBuilder struct {
	analyzer *Analyzer
}

// NewParamObjectBuilder returns a builder holding analyzer. Field tags are
// read by the package-level tag parser, so the builder does not call into
// analyzer and holds no other state.
func NewParamObjectBuilder(analyzer *Analyzer) *ParamObjectBuilder {
	return &ParamObjectBuilder{analyzer: analyzer}
}

// BuildParamObject allocates a paramType value (dereferencing a pointer
// type) and fills every resolvable field, leaving optional fields whose
// dependency is missing at their zero value.
func (b *ParamObjectBuilder) BuildParamObject(paramType reflect.Type, resolver DependencyResolver) (reflect.Value, error) {
	if resolver == nil {
		return reflect.Value{}, fmt.Errorf("resolver cannot be nil")
	}
	if paramType == nil {
		return reflect.Value{}, fmt.Errorf("paramType cannot be nil")
	}

	structType := paramType
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("param type must be struct, got %v", structType.Kind())
	}

	structPtr := reflect.New(structType)
	structValue := structPtr.Elem()

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Anonymous && isParamMarker(field.Type) {
			continue
		}

		tags := parseFieldTags(field.Tag)
		if tags.Ignore {
			continue
		}

		var key any
		if tags.Name != "" {
			key = tags.Name
		}

		value, err := fieldResolution(resolver, field.Type, tags.Group, key)
		if err != nil {
			if !tags.Optional {
				return reflect.Value{}, fmt.Errorf("failed to resolve field %s: %w", field.Name, err)
			}
			continue
		}

		if dst := structValue.Field(i); dst.CanSet() && value.IsValid() {
			dst.Set(value)
		}
	}

	if paramType.Kind() == reflect.Pointer {
		return structPtr, nil
	}
	return structValue, nil
}

// ResultObjectProcessor turns a result object (a struct embedding Out)
// into one ServiceRegistration per exported field.
type ResultObjectProcessor struct {
	analyzer *Analyzer
}

// NewResultObjectProcessor returns a processor backed by analyzer.
func NewResultObjectProcessor(analyzer *Analyzer) *ResultObjectProcessor {
	return &ResultObjectProcessor{analyzer: analyzer}
}

// ProcessResultObject walks resultType's exported fields and returns one
// registration per field that isn't the embedded Out marker, an ignored
// field, or a nil pointer/interface/slice/map/chan/func value.
func (p *ResultObjectProcessor) ProcessResultObject(result reflect.Value, resultType reflect.Type) ([]ServiceRegistration, error) {
	if result.Kind() == reflect.Pointer {
		if result.IsNil() {
			return nil, fmt.Errorf("result object is nil")
		}
		result = result.Elem()
	}
	if resultType.Kind() == reflect.Pointer {
		resultType = resultType.Elem()
	}
	if result.Kind() != reflect.Struct {
		return nil, fmt.Errorf("result must be struct, got %v", result.Kind())
	}

	registrations := make([]ServiceRegistration, 0, resultType.NumField())
	for i := 0; i < resultType.NumField(); i++ {
		field := resultType.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Anonymous && isResultMarker(field.Type) {
			continue
		}

		tags := parseFieldTags(field.Tag)
		if tags.Ignore {
			continue
		}

		fieldValue := result.Field(i)
		if !fieldValue.IsValid() {
			continue
		}
		switch fieldValue.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
			if fieldValue.IsNil() {
				continue
			}
		}

		registrations = append(registrations, ServiceRegistration{
			Type:  field.Type,
			Value: fieldValue.Interface(),
			Name:  field.Name,
			Key:   tags.Name,
			Group: tags.Group,
		})
	}

	return registrations, nil
}

// ConstructorInvoker calls a constructor (or, for a non-function service,
// simply returns its instance value) with its dependencies resolved.
type ConstructorInvoker struct {
	analyzer     *Analyzer
	paramBuilder *ParamObjectBuilder
}

// NewConstructorInvoker returns an invoker backed by analyzer.
func NewConstructorInvoker(analyzer *Analyzer) *ConstructorInvoker {
	return &ConstructorInvoker{analyzer: analyzer, paramBuilder: NewParamObjectBuilder(analyzer)}
}

// Invoke resolves info's arguments, calls the constructor, and surfaces a
// non-nil trailing error return as a Go error.
func (ci *ConstructorInvoker) Invoke(info *ConstructorInfo, resolver DependencyResolver) ([]reflect.Value, error) {
	if !info.IsFunc {
		return []reflect.Value{info.Value}, nil
	}

	args, err := ci.buildArguments(info, resolver)
	if err != nil {
		return nil, fmt.Errorf("failed to build arguments: %w", err)
	}

	results := info.Value.Call(args)

	if info.HasErrorReturn && len(results) > 0 {
		last := results[len(results)-1]
		if !last.IsNil() {
			if err, ok := last.Interface().(error); ok {
				return nil, fmt.Errorf("constructor error: %w", err)
			}
		}
	}

	return results, nil
}

func (ci *ConstructorInvoker) buildArguments(info *ConstructorInfo, resolver DependencyResolver) ([]reflect.Value, error) {
	if info.IsParamObject {
		paramValue, err := ci.paramBuilder.BuildParamObject(info.Type.In(0), resolver)
		if err != nil {
			return nil, err
		}
		return []reflect.Value{paramValue}, nil
	}

	args := make([]reflect.Value, len(info.Parameters))
	for i, param := range info.Parameters {
		value, err := ci.resolveParameter(param, resolver)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve parameter %d: %w", i, err)
		}
		args[i] = value
	}
	return args, nil
}

func (ci *ConstructorInvoker) resolveParameter(param ParameterInfo, resolver DependencyResolver) (reflect.Value, error) {
	return fieldResolution(resolver, param.Type, param.Group, param.Key)
}
