// Package reflection implements constructor analysis: given a constructor
// function or a pre-built instance, it works out what the constructor needs
// (parameters, or the fields of an embedded In parameter object) and what it
// produces (return values, or the fields of an embedded Out result object).
// The root package's Descriptor and internal/compiler build on this analysis
// rather than re-deriving it from reflect.Type at every activation.
package reflection

import (
	"fmt"
	"reflect"
	"sync"
)

// In is the marker type a parameter object embeds anonymously. The root
// package's wireup.In is an alias of this type: analyzer.Analyze identifies
// a parameter object by the exact reflect.Type of an embedded field, so the
// marker must be one concrete type shared by both packages.
type In struct{}

// Out is the marker type a result object embeds anonymously, mirrored by
// the root package's wireup.Out alias for the same reason as In.
type Out struct{}

var (
	paramMarkerType  = reflect.TypeOf(In{})
	resultMarkerType = reflect.TypeOf(Out{})
	errorType        = reflect.TypeOf((*error)(nil)).Elem()
)

// isParamMarker reports whether t is the exact In marker type.
func isParamMarker(t reflect.Type) bool { return t == paramMarkerType }

// isResultMarker reports whether t is the exact Out marker type.
func isResultMarker(t reflect.Type) bool { return t == resultMarkerType }

// embedsMarker reports whether t (a struct, or pointer to one) anonymously
// embeds a field of exactly marker's type.
func embedsMarker(t reflect.Type, marker reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		if field := t.Field(i); field.Anonymous && field.Type == marker {
			return true
		}
	}
	return false
}

// isErrorType reports whether t implements error.
func isErrorType(t reflect.Type) bool { return t.Implements(errorType) }

// Analyzer performs and memoizes constructor analysis.
type Analyzer struct {
	mu    sync.RWMutex
	cache map[uintptr]*ConstructorInfo
}

// ConstructorInfo is everything derived from reflecting over one
// constructor (or instance).
type ConstructorInfo struct {
	Type  reflect.Type
	Value reflect.Value

	Parameters []ParameterInfo
	Returns    []ReturnInfo

	IsFunc         bool
	InstanceValue  any
	IsParamObject  bool
	IsResultObject bool
	HasErrorReturn bool

	dependencies []*Dependency
}

// ParameterInfo describes one constructor parameter, or one field of a
// parameter object.
type ParameterInfo struct {
	Type     reflect.Type
	Name     string
	Tag      string
	Index    int
	Optional bool
	Group    string
	Key      any
	IsSlice  bool
	ElemType reflect.Type
}

// ReturnInfo describes one constructor return value, or one field of a
// result object.
type ReturnInfo struct {
	Type    reflect.Type
	Name    string
	Tag     string
	Index   int
	Group   string
	Key     any
	IsError bool
}

// fieldTags is the parsed form of a param/result object field's struct tag.
type fieldTags struct {
	Optional bool
	Name     string
	Group    string
	Ignore   bool
}

func parseFieldTags(tag reflect.StructTag) fieldTags {
	var ft fieldTags
	if v, ok := tag.Lookup("optional"); ok {
		ft.Optional = v == "true"
	}
	if v, ok := tag.Lookup("name"); ok {
		ft.Name = v
	}
	if v, ok := tag.Lookup("group"); ok {
		ft.Group = v
	}
	if v, ok := tag.Lookup("inject"); ok && v == "-" {
		ft.Ignore = true
	}
	return ft
}

func sliceElemType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Slice {
		return t.Elem()
	}
	return nil
}

// Dependency is one resolvable input a provider or decorator needs.
type Dependency struct {
	Type      reflect.Type
	Key       any
	Group     string
	Optional  bool
	Index     int
	FieldName string
}

// ResultField is one exported, non-ignored field of a result object (Out
// struct), described for registration as its own export.
type ResultField struct {
	Name  string
	Type  reflect.Type
	Key   any
	Group string
	Index int
}

// ParamField is one exported, non-ignored field of a parameter object (In
// struct), described as its own dependency.
type ParamField struct {
	Name     string
	Type     reflect.Type
	Key      any
	Group    string
	Optional bool
	Index    int
}

// New returns an Analyzer with an empty cache.
func New() *Analyzer {
	return &Analyzer{cache: make(map[uintptr]*ConstructorInfo)}
}

// Analyze reflects over constructor once and memoizes the result; repeat
// calls with the same function pointer (or, for non-functions, the same
// type) return the cached ConstructorInfo.
func (a *Analyzer) Analyze(constructor any) (*ConstructorInfo, error) {
	if constructor == nil {
		return nil, fmt.Errorf("constructor cannot be nil")
	}

	val := reflect.ValueOf(constructor)
	if !val.IsValid() || (val.Kind() == reflect.Func && val.IsNil()) {
		return nil, fmt.Errorf("constructor cannot be nil")
	}

	typ := reflect.TypeOf(constructor)

	var key uintptr
	if typ.Kind() == reflect.Func {
		key = val.Pointer()
	} else {
		// Distinguishes unrelated types in the cache, not distinct
		// instances of the same type; instances are cheap to re-analyze.
		key = reflect.ValueOf(typ).Pointer()
	}

	a.mu.RLock()
	if cached, ok := a.cache[key]; ok {
		a.mu.RUnlock()
		return cached, nil
	}
	a.mu.RUnlock()

	info := &ConstructorInfo{Type: typ, Value: val}

	if typ.Kind() != reflect.Func {
		info.InstanceValue = constructor
		info.Parameters = []ParameterInfo{}
		info.dependencies = []*Dependency{}
		return a.store(key, info), nil
	}

	info.IsFunc = true
	if err := analyzeParameters(info); err != nil {
		return nil, fmt.Errorf("failed to analyze parameters: %w", err)
	}
	if err := analyzeReturns(info); err != nil {
		return nil, fmt.Errorf("failed to analyze returns: %w", err)
	}
	info.dependencies = buildDependencies(info)

	return a.store(key, info), nil
}

func (a *Analyzer) store(key uintptr, info *ConstructorInfo) *ConstructorInfo {
	a.mu.Lock()
	a.cache[key] = info
	a.mu.Unlock()
	return info
}

// analyzeParameters fills info.Parameters, detecting a single In-embedding
// struct parameter as a parameter object.
func analyzeParameters(info *ConstructorInfo) error {
	fnType := info.Type

	if fnType.NumIn() == 1 {
		paramType := fnType.In(0)
		if embedsMarker(paramType, paramMarkerType) {
			info.IsParamObject = true
			return analyzeParamObjectFields(info, paramType)
		}
	}

	info.Parameters = make([]ParameterInfo, fnType.NumIn())
	for i := 0; i < fnType.NumIn(); i++ {
		t := fnType.In(i)
		info.Parameters[i] = ParameterInfo{
			Type:     t,
			Index:    i,
			IsSlice:  t.Kind() == reflect.Slice,
			ElemType: sliceElemType(t),
		}
	}
	return nil
}

// analyzeParamObjectFields walks structType's exported fields, skipping the
// embedded In marker and any `inject:"-"` field, and records the rest as
// Parameters.
func analyzeParamObjectFields(info *ConstructorInfo, structType reflect.Type) error {
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return fmt.Errorf("In parameter must be a struct, got %v", structType.Kind())
	}

	params := make([]ParameterInfo, 0, structType.NumField())
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

		p := ParameterInfo{
			Type:     field.Type,
			Name:     field.Name,
			Tag:      string(field.Tag),
			Index:    i,
			Optional: tags.Optional,
			Group:    tags.Group,
			IsSlice:  field.Type.Kind() == reflect.Slice,
			ElemType: sliceElemType(field.Type),
		}
		if tags.Name != "" {
			p.Key = tags.Name
		}
		params = append(params, p)
	}

	info.Parameters = params
	return nil
}

// analyzeReturns fills info.Returns, detecting a first return type that
// embeds Out as a result object.
func analyzeReturns(info *ConstructorInfo) error {
	fnType := info.Type
	if fnType.NumOut() == 0 {
		return nil
	}

	if first := fnType.Out(0); embedsMarker(first, resultMarkerType) {
		info.IsResultObject = true
		return analyzeResultObjectFields(info, first)
	}

	info.Returns = make([]ReturnInfo, 0, fnType.NumOut())
	for i := 0; i < fnType.NumOut(); i++ {
		t := fnType.Out(i)
		isLastError := isErrorType(t) && i == fnType.NumOut()-1
		if isLastError {
			info.HasErrorReturn = true
		}
		info.Returns = append(info.Returns, ReturnInfo{Type: t, Index: i, IsError: isLastError})
	}
	return nil
}

// analyzeResultObjectFields walks structType's exported fields, skipping
// the embedded Out marker and any `inject:"-"` field, recording the rest
// as Returns; it also checks for a trailing error return alongside the
// result object.
func analyzeResultObjectFields(info *ConstructorInfo, structType reflect.Type) error {
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return fmt.Errorf("Out result must be a struct, got %v", structType.Kind())
	}

	returns := make([]ReturnInfo, 0, structType.NumField())
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
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

		r := ReturnInfo{Type: field.Type, Name: field.Name, Tag: string(field.Tag), Index: i, Group: tags.Group}
		if tags.Name != "" {
			r.Key = tags.Name
		}
		returns = append(returns, r)
	}
	info.Returns = returns

	if info.Type.NumOut() == 2 && isErrorType(info.Type.Out(1)) {
		info.HasErrorReturn = true
	}
	return nil
}

// buildDependencies derives the Dependency list a resolver consumes from
// the already-analyzed Parameters.
func buildDependencies(info *ConstructorInfo) []*Dependency {
	deps := make([]*Dependency, 0, len(info.Parameters))
	for _, p := range info.Parameters {
		dep := &Dependency{
			Type:      p.Type,
			Key:       p.Key,
			Group:     p.Group,
			Optional:  p.Optional,
			Index:     p.Index,
			FieldName: p.Name,
		}
		// A grouped slice field depends on its element type, not the slice.
		if p.IsSlice && p.Group != "" && p.ElemType != nil {
			dep.Type = p.ElemType
		}
		deps = append(deps, dep)
	}
	return deps
}

// GetDependencies returns constructor's analyzed dependencies.
func (a *Analyzer) GetDependencies(constructor any) ([]*Dependency, error) {
	info, err := a.Analyze(constructor)
	if err != nil {
		return nil, err
	}
	return info.dependencies, nil
}

// GetServiceType returns the primary type constructor produces: the
// instance's own type, the Out struct type for a result object, or the
// first non-error return type otherwise.
func (a *Analyzer) GetServiceType(constructor any) (reflect.Type, error) {
	info, err := a.Analyze(constructor)
	if err != nil {
		return nil, err
	}

	if !info.IsFunc {
		return info.Type, nil
	}
	if len(info.Returns) == 0 {
		return nil, fmt.Errorf("constructor has no return values")
	}
	if info.IsResultObject {
		return info.Type.Out(0), nil
	}
	for _, r := range info.Returns {
		if !r.IsError {
			return r.Type, nil
		}
	}
	return nil, fmt.Errorf("constructor only returns error")
}

// GetResultTypes returns every non-error type constructor produces: every
// field of a result object, every non-error return value, or the instance
// type for a non-function.
func (a *Analyzer) GetResultTypes(constructor any) ([]reflect.Type, error) {
	info, err := a.Analyze(constructor)
	if err != nil {
		return nil, err
	}

	types := make([]reflect.Type, 0, len(info.Returns))
	for _, r := range info.Returns {
		if !r.IsError {
			types = append(types, r.Type)
		}
	}
	if len(types) == 0 && !info.IsFunc {
		return []reflect.Type{info.Type}, nil
	}
	return types, nil
}

// Clear empties the analysis cache.
func (a *Analyzer) Clear() {
	a.mu.Lock()
	a.cache = make(map[uintptr]*ConstructorInfo)
	a.mu.Unlock()
}

// CacheSize reports the number of memoized analyses.
func (a *Analyzer) CacheSize() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}
