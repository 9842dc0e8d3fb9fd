package workflow

import (
	"fmt"
	"reflect"
)

// Kind is the expected shape of a required container value.
type Kind string

const (
	KindAny    Kind = ""
	KindString Kind = "string"
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindSlice  Kind = "slice"
	KindMap    Kind = "map"
	KindScalar Kind = "scalar"
)

// Requirement declares a container key a step depends on.
type Requirement struct {
	Key  string
	Kind Kind
	// Nullable accepts a present nil value regardless of Kind.
	Nullable bool
}

// Require declares key as required with any value.
func Require(key string) Requirement {
	return Requirement{Key: key}
}

// RequireKind declares key as required with a value of the given kind.
func RequireKind(key string, kind Kind) Requirement {
	return Requirement{Key: key, Kind: kind}
}

// RequireOptional declares key as required, holding either nil or a value of kind.
func RequireOptional(key string, kind Kind) Requirement {
	return Requirement{Key: key, Kind: kind, Nullable: true}
}

// RequirementProvider is implemented by steps that declare requirements.
type RequirementProvider interface {
	Requirements() []Requirement
}

// Check verifies the requirement against c.
func (r Requirement) Check(c Container) error {
	if !c.Has(r.Key) {
		return fmt.Errorf("Missing '%s' in container", r.Key)
	}
	value, _ := c.Get(r.Key)
	if r.Kind == KindAny || (r.Nullable && value == nil) {
		return nil
	}
	if r.Kind.matches(value) {
		return nil
	}
	expected := string(r.Kind)
	if r.Nullable {
		expected = "?" + expected
	}
	got := "nil"
	if value != nil {
		got = fmt.Sprintf("%T", value)
	}
	return fmt.Errorf("Value for '%s' has an invalid type. Expected %s, got %s", r.Key, expected, got)
}

func (k Kind) matches(v any) bool {
	if v == nil {
		return false
	}
	switch rk := reflect.TypeOf(v).Kind(); k {
	case KindString:
		return rk == reflect.String
	case KindBool:
		return rk == reflect.Bool
	case KindInt:
		return rk >= reflect.Int && rk <= reflect.Uint64
	case KindFloat:
		return rk == reflect.Float32 || rk == reflect.Float64
	case KindSlice:
		return rk == reflect.Slice || rk == reflect.Array
	case KindMap:
		return rk == reflect.Map
	case KindScalar:
		return rk == reflect.String || rk == reflect.Bool || (rk >= reflect.Int && rk <= reflect.Float64)
	default:
		return false
	}
}

// checkRequirements is the innermost link of every middleware chain.
func checkRequirements(step Step, c Container) error {
	p, ok := step.(RequirementProvider)
	if !ok {
		return nil
	}
	for _, r := range p.Requirements() {
		if err := r.Check(c); err != nil {
			return err
		}
	}
	return nil
}
