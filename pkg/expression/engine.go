// Package expression evaluates the condition and query languages available to
// workflow definitions. Every engine caches compiled programs and is safe for
// concurrent use.
package expression

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Engine evaluates an expression against a snapshot of the workflow context.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
	// Compile checks expression without evaluating it.
	Compile(expression string) error
}

// Language names accepted by Lookup.
const (
	LangExpr = "expr"
	LangCEL  = "cel"
	LangJQ   = "jq"
)

var (
	exprEngine = NewExprEngine()
	jqEngine   = NewJQEngine()
	celEngine  = sync.OnceValues(NewCELEngine)
)

// Lookup returns the shared engine for lang. An empty lang selects expr.
func Lookup(lang string) (Engine, error) {
	switch lang {
	case "", LangExpr:
		return exprEngine, nil
	case LangJQ:
		return jqEngine, nil
	case LangCEL:
		e, err := celEngine()
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown expression language %q", lang)
	}
}

// EvaluateBool evaluates expression and reports whether the result is truthy.
func EvaluateBool(ctx context.Context, e Engine, expression string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	return Truthy(out), nil
}

// Truthy follows the usual scripting rules: nil, false, zero numbers and
// empty strings, slices and maps are false.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// cache is the double-checked program cache shared by the engines.
type cache[T any] struct {
	mu       sync.RWMutex
	programs map[string]T
}

func newCache[T any]() *cache[T] {
	return &cache[T]{programs: make(map[string]T)}
}

func (c *cache[T]) get(expression string, compile func(string) (T, error)) (T, error) {
	c.mu.RLock()
	if p, ok := c.programs[expression]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.programs[expression]; ok {
		return p, nil
	}
	p, err := compile(expression)
	if err != nil {
		return p, err
	}
	c.programs[expression] = p
	return p, nil
}

func (c *cache[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}
