package expression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/itchyny/gojq"
)

// JQEngine runs jq queries over the context snapshot. A query with one
// output returns it directly, several outputs are collected into []any.
type JQEngine struct {
	programs *cache[*gojq.Code]
}

func NewJQEngine() *JQEngine {
	return &JQEngine{programs: newCache[*gojq.Code]()}
}

func (e *JQEngine) Name() string { return LangJQ }

func (e *JQEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	results, err := e.EvaluateAll(ctx, expression, data)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// EvaluateAll runs expression against input, which may be any JSON-like
// value, and returns every output.
func (e *JQEngine) EvaluateAll(ctx context.Context, expression string, input any) ([]any, error) {
	if expression == "" {
		return nil, errors.New("empty jq expression")
	}
	code, err := e.programs.get(expression, compileJQ)
	if err != nil {
		return nil, err
	}
	normalized, err := Normalize(input)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, normalized)
	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq evaluation failed for %q: %w", expression, err)
		}
		results = append(results, v)
	}
	return results, nil
}

func (e *JQEngine) Compile(expression string) error {
	_, err := e.programs.get(expression, compileJQ)
	return err
}

func compileJQ(expression string) (*gojq.Code, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("jq parse error in %q: %w", expression, err)
	}
	code, err := gojq.Compile(query,
		// no $ENV
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, fmt.Errorf("jq compile error in %q: %w", expression, err)
	}
	return code, nil
}

// Normalize converts v into the plain JSON shapes gojq accepts
// (map[string]any, []any, float64, string, bool, nil).
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, float64:
		return v, nil
	case int:
		return float64(t), nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			n, err := Normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize %T for jq: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize %T for jq: %w", v, err)
	}
	return out, nil
}

var _ Engine = (*JQEngine)(nil)
