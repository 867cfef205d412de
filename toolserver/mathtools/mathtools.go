// Package mathtools provides the arithmetic tool set served by the
// math backend.
package mathtools

import (
	"context"
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolrouter/schema"
	"github.com/effective-security/toolrouter/toolserver"
)

// Operands are the two inputs of every arithmetic tool.
type Operands struct {
	A float64 `json:"a" jsonschema:"description=First operand"`
	B float64 `json:"b" jsonschema:"description=Second operand"`
}

// Register adds the arithmetic tools to the server.
func Register(s *toolserver.Server) error {
	sc, err := schema.New(reflect.TypeOf(Operands{}))
	if err != nil {
		return err
	}
	params, err := sc.ParametersMap()
	if err != nil {
		return err
	}

	ops := []struct {
		name string
		desc string
		fn   func(a, b float64) (float64, error)
	}{
		{"add", "Add two numbers", func(a, b float64) (float64, error) {
			return a + b, nil
		}},
		{"subtract", "Subtract the second number from the first", func(a, b float64) (float64, error) {
			return a - b, nil
		}},
		{"multiply", "Multiply two numbers", func(a, b float64) (float64, error) {
			return a * b, nil
		}},
		{"divide", "Divide the first number by the second", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, errors.New("division by zero is not allowed")
			}
			return a / b, nil
		}},
		{"power", "Raise the first number to the power of the second", func(a, b float64) (float64, error) {
			return math.Pow(a, b), nil
		}},
		{"modulus", "Remainder of dividing the first number by the second", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, errors.New("modulus by zero is not allowed")
			}
			return math.Mod(a, b), nil
		}},
	}

	for _, op := range ops {
		fn := op.fn
		err := s.Register(&toolserver.Tool{
			Name:        op.name,
			Description: op.desc,
			InputSchema: params,
			Handler: func(_ context.Context, args map[string]any) (any, error) {
				a, err := asNumber(args["a"])
				if err != nil {
					return nil, errors.WithMessage(err, "argument a")
				}
				b, err := asNumber(args["b"])
				if err != nil {
					return nil, errors.WithMessage(err, "argument b")
				}
				return fn(a, b)
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// asNumber coerces a JSON value to float64. Numeric strings are
// accepted because LLMs frequently pass numbers as strings.
func asNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, errors.Newf("value %q is not a number", n)
		}
		return f, nil
	case nil:
		return 0, errors.New("value is required")
	default:
		return 0, errors.Newf("value of type %T is not a number", v)
	}
}
