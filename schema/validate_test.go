package schema_test

import (
	"testing"

	"github.com/effective-security/toolrouter/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateArguments(t *testing.T) {
	sc := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a":    map[string]any{"type": "number"},
			"b":    map[string]any{"type": "integer"},
			"name": map[string]any{"type": "string"},
			"flag": map[string]any{"type": "boolean"},
			"list": map[string]any{"type": "array"},
			"meta": map[string]any{"type": "object"},
		},
		"required": []any{"a", "b"},
	}

	tcases := []struct {
		name   string
		args   map[string]any
		errmsg string
	}{
		{
			name: "valid",
			args: map[string]any{"a": 1.5, "b": 2, "name": "x", "flag": true},
		},
		{
			name: "numeric strings coerced",
			args: map[string]any{"a": "1.5", "b": " 2 "},
		},
		{
			name:   "missing required",
			args:   map[string]any{"a": 1.5},
			errmsg: `missing required argument "b"`,
		},
		{
			name:   "number wrong type",
			args:   map[string]any{"a": true, "b": 2},
			errmsg: `argument "a": expected number`,
		},
		{
			name:   "non numeric string",
			args:   map[string]any{"a": "abc", "b": 2},
			errmsg: `argument "a": expected number`,
		},
		{
			name:   "string wrong type",
			args:   map[string]any{"a": 1, "b": 2, "name": 7},
			errmsg: `argument "name": expected string`,
		},
		{
			name:   "boolean wrong type",
			args:   map[string]any{"a": 1, "b": 2, "flag": "yes"},
			errmsg: `argument "flag": expected boolean`,
		},
		{
			name:   "array wrong type",
			args:   map[string]any{"a": 1, "b": 2, "list": "nope"},
			errmsg: `argument "list": expected array`,
		},
		{
			name:   "object wrong type",
			args:   map[string]any{"a": 1, "b": 2, "meta": []any{}},
			errmsg: `argument "meta": expected object`,
		},
		{
			name: "unknown property passes through",
			args: map[string]any{"a": 1, "b": 2, "extra": "anything"},
		},
		{
			name: "null value passes",
			args: map[string]any{"a": 1, "b": 2, "name": nil},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			err := schema.ValidateArguments(tc.args, sc)
			if tc.errmsg == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errmsg)
			}
		})
	}

	t.Run("nil schema accepts anything", func(t *testing.T) {
		assert.NoError(t, schema.ValidateArguments(map[string]any{"x": 1}, nil))
	})

	t.Run("untyped schema accepts anything", func(t *testing.T) {
		assert.NoError(t, schema.ValidateArguments(map[string]any{"x": 1}, map[string]any{"type": "object"}))
	})
}
