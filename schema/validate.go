package schema

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ValidateArguments performs a structural check of tool-call arguments
// against the tool's input schema before any transport is contacted:
// required properties must be present and typed properties must match.
// Numeric strings are accepted for number/integer properties because
// LLMs frequently pass numbers as strings and tool backends coerce them.
// A nil or untyped schema accepts any arguments.
func ValidateArguments(args map[string]any, sc map[string]any) error {
	if sc == nil {
		return nil
	}

	if required, ok := sc["required"].([]any); ok {
		for _, r := range required {
			name, ok := r.(string)
			if !ok {
				continue
			}
			if _, present := args[name]; !present {
				return errors.Newf("missing required argument %q", name)
			}
		}
	}

	props, ok := sc["properties"].(map[string]any)
	if !ok {
		return nil
	}
	for name, value := range args {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		typ, ok := prop["type"].(string)
		if !ok {
			continue
		}
		if err := checkType(name, value, typ); err != nil {
			return err
		}
	}
	return nil
}

func checkType(name string, value any, typ string) error {
	if value == nil {
		return nil
	}
	switch typ {
	case "number", "integer":
		switch v := value.(type) {
		case float64, float32, int, int32, int64:
			return nil
		case string:
			if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return nil
			}
		}
		return errors.Newf("argument %q: expected %s, got %T", name, typ, value)
	case "string":
		if _, ok := value.(string); !ok {
			return errors.Newf("argument %q: expected string, got %T", name, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return errors.Newf("argument %q: expected boolean, got %T", name, value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return errors.Newf("argument %q: expected array, got %T", name, value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return errors.Newf("argument %q: expected object, got %T", name, value)
		}
	}
	return nil
}
