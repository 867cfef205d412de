// Package schema reflects Go types into JSON Schemas for tool
// parameters, and validates tool-call arguments against a schema at the
// dispatch boundary.
package schema

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	cache   = make(map[reflect.Type]*Schema)
	cacheMu sync.RWMutex
)

// Schema wraps the reflected JSON schema of a tool's input type.
type Schema struct {
	*jsonschema.Schema
	// Parameters is the flattened parameters definition, suitable for a
	// tool descriptor or an LLM function definition.
	Parameters *jsonschema.Schema
}

// New creates a new schema from the given type.
func New(t reflect.Type) (*Schema, error) {
	cacheMu.RLock()
	if s, ok := cache[t]; ok {
		cacheMu.RUnlock()
		return s, nil
	}
	cacheMu.RUnlock()

	s, err := buildSchema(t)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	cache[t] = s
	cacheMu.Unlock()
	return s, nil
}

func (s *Schema) String() string {
	bs, _ := json.MarshalIndent(s.Parameters, "", "  ")
	return string(bs)
}

// ParametersMap returns the parameters definition as a generic map, the
// form used on the wire and in catalog descriptors.
func (s *Schema) ParametersMap() (map[string]any, error) {
	bs, err := json.Marshal(s.Parameters)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to marshal parameters")
	}
	var out map[string]any
	if err := json.Unmarshal(bs, &out); err != nil {
		return nil, errors.WithMessage(err, "failed to unmarshal parameters")
	}
	return out, nil
}

func buildSchema(t reflect.Type) (*Schema, error) {
	sc := JSONSchema(t)
	params, err := toParametersSchema(sc)
	if err != nil {
		return nil, err
	}
	return &Schema{
		Schema:     sc,
		Parameters: params,
	}, nil
}

// toParametersSchema flattens the reflected schema: the root definition
// is lifted to the top level and $ref links are resolved inline.
func toParametersSchema(tSchema *jsonschema.Schema) (*jsonschema.Schema, error) {
	rootID := strings.TrimPrefix(tSchema.Ref, "#/$defs/")

	defs := make(map[string]*jsonschema.Schema)
	var root *jsonschema.Schema
	for name, def := range tSchema.Definitions {
		if name == rootID {
			root = def
		} else {
			defs[name] = def
		}
	}
	if root == nil {
		return nil, errors.Newf("root definition %q not found", rootID)
	}

	res := &jsonschema.Schema{
		Type:       root.Type,
		Properties: root.Properties,
		Required:   root.Required,
	}
	if err := resolveRefs(res.Properties, defs); err != nil {
		return nil, err
	}
	return res, nil
}

func resolveRefs(props *orderedmap.OrderedMap[string, *jsonschema.Schema], defs map[string]*jsonschema.Schema) error {
	if props == nil {
		return nil
	}
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		child := pair.Value
		if child.Ref != "" {
			name := strings.TrimPrefix(child.Ref, "#/$defs/")
			def, ok := defs[name]
			if !ok {
				return errors.Newf("definition %q not found", name)
			}
			pair.Value = def
			child = def
		}
		if child.Properties != nil {
			if err := resolveRefs(child.Properties, defs); err != nil {
				return err
			}
		}
		if child.Items != nil && child.Items.Ref != "" {
			name := strings.TrimPrefix(child.Items.Ref, "#/$defs/")
			def, ok := defs[name]
			if !ok {
				return errors.Newf("definition %q not found", name)
			}
			child.Items = def
		}
	}
	return nil
}

// JSONSchema returns the reflected JSON schema of the given type.
func JSONSchema(t reflect.Type) *jsonschema.Schema {
	r := new(jsonschema.Reflector)

	// Struct names can collide across packages; disambiguate the $defs
	// names with a hash of the full package path.
	r.Namer = func(t reflect.Type) string {
		name := t.Name()
		if t.Kind() == reflect.Struct {
			fullname := t.PkgPath() + "/" + t.Name()
			name = t.Name() + "@" + strconv.FormatUint(xxhash.Sum64String(fullname), 10)
		}
		return name
	}

	return r.ReflectFromType(t)
}
