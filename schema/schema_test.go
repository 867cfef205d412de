package schema_test

import (
	"reflect"
	"testing"

	"github.com/effective-security/toolrouter/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Expense struct {
	Amount   float64  `json:"amount" jsonschema:"title=Amount,description=Expense amount"`
	Category string   `json:"category" jsonschema:"title=Category,description=Expense category,example=travel"`
	Note     string   `json:"note,omitempty" jsonschema:"title=Note,description=Optional note"`
	Tags     []string `json:"tags,omitempty" jsonschema:"title=Tags"`
}

type Report struct {
	Title    string    `json:"title"`
	Expenses []Expense `json:"expenses"`
}

func TestSchema(t *testing.T) {
	s, err := schema.New(reflect.TypeOf(Expense{}))
	require.NoError(t, err)
	require.NotNil(t, s.Parameters)

	params, err := s.ParametersMap()
	require.NoError(t, err)
	assert.Equal(t, "object", params["type"])

	props, ok := params["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, props, "amount")
	require.Contains(t, props, "category")
	require.Contains(t, props, "note")

	amount, ok := props["amount"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "number", amount["type"])
	assert.Equal(t, "Expense amount", amount["description"])

	required, ok := params["required"].([]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"amount", "category"}, required)
}

func TestSchema_Cached(t *testing.T) {
	s1, err := schema.New(reflect.TypeOf(Expense{}))
	require.NoError(t, err)
	s2, err := schema.New(reflect.TypeOf(Expense{}))
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestSchema_NestedRefsResolved(t *testing.T) {
	s, err := schema.New(reflect.TypeOf(Report{}))
	require.NoError(t, err)

	params, err := s.ParametersMap()
	require.NoError(t, err)
	props := params["properties"].(map[string]any)
	expenses, ok := props["expenses"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "array", expenses["type"])

	// item refs are inlined so the schema is self-contained on the wire
	items, ok := expenses["items"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, items, "$ref")
	itemProps, ok := items["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, itemProps, "amount")
}
