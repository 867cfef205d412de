package mathtools_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/effective-security/toolrouter/toolserver"
	"github.com/effective-security/toolrouter/toolserver/mathtools"
	"github.com/effective-security/toolrouter/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startMathServer(t *testing.T) (*json.Encoder, *bufio.Scanner) {
	t.Helper()
	s := toolserver.NewServer()
	require.NoError(t, mathtools.Register(s))

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx, inR, outW)
		_ = outW.Close()
	}()
	t.Cleanup(func() {
		cancel()
		_ = inW.Close()
		<-done
	})
	return json.NewEncoder(inW), bufio.NewScanner(outR)
}

func call(t *testing.T, enc *json.Encoder, out *bufio.Scanner, id transport.RequestID, name string, args map[string]any) *transport.Response {
	t.Helper()
	req, err := transport.NewRequest(id, transport.MethodCallTool, transport.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.NoError(t, enc.Encode(req))
	require.True(t, out.Scan())

	var resp transport.Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	return &resp
}

func TestMathTools(t *testing.T) {
	enc, out := startMathServer(t)

	t.Run("catalog", func(t *testing.T) {
		req, err := transport.NewRequest(1, transport.MethodListTools, nil)
		require.NoError(t, err)
		require.NoError(t, enc.Encode(req))
		require.True(t, out.Scan())

		var resp transport.Response
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
		require.Nil(t, resp.Error)

		var result transport.ListToolsResult
		require.NoError(t, json.Unmarshal(resp.Result, &result))
		names := make([]string, 0, len(result.Tools))
		for _, spec := range result.Tools {
			names = append(names, spec.Name)
			assert.NotEmpty(t, spec.Description)
			assert.NotNil(t, spec.InputSchema, "tool %s should advertise a schema", spec.Name)
		}
		assert.Equal(t, []string{"add", "subtract", "multiply", "divide", "power", "modulus"}, names)
	})

	tcases := []struct {
		name string
		tool string
		args map[string]any
		exp  float64
	}{
		{"add", "add", map[string]any{"a": 3, "b": 5}, 8},
		{"subtract", "subtract", map[string]any{"a": 3, "b": 5}, -2},
		{"multiply", "multiply", map[string]any{"a": 3, "b": 5}, 15},
		{"divide", "divide", map[string]any{"a": 10, "b": 4}, 2.5},
		{"power", "power", map[string]any{"a": 2, "b": 10}, 1024},
		{"modulus", "modulus", map[string]any{"a": 10, "b": 3}, 1},
		{"numeric strings coerced", "add", map[string]any{"a": "3", "b": " 5 "}, 8},
	}
	for i, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			resp := call(t, enc, out, transport.RequestID(10+i), tc.tool, tc.args)
			require.Nil(t, resp.Error)

			var got float64
			require.NoError(t, json.Unmarshal(resp.Result, &got))
			assert.InDelta(t, tc.exp, got, 1e-9)
		})
	}

	t.Run("division by zero", func(t *testing.T) {
		resp := call(t, enc, out, 100, "divide", map[string]any{"a": 1, "b": 0})
		require.NotNil(t, resp.Error)
		assert.Equal(t, transport.CodeToolError, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "division by zero")
	})

	t.Run("modulus by zero", func(t *testing.T) {
		resp := call(t, enc, out, 101, "modulus", map[string]any{"a": 1, "b": 0})
		require.NotNil(t, resp.Error)
		assert.Equal(t, transport.CodeToolError, resp.Error.Code)
	})

	t.Run("non numeric argument", func(t *testing.T) {
		resp := call(t, enc, out, 102, "add", map[string]any{"a": "abc", "b": 1})
		require.NotNil(t, resp.Error)
		assert.Equal(t, transport.CodeToolError, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "argument a")
	})
}
