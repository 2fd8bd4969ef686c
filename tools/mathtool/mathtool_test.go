package mathtool_test

import (
	"context"
	"testing"

	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/mcp"
	"github.com/effective-security/toolplan/mcp/transport/localtransport"
	"github.com/effective-security/toolplan/tools"
	"github.com/effective-security/toolplan/tools/mathtool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRegistrator struct {
	names []string
	err   error
}

func (m *mockRegistrator) RegisterTool(name, description string, handler any) error {
	if m.err != nil {
		return m.err
	}
	m.names = append(m.names, name)
	return nil
}

func Test_Provider_Entries(t *testing.T) {
	p := mathtool.New()
	assert.Equal(t, "math", p.Name())

	entries, err := p.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 4)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
		require.NoError(t, e.Validate())
		assert.Equal(t, "math", e.Provider)
		assert.True(t, e.Scalar())
		assert.Equal(t, []string{"a", "b"}, e.ParamNames())

		a, ok := e.Param("a")
		require.True(t, ok)
		assert.Equal(t, catalog.KindNumber, a.Kind)
		assert.True(t, a.Required)
		assert.EqualValues(t, 12, a.Example)

		b, ok := e.Param("b")
		require.True(t, ok)
		assert.Equal(t, catalog.KindNumber, b.Kind)
		assert.True(t, b.Required)
		assert.EqualValues(t, 8, b.Example)
	}
	assert.Equal(t, []string{"add", "subtract", "multiply", "divide"}, names)

	cat, err := catalog.New(entries...)
	require.NoError(t, err)
	assert.Equal(t, "Divide a by b", cat.Entry("divide").Description)
}

func Test_Provider_Handlers(t *testing.T) {
	ctx := context.Background()
	p := mathtool.New()

	tcases := []struct {
		name    string
		handler func(context.Context, mathtool.Args) (*mcp.ToolResponse, error)
		args    mathtool.Args
		exp     string
	}{
		{"add", p.Add, mathtool.Args{A: 2, B: 3}, "5"},
		{"subtract", p.Subtract, mathtool.Args{A: 5, B: 2}, "3"},
		{"multiply", p.Multiply, mathtool.Args{A: 2.5, B: 4}, "10"},
		{"divide", p.Divide, mathtool.Args{A: 10, B: 4}, "2.5"},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := tc.handler(ctx, tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.exp, resp.Text())
		})
	}
}

func Test_Provider_DivideByZero(t *testing.T) {
	p := mathtool.New()
	_, err := p.Divide(context.Background(), mathtool.Args{A: 1, B: 0})
	require.Error(t, err)
	assert.Equal(t, "Division by zero is not allowed.", err.Error())
}

func Test_Provider_RegisterMCP(t *testing.T) {
	p := mathtool.New()

	reg := &mockRegistrator{}
	require.NoError(t, p.RegisterMCP(reg))
	assert.Equal(t, []string{"add", "subtract", "multiply", "divide"}, reg.names)

	reg = &mockRegistrator{err: assert.AnError}
	err := p.RegisterMCP(reg)
	assert.ErrorIs(t, err, assert.AnError)
}

func Test_Register(t *testing.T) {
	srv := mcp.NewServer(localtransport.New())
	entries, err := tools.Register(srv, mathtool.New())
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	assert.Len(t, srv.Tools(), 4)
}
