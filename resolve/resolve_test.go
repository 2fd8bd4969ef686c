package resolve_test

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/plan"
	"github.com/effective-security/toolplan/resolve"
	"github.com/effective-security/toolplan/trace"
	"github.com/effective-security/x/values"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const geocodeValue = `{"name":"London","country":"United Kingdom","latitude":51.5,"longitude":-0.12}`

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	num := map[string]catalog.Param{
		"a": {Kind: catalog.KindNumber, Required: true},
		"b": {Kind: catalog.KindNumber, Required: true},
	}
	cat, err := catalog.New(
		&catalog.Entry{Name: "add", Result: catalog.ScalarResult, Parameters: num},
		&catalog.Entry{Name: "divide", Result: catalog.ScalarResult, Parameters: num},
		&catalog.Entry{
			Name:   "geocode_city",
			Result: catalog.StructuredResult,
			Parameters: map[string]catalog.Param{
				"city": {Kind: catalog.KindString, Required: true},
				"lang": {Kind: catalog.KindString},
			},
			Primary:  "name",
			Defaults: values.MapAny{"lang": "en"},
		},
		&catalog.Entry{
			Name:   "get_forecast",
			Result: catalog.StructuredResult,
			Parameters: map[string]catalog.Param{
				"location": {Kind: catalog.KindObject, Required: true},
				"days":     {Kind: catalog.KindNumber},
				"units":    {Kind: catalog.KindEnum, Enum: []string{"metric", "imperial"}},
				"lang":     {Kind: catalog.KindString},
			},
			Defaults: values.MapAny{"units": "metric", "lang": "en", "days": 5},
		},
	)
	require.NoError(t, err)
	return cat
}

func completed(index int, fn string, value string) trace.StepResult {
	return trace.StepResult{
		Index:  index,
		Func:   fn,
		Status: trace.StatusCompleted,
		Value:  json.RawMessage(value),
	}
}

func TestArguments_Literals(t *testing.T) {
	cat := testCatalog(t)

	t.Run("defaults under caller args", func(t *testing.T) {
		step := plan.Step{
			Index: 1,
			Func:  "get_forecast",
			Args: map[string]plan.Value{
				"location": plan.NewLiteral([]byte(`{"city":"London"}`)),
				"days":     plan.LiteralOf("3"),
			},
		}
		out, err := resolve.Arguments(step, nil, cat)
		require.NoError(t, err)
		assert.Equal(t, `{"lang":"en","units":"metric","days":3,"location":{"city":"London"}}`, string(out))
	})

	t.Run("literals pass through unchanged", func(t *testing.T) {
		step := plan.Step{
			Index: 1,
			Func:  "add",
			Args: map[string]plan.Value{
				"a": plan.LiteralOf(12),
				"b": plan.LiteralOf(8),
			},
		}
		out, err := resolve.Arguments(step, nil, cat)
		require.NoError(t, err)
		assert.Equal(t, `{"a":12,"b":8}`, string(out))
	})

	t.Run("unknown tool", func(t *testing.T) {
		step := plan.Step{Index: 1, Func: "modulo"}
		_, err := resolve.Arguments(step, nil, cat)
		assert.EqualError(t, err, "unknown tool: modulo")
	})
}

func TestArguments_Coercion(t *testing.T) {
	cat := testCatalog(t)

	tcases := []struct {
		name string
		a    any
		exp  string
	}{
		{"integer text", "12", `{"a":12,"b":8}`},
		{"float text", "3.5", `{"a":3.5,"b":8}`},
		{"signed text", "+5", `{"a":5,"b":8}`},
		{"leading zeros", "012", `{"a":12,"b":8}`},
		{"float with leading zeros", "00.5", `{"a":0.5,"b":8}`},
		{"exponent stays string", "1e3", `{"a":"1e3","b":8}`},
		{"non-numeric stays string", "twelve", `{"a":"twelve","b":8}`},
		{"empty stays string", "", `{"a":"","b":8}`},
		{"number untouched", 12.5, `{"a":12.5,"b":8}`},
		{"bool untouched", true, `{"a":true,"b":8}`},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			step := plan.Step{
				Index: 1,
				Func:  "add",
				Args: map[string]plan.Value{
					"a": plan.LiteralOf(tc.a),
					"b": plan.LiteralOf(8),
				},
			}
			out, err := resolve.Arguments(step, nil, cat)
			require.NoError(t, err)
			assert.Equal(t, tc.exp, string(out))
		})
	}
}

func TestArguments_References(t *testing.T) {
	cat := testCatalog(t)

	t.Run("scalar substitution is exact", func(t *testing.T) {
		step := plan.Step{
			Index: 2,
			Func:  "divide",
			Args: map[string]plan.Value{
				"a": plan.NewRef(1),
				"b": plan.LiteralOf(5),
			},
		}
		prior := []trace.StepResult{completed(1, "add", `20`)}
		out, err := resolve.Arguments(step, prior, cat)
		require.NoError(t, err)
		assert.Equal(t, `{"a":20,"b":5}`, string(out))
	})

	t.Run("scalar string result coerced for number parameter", func(t *testing.T) {
		step := plan.Step{
			Index: 2,
			Func:  "divide",
			Args: map[string]plan.Value{
				"a": plan.NewRef(1),
				"b": plan.LiteralOf(5),
			},
		}
		prior := []trace.StepResult{completed(1, "add", `"3.5"`)}
		out, err := resolve.Arguments(step, prior, cat)
		require.NoError(t, err)
		assert.Equal(t, `{"a":3.5,"b":5}`, string(out))
	})

	t.Run("whole object injection", func(t *testing.T) {
		step := plan.Step{
			Index: 2,
			Func:  "get_forecast",
			Args: map[string]plan.Value{
				"location": plan.NewRef(1),
			},
		}
		prior := []trace.StepResult{completed(1, "geocode_city", geocodeValue)}
		out, err := resolve.Arguments(step, prior, cat)
		require.NoError(t, err)
		assert.Equal(t, `{"days":5,"lang":"en","units":"metric","location":`+geocodeValue+`}`, string(out))
	})

	t.Run("primary field fills a scalar parameter", func(t *testing.T) {
		step := plan.Step{
			Index: 2,
			Func:  "geocode_city",
			Args: map[string]plan.Value{
				"city": plan.NewRef(1),
			},
		}
		prior := []trace.StepResult{completed(1, "geocode_city", geocodeValue)}
		out, err := resolve.Arguments(step, prior, cat)
		require.NoError(t, err)
		assert.Equal(t, `{"lang":"en","city":"London"}`, string(out))
	})

	t.Run("structured result without primary cannot fill a scalar", func(t *testing.T) {
		step := plan.Step{
			Index: 2,
			Func:  "divide",
			Args: map[string]plan.Value{
				"a": plan.NewRef(1),
				"b": plan.LiteralOf(5),
			},
		}
		prior := []trace.StepResult{completed(1, "get_forecast", `{"daily":[1,2,3]}`)}
		_, err := resolve.Arguments(step, prior, cat)
		require.Error(t, err)
		assert.True(t, errors.Is(err, resolve.ErrTypeMismatch))
		assert.EqualError(t, err, "step 2: argument a: structured result of step 1 cannot fill a scalar parameter: type mismatch")
	})

	t.Run("reference to failed step", func(t *testing.T) {
		step := plan.Step{
			Index: 2,
			Func:  "divide",
			Args: map[string]plan.Value{
				"a": plan.NewRef(1),
				"b": plan.LiteralOf(5),
			},
		}
		prior := []trace.StepResult{
			{Index: 1, Func: "add", Status: trace.StatusFailed, Error: "boom"},
		}
		_, err := resolve.Arguments(step, prior, cat)
		require.Error(t, err)
		assert.True(t, errors.Is(err, resolve.ErrUnresolvedDependency))
		assert.EqualError(t, err, "step 2: argument a: step 1 did not complete: unresolved dependency")
	})

	t.Run("reference without recorded result", func(t *testing.T) {
		step := plan.Step{
			Index: 2,
			Func:  "divide",
			Args: map[string]plan.Value{
				"a": plan.NewRef(1),
				"b": plan.LiteralOf(5),
			},
		}
		_, err := resolve.Arguments(step, nil, cat)
		require.Error(t, err)
		assert.True(t, errors.Is(err, resolve.ErrUnresolvedDependency))
		assert.EqualError(t, err, "step 2: argument a: RESULT_1 has no recorded result: unresolved dependency")
	})

	t.Run("undeclared parameter passes raw", func(t *testing.T) {
		step := plan.Step{
			Index: 2,
			Func:  "add",
			Args: map[string]plan.Value{
				"a":     plan.LiteralOf(1),
				"b":     plan.LiteralOf(2),
				"extra": plan.NewRef(1),
			},
		}
		prior := []trace.StepResult{completed(1, "get_forecast", `{"daily":[1,2,3]}`)}
		out, err := resolve.Arguments(step, prior, cat)
		require.NoError(t, err)
		assert.Equal(t, `{"a":1,"b":2,"extra":{"daily":[1,2,3]}}`, string(out))
	})
}

func TestArguments_Deterministic(t *testing.T) {
	cat := testCatalog(t)

	step := plan.Step{
		Index: 2,
		Func:  "get_forecast",
		Args: map[string]plan.Value{
			"location": plan.NewRef(1),
			"days":     plan.LiteralOf("3"),
		},
	}
	prior := []trace.StepResult{completed(1, "geocode_city", geocodeValue)}

	first, err := resolve.Arguments(step, prior, cat)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := resolve.Arguments(step, prior, cat)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}
