package planfactory_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/codec"
	"github.com/effective-security/toolplan/invoke"
	"github.com/effective-security/toolplan/plan"
	"github.com/effective-security/toolplan/planfactory"
	"github.com/effective-security/toolplan/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Factory(t *testing.T) {
	t.Setenv("WEATHER_MCP_URL", "http://127.0.0.1:8100/mcp")
	t.Setenv("WEATHER_API_TOKEN", "fakekey")

	cfg, err := planfactory.LoadConfig("testdata/plan.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Providers)
	assert.Equal(t, "math", cfg.DefaultProvider)
	assert.Equal(t, "http://127.0.0.1:8100/mcp", cfg.Providers[1].BaseURL)
	assert.Equal(t, "Bearer fakekey", cfg.Providers[1].Headers["Authorization"])
	assert.Equal(t, 8, cfg.Executor.MaxSteps)
	assert.Equal(t, "5s", cfg.Executor.CallTimeout)
	assert.Equal(t, 3, cfg.Executor.Retry.MaxAttempts)

	f, err := planfactory.New(cfg)
	require.NoError(t, err)

	cat, err := f.Catalog()
	require.NoError(t, err)
	assert.Equal(t, []string{"add", "divide", "geocode_city", "get_forecast"}, cat.Names())

	forecast := cat.Entry("get_forecast")
	require.NotNil(t, forecast)
	assert.Equal(t, catalog.StructuredResult, forecast.Result)
	assert.Equal(t, "weather", forecast.Provider)
	assert.EqualValues(t, 5, forecast.Defaults["days"])
	assert.Equal(t, "metric", forecast.Defaults["units"])
	assert.Equal(t, []string{"metric", "imperial"}, forecast.Parameters["units"].Enum)

	geocode := cat.Entry("geocode_city")
	require.NotNil(t, geocode)
	assert.Equal(t, "name", geocode.Primary)
	assert.Equal(t, "Berlin", geocode.Parameters["city"].Example)

	inv, err := f.Invoker()
	require.NoError(t, err)
	require.NotNil(t, inv)

	// the catalog and the invoker are shared
	cat2, err := f.Catalog()
	require.NoError(t, err)
	assert.Same(t, cat, cat2)
	inv2, err := f.Invoker()
	require.NoError(t, err)
	assert.Same(t, inv, inv2)

	dec, err := f.Decoder()
	require.NoError(t, err)
	assert.IsType(t, &codec.JSONDecoder{}, dec)

	exec, err := f.Executor()
	require.NoError(t, err)
	assert.Same(t, cat, exec.Catalog())
}

type fakeInvoker struct {
	calls []string
}

var _ invoke.Invoker = (*fakeInvoker)(nil)

func (f *fakeInvoker) Invoke(_ context.Context, tool string, _ json.RawMessage) (json.RawMessage, error) {
	f.calls = append(f.calls, tool)
	return json.RawMessage(`5`), nil
}

func Test_Factory_Executor(t *testing.T) {
	fake := &fakeInvoker{}
	planfactory.NewInvoker = func(cfg *planfactory.Config, cat *catalog.Catalog) (invoke.Invoker, error) {
		return fake, nil
	}
	defer func() {
		planfactory.NewInvoker = planfactory.CreateInvoker
	}()

	cfg := &planfactory.Config{
		Providers: []*planfactory.ProviderConfig{
			{Name: "math", BaseURL: "http://127.0.0.1:8000/mcp"},
		},
		Executor: planfactory.ExecutorConfig{
			MaxSteps: 4,
			Retry:    planfactory.RetryConfig{MaxAttempts: 2, Backoff: "1ms"},
		},
		Tools: []*catalog.Entry{
			{
				Name: "add",
				Parameters: map[string]catalog.Param{
					"a": {Kind: catalog.KindNumber, Required: true},
					"b": {Kind: catalog.KindNumber, Required: true},
				},
				Result: catalog.ScalarResult,
			},
		},
	}

	f, err := planfactory.New(cfg)
	require.NoError(t, err)

	exec, err := f.Executor()
	require.NoError(t, err)

	p, err := plan.Decode([]byte(`[{"func":"add","a":2,"b":3},{"func":"add","a":"RESULT_1","b":1}]`))
	require.NoError(t, err)

	tr, err := exec.Execute(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, trace.StatusCompleted, tr.Status())
	assert.Equal(t, []string{"add", "add"}, fake.calls)
	assert.Equal(t, "5", string(tr.Step(2).Value))
}

func Test_Factory_ConfigErrors(t *testing.T) {
	_, err := planfactory.New(&planfactory.Config{
		Providers: []*planfactory.ProviderConfig{{Name: "math"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BaseURL")

	_, err = planfactory.New(&planfactory.Config{
		Executor: planfactory.ExecutorConfig{CallTimeout: "soon"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid call_timeout")

	_, err = planfactory.New(&planfactory.Config{
		Executor: planfactory.ExecutorConfig{Retry: planfactory.RetryConfig{Backoff: "x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid retry backoff")

	_, err = planfactory.LoadConfig("testdata/missing.yaml")
	require.Error(t, err)

	// duplicate tool names surface when the catalog is built
	f, err := planfactory.New(&planfactory.Config{
		Tools: []*catalog.Entry{
			{Name: "add", Result: catalog.ScalarResult},
			{Name: "add", Result: catalog.ScalarResult},
		},
	})
	require.NoError(t, err)
	_, err = f.Catalog()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}
