package callbacks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/effective-security/toolplan/callbacks"
	"github.com/effective-security/toolplan/plan"
	"github.com/effective-security/toolplan/trace"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	cb := callbacks.NewPrinter(&buf, callbacks.ModeVerbose)

	p, err := plan.Decode([]byte(`[{"func":"add","a":2,"b":3},{"func":"multiply","a":"RESULT_1","b":10}]`))
	require.NoError(t, err)

	ctx := context.Background()
	first := p.Steps[0]
	second := p.Steps[1]

	tr := trace.New("run1")
	tr.Steps = []trace.StepResult{
		{Index: 1, Func: "add", Status: trace.StatusCompleted, Value: json.RawMessage(`5`)},
		{Index: 2, Func: "multiply", Status: trace.StatusFailed, Error: "remote fault: boom", Reason: "remote_fault"},
	}

	cb.OnPlanStart(ctx, p)
	cb.OnStepStart(ctx, first, json.RawMessage(`{"a":2,"b":3}`))
	cb.OnStepEnd(ctx, first, &tr.Steps[0])
	cb.OnStepRetry(ctx, second, 1, errors.New("connection refused"))
	cb.OnStepError(ctx, second, &tr.Steps[1])
	cb.OnStepSkipped(ctx, second)
	cb.OnPlanEnd(ctx, p, tr)

	res := buf.String()
	assert.Contains(t, res, "Plan Start: 2 steps")
	assert.Contains(t, res, "Step Start: [1] add")
	assert.Contains(t, res, `Input: {"a":2,"b":3}`)
	assert.Contains(t, res, "Step End: [1] add")
	assert.Contains(t, res, "Output: 5")
	assert.Contains(t, res, "Step Retry: [2] multiply, attempt 1: connection refused")
	assert.Contains(t, res, "Step Error: [2] multiply: remote fault: boom")
	assert.Contains(t, res, "Step Skipped: [2] multiply")
	assert.Contains(t, res, "Plan End: failed")
}

func TestPrinterDefaultMode(t *testing.T) {
	var buf bytes.Buffer
	cb := callbacks.NewPrinter(&buf, callbacks.ModeDefault)

	step := plan.Step{Index: 1, Func: "add"}
	result := &trace.StepResult{Index: 1, Func: "add", Status: trace.StatusCompleted, Value: json.RawMessage(`5`)}

	cb.OnStepStart(context.Background(), step, json.RawMessage(`{"a":2}`))
	cb.OnStepEnd(context.Background(), step, result)

	res := buf.String()
	assert.Contains(t, res, "Step Start: [1] add")
	assert.Contains(t, res, "Step End: [1] add")
	assert.NotContains(t, res, "Input:")
	assert.NotContains(t, res, "Output:")
}

func TestFanout(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	cb := callbacks.NewFanout(callbacks.NewPrinter(&buf1, callbacks.ModeDefault))
	cb.Add(callbacks.NewPrinter(&buf2, callbacks.ModeDefault))
	cb.Add(callbacks.NewNoop())

	p, err := plan.Decode([]byte(`[{"func":"add","a":2,"b":3}]`))
	require.NoError(t, err)
	step := p.Steps[0]
	result := &trace.StepResult{Index: 1, Func: "add", Status: trace.StatusCompleted, Value: json.RawMessage(`5`)}
	failed := &trace.StepResult{Index: 1, Func: "add", Status: trace.StatusFailed, Error: "boom"}

	ctx := context.Background()
	cb.OnPlanStart(ctx, p)
	cb.OnStepStart(ctx, step, nil)
	cb.OnStepEnd(ctx, step, result)
	cb.OnStepRetry(ctx, step, 1, errors.New("timeout"))
	cb.OnStepError(ctx, step, failed)
	cb.OnStepSkipped(ctx, step)
	cb.OnPlanEnd(ctx, p, trace.New("run1"))

	for _, buf := range []*bytes.Buffer{&buf1, &buf2} {
		res := buf.String()
		assert.Contains(t, res, "Plan Start: 1 steps")
		assert.Contains(t, res, "Step Start: [1] add")
		assert.Contains(t, res, "Step End: [1] add")
		assert.Contains(t, res, "Step Retry: [1] add")
		assert.Contains(t, res, "Step Error: [1] add: boom")
		assert.Contains(t, res, "Step Skipped: [1] add")
		assert.Contains(t, res, "Plan End: completed")
	}
}

func TestPackageLogger(t *testing.T) {
	var buf bytes.Buffer
	xlog.SetFormatter(xlog.NewStringFormatter(&buf))
	xlog.SetGlobalLogLevel(xlog.DEBUG)

	cb := callbacks.NewPackageLogger(xlog.NewPackageLogger("github.com/effective-security/toolplan", "callbacks_test"))

	p, err := plan.Decode([]byte(`[{"func":"add","a":2,"b":3}]`))
	require.NoError(t, err)
	step := p.Steps[0]

	tr := trace.New("run1")
	tr.Steps = []trace.StepResult{
		{Index: 1, Func: "add", Status: trace.StatusFailed, Error: "boom", Reason: "error"},
	}

	ctx := context.Background()
	cb.OnPlanStart(ctx, p)
	cb.OnStepStart(ctx, step, json.RawMessage(`{"a":2,"b":3}`))
	cb.OnStepEnd(ctx, step, &trace.StepResult{Index: 1, Func: "add", Status: trace.StatusCompleted, Value: json.RawMessage(`5`)})
	cb.OnStepRetry(ctx, step, 1, errors.New("connection refused"))
	cb.OnStepError(ctx, step, &tr.Steps[0])
	cb.OnStepSkipped(ctx, step)
	cb.OnPlanEnd(ctx, p, tr)

	res := buf.String()
	assert.Contains(t, res, "plan_start")
	assert.Contains(t, res, "step_start")
	assert.Contains(t, res, "step_end")
	assert.Contains(t, res, "step_retry")
	assert.Contains(t, res, "step_error")
	assert.Contains(t, res, "step_skipped")
	assert.Contains(t, res, "plan_end")
}
