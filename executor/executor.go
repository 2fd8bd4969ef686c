// Package executor runs validated plans step by step: resolve arguments,
// invoke the tool, record the outcome, abort on the first failure.
package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolplan/catalog"
	"github.com/effective-security/toolplan/invoke"
	"github.com/effective-security/toolplan/pkg/metricskey"
	"github.com/effective-security/toolplan/plan"
	"github.com/effective-security/toolplan/resolve"
	"github.com/effective-security/toolplan/trace"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolplan", "executor")

// Callback observes the lifecycle of a plan run. Implementations live in
// the callbacks package. All methods are invoked synchronously from the
// goroutine driving the run, in step order.
type Callback interface {
	OnPlanStart(ctx context.Context, p *plan.Plan)
	OnPlanEnd(ctx context.Context, p *plan.Plan, tr *trace.Trace)
	// OnStepStart reports a step whose arguments resolved; args is the
	// final object sent to the tool.
	OnStepStart(ctx context.Context, step plan.Step, args json.RawMessage)
	OnStepEnd(ctx context.Context, step plan.Step, result *trace.StepResult)
	OnStepError(ctx context.Context, step plan.Step, result *trace.StepResult)
	OnStepSkipped(ctx context.Context, step plan.Step)
	OnStepRetry(ctx context.Context, step plan.Step, attempt int, err error)
}

// Failure reasons recorded in StepResult.Reason and used as metric tags.
const (
	ReasonUnresolvedDependency = "unresolved_dependency"
	ReasonTypeMismatch         = "type_mismatch"
	ReasonError                = "error"
)

// Executor drives plans to completion against a catalog and an invoker.
// It keeps no per-run state and is safe for concurrent use; each call to
// Execute owns its trace exclusively until it returns.
type Executor struct {
	cat *catalog.Catalog
	inv invoke.Invoker
	cfg *Config
}

// New creates an Executor.
func New(cat *catalog.Catalog, inv invoke.Invoker, opts ...Option) *Executor {
	return &Executor{
		cat: cat,
		inv: inv,
		cfg: NewConfig(opts...),
	}
}

// Catalog returns the catalog the executor validates against.
func (e *Executor) Catalog() *catalog.Catalog {
	return e.cat
}

// Execute validates the plan and runs it step by step. A validation
// failure returns a nil trace and an error wrapping plan.ErrInvalidPlan,
// with no tool invoked. Otherwise the returned trace is complete: every
// step carries a terminal status, and per-step failures never surface as
// an Execute error.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan, opts ...Option) (*trace.Trace, error) {
	cfg := e.cfg.Apply(opts...)

	if err := p.Validate(e.cat, cfg.MaxSteps); err != nil {
		metricskey.StatsPlanValidationErrors.IncrCounter(1, "invalid_plan")
		return nil, err
	}

	runCtx := trace.GetRunContext(ctx)
	if runCtx == nil {
		runCtx = trace.NewRunContext("", nil)
		ctx = trace.WithRunContext(ctx, runCtx)
	}

	tr := trace.New(runCtx.RunID())
	tr.StartedAt = time.Now()
	tr.Steps = make([]trace.StepResult, len(p.Steps))
	for i := range p.Steps {
		tr.Steps[i] = trace.StepResult{
			Index:  p.Steps[i].Index,
			Func:   p.Steps[i].Func,
			Status: trace.StatusPending,
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"run", tr.RunID,
		"steps", len(p.Steps),
	)
	if cfg.Callback != nil {
		cfg.Callback.OnPlanStart(ctx, p)
	}

	skipFrom := -1
	for i := range p.Steps {
		if ctx.Err() != nil {
			skipFrom = i
			break
		}

		e.runStep(ctx, cfg, p.Steps[i], tr.Steps[:i], &tr.Steps[i])
		if !tr.Steps[i].Completed() {
			skipFrom = i + 1
			break
		}
	}
	if skipFrom >= 0 {
		for i := skipFrom; i < len(p.Steps); i++ {
			tr.Steps[i].Status = trace.StatusSkipped
			metricskey.StatsStepsSkipped.IncrCounter(1, p.Steps[i].Func)
			if cfg.Callback != nil {
				cfg.Callback.OnStepSkipped(ctx, p.Steps[i])
			}
		}
	}

	tr.FinishedAt = time.Now()
	status := string(tr.Status())
	metricskey.StatsPlansExecuted.IncrCounter(1, status)
	metricskey.PerfPlanExecute.MeasureSince(tr.StartedAt, status)
	logger.ContextKV(ctx, xlog.DEBUG,
		"run", tr.RunID,
		"status", status,
		"duration", tr.Duration().String(),
	)
	if cfg.Callback != nil {
		cfg.Callback.OnPlanEnd(ctx, p, tr)
	}

	return tr, nil
}

// runStep resolves and invokes one step, leaving res in a terminal state.
// A step whose invocation was abandoned by caller cancellation is Skipped,
// not Failed: a cancelled call's partial result is never trusted.
func (e *Executor) runStep(ctx context.Context, cfg *Config, step plan.Step, prior []trace.StepResult, res *trace.StepResult) {
	res.Status = trace.StatusRunning
	res.StartedAt = time.Now()
	defer func() {
		res.FinishedAt = time.Now()
		metricskey.PerfStepExecute.MeasureSince(res.StartedAt, step.Func)
	}()

	args, err := resolve.Arguments(step, prior, e.cat)
	if err != nil {
		e.failStep(ctx, cfg, step, res, err)
		return
	}

	if cfg.Callback != nil {
		cfg.Callback.OnStepStart(ctx, step, args)
	}

	value, err := e.invokeStep(ctx, cfg, step, args)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			res.Status = trace.StatusSkipped
			if cfg.Callback != nil {
				cfg.Callback.OnStepSkipped(ctx, step)
			}
			return
		}
		e.failStep(ctx, cfg, step, res, err)
		return
	}

	res.Status = trace.StatusCompleted
	res.Value = value
	metricskey.StatsStepsCompleted.IncrCounter(1, step.Func)
	if cfg.Callback != nil {
		cfg.Callback.OnStepEnd(ctx, step, res)
	}
}

// invokeStep performs the tool call, re-attempting transient failures
// when the retry policy allows.
func (e *Executor) invokeStep(ctx context.Context, cfg *Config, step plan.Step, args json.RawMessage) (json.RawMessage, error) {
	attempts := cfg.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		value, err := e.inv.Invoke(ctx, step.Func, args)
		if err == nil {
			return value, nil
		}
		if attempt >= attempts || !invoke.KindOf(err).Retryable() {
			return nil, err
		}

		metricskey.StatsStepsRetried.IncrCounter(1, step.Func)
		logger.ContextKV(ctx, xlog.DEBUG,
			"step", step.Index,
			"tool", step.Func,
			"attempt", attempt,
			"err", err.Error(),
		)
		if cfg.Callback != nil {
			cfg.Callback.OnStepRetry(ctx, step, attempt, err)
		}
		if cfg.Retry.Backoff > 0 {
			select {
			case <-time.After(cfg.Retry.Backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
}

func (e *Executor) failStep(ctx context.Context, cfg *Config, step plan.Step, res *trace.StepResult, err error) {
	res.Status = trace.StatusFailed
	res.Error = err.Error()
	res.Reason = reasonOf(err)
	metricskey.StatsStepsFailed.IncrCounter(1, step.Func, res.Reason)
	logger.ContextKV(ctx, xlog.DEBUG,
		"step", step.Index,
		"tool", step.Func,
		"reason", res.Reason,
		"err", err.Error(),
	)
	if cfg.Callback != nil {
		cfg.Callback.OnStepError(ctx, step, res)
	}
}

// reasonOf names the failure class recorded in the trace and tagged on
// metrics.
func reasonOf(err error) string {
	if kind := invoke.KindOf(err); kind != invoke.KindNone {
		return string(kind)
	}
	switch {
	case errors.Is(err, resolve.ErrUnresolvedDependency):
		return ReasonUnresolvedDependency
	case errors.Is(err, resolve.ErrTypeMismatch):
		return ReasonTypeMismatch
	}
	return ReasonError
}
