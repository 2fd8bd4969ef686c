package callbacks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/toolplan/executor"
	"github.com/effective-security/toolplan/plan"
	"github.com/effective-security/toolplan/trace"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ executor.Callback = (*Noop)(nil)
	_ executor.Callback = (*Printer)(nil)
	_ executor.Callback = (*PackageLogger)(nil)
	_ executor.Callback = (*Fanout)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards each event to multiple callbacks.
type Fanout struct {
	callbacks []executor.Callback
}

func NewFanout(callbacks ...executor.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback executor.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnPlanStart(ctx context.Context, p *plan.Plan) {
	for _, callback := range l.callbacks {
		callback.OnPlanStart(ctx, p)
	}
}

func (l *Fanout) OnPlanEnd(ctx context.Context, p *plan.Plan, tr *trace.Trace) {
	for _, callback := range l.callbacks {
		callback.OnPlanEnd(ctx, p, tr)
	}
}

func (l *Fanout) OnStepStart(ctx context.Context, step plan.Step, args json.RawMessage) {
	for _, callback := range l.callbacks {
		callback.OnStepStart(ctx, step, args)
	}
}

func (l *Fanout) OnStepEnd(ctx context.Context, step plan.Step, result *trace.StepResult) {
	for _, callback := range l.callbacks {
		callback.OnStepEnd(ctx, step, result)
	}
}

func (l *Fanout) OnStepError(ctx context.Context, step plan.Step, result *trace.StepResult) {
	for _, callback := range l.callbacks {
		callback.OnStepError(ctx, step, result)
	}
}

func (l *Fanout) OnStepSkipped(ctx context.Context, step plan.Step) {
	for _, callback := range l.callbacks {
		callback.OnStepSkipped(ctx, step)
	}
}

func (l *Fanout) OnStepRetry(ctx context.Context, step plan.Step, attempt int, err error) {
	for _, callback := range l.callbacks {
		callback.OnStepRetry(ctx, step, attempt, err)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnPlanStart(ctx context.Context, p *plan.Plan)                            {}
func (l *Noop) OnPlanEnd(ctx context.Context, p *plan.Plan, tr *trace.Trace)             {}
func (l *Noop) OnStepStart(ctx context.Context, step plan.Step, args json.RawMessage)    {}
func (l *Noop) OnStepEnd(ctx context.Context, step plan.Step, result *trace.StepResult)  {}
func (l *Noop) OnStepError(ctx context.Context, step plan.Step, result *trace.StepResult) {
}
func (l *Noop) OnStepSkipped(ctx context.Context, step plan.Step)                       {}
func (l *Noop) OnStepRetry(ctx context.Context, step plan.Step, attempt int, err error) {}

// Printer is a callback handler that prints the events to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnPlanStart(ctx context.Context, p *plan.Plan) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Plan Start: %d steps\n", p.Len())
}

func (l *Printer) OnPlanEnd(ctx context.Context, p *plan.Plan, tr *trace.Trace) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Plan End: %s\n", tr.Status())
}

func (l *Printer) OnStepStart(ctx context.Context, step plan.Step, args json.RawMessage) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Step Start: [%d] %s\n", step.Index, step.Func)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Input: %s\n", string(args))
	}
}

func (l *Printer) OnStepEnd(ctx context.Context, step plan.Step, result *trace.StepResult) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Step End: [%d] %s\n", step.Index, step.Func)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", string(result.Value))
	}
}

func (l *Printer) OnStepError(ctx context.Context, step plan.Step, result *trace.StepResult) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Step Error: [%d] %s: %s\n", step.Index, step.Func, result.Error)
}

func (l *Printer) OnStepSkipped(ctx context.Context, step plan.Step) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Step Skipped: [%d] %s\n", step.Index, step.Func)
}

func (l *Printer) OnStepRetry(ctx context.Context, step plan.Step, attempt int, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Step Retry: [%d] %s, attempt %d: %s\n", step.Index, step.Func, attempt, err.Error())
}

// PackageLogger is a callback handler that prints the events to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnPlanStart(ctx context.Context, p *plan.Plan) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "plan_start",
		"steps", p.Len(),
	)
}

func (l *PackageLogger) OnPlanEnd(ctx context.Context, p *plan.Plan, tr *trace.Trace) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "plan_end",
		"run", tr.RunID,
		"status", tr.Status(),
	)
}

func (l *PackageLogger) OnStepStart(ctx context.Context, step plan.Step, args json.RawMessage) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "step_start",
		"step", step.Index,
		"tool", step.Func,
		"input", string(args),
	)
}

func (l *PackageLogger) OnStepEnd(ctx context.Context, step plan.Step, result *trace.StepResult) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "step_end",
		"step", step.Index,
		"tool", step.Func,
		"output", string(result.Value),
	)
}

func (l *PackageLogger) OnStepError(ctx context.Context, step plan.Step, result *trace.StepResult) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "step_error",
		"step", step.Index,
		"tool", step.Func,
		"reason", result.Reason,
		"err", result.Error,
	)
}

func (l *PackageLogger) OnStepSkipped(ctx context.Context, step plan.Step) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "step_skipped",
		"step", step.Index,
		"tool", step.Func,
	)
}

func (l *PackageLogger) OnStepRetry(ctx context.Context, step plan.Step, attempt int, err error) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "step_retry",
		"step", step.Index,
		"tool", step.Func,
		"attempt", attempt,
		"err", err.Error(),
	)
}
