package callbacks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/toolplan/executor"
	"github.com/effective-security/toolplan/plan"
	"github.com/effective-security/toolplan/trace"
)

// ensure Transcript implements executor.Callback
var _ executor.Callback = (*Transcript)(nil)

var TimeNowFn = time.Now

type RunStats struct {
	RunID string

	Duration       time.Duration
	Steps          uint32
	StepsCompleted uint32
	StepsFailed    uint32
	StepsSkipped   uint32
	StepsRetried   uint32
}

// Transcript is a callback handler that keeps a timestamped log of each
// run, keyed by the run ID carried in the context.
type Transcript struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

func NewTranscript(mode Mode) *Transcript {
	return &Transcript{
		runs: make(map[string]*run),
		mode: mode,
	}
}

// StartRun begins collecting the transcript for the run identified by
// the RunContext in ctx. Events arriving for a run that was never
// started are dropped.
func (l *Transcript) StartRun(ctx context.Context) {
	l.lock.Lock()
	defer l.lock.Unlock()

	runCtx := trace.GetRunContext(ctx)
	if runCtx == nil {
		return
	}
	l.runs[runCtx.RunID()] = &run{
		stats: RunStats{
			RunID: runCtx.RunID(),
		},
		runCtx:  runCtx,
		started: time.Now(),
	}

	l.runs[runCtx.RunID()].print("*** Run Started ***")
}

// EndRun closes the run's transcript and returns its stats and the
// collected log.
func (l *Transcript) EndRun(ctx context.Context) (*RunStats, []byte) {
	run := l.getRun(ctx)
	if run == nil {
		return nil, nil
	}

	stats := run.stats
	stats.Duration = time.Since(run.started)

	run.print(fmt.Sprintf("Steps: %d, Completed: %d, Failed: %d, Skipped: %d, Retried: %d",
		stats.Steps,
		stats.StepsCompleted,
		stats.StepsFailed,
		stats.StepsSkipped,
		stats.StepsRetried,
	))

	run.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.runs, run.runCtx.RunID())
	l.lock.Unlock()

	return &stats, run.w.Bytes()
}

func (l *Transcript) getRun(ctx context.Context) *run {
	l.lock.Lock()
	defer l.lock.Unlock()

	runCtx := trace.GetRunContext(ctx)
	if runCtx == nil {
		return nil
	}

	return l.runs[runCtx.RunID()]
}

func (l *Transcript) OnPlanStart(ctx context.Context, p *plan.Plan) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.Steps, uint32(p.Len()))
	run.print("*** Plan Start ***", fmt.Sprintf("%d steps", p.Len()))
}

func (l *Transcript) OnPlanEnd(ctx context.Context, p *plan.Plan, tr *trace.Trace) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	run.print("*** Plan End ***", string(tr.Status()))
}

func (l *Transcript) OnStepStart(ctx context.Context, step plan.Step, args json.RawMessage) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	run.print(stepLabel(step), "*** Step Start ***")
	run.print(stepLabel(step), "Input:", string(args))
}

func (l *Transcript) OnStepEnd(ctx context.Context, step plan.Step, result *trace.StepResult) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.StepsCompleted, 1)
	if l.mode == ModeVerbose {
		run.print(stepLabel(step), "Output:", string(result.Value))
	}
	run.print(stepLabel(step), "*** Step End ***")
}

func (l *Transcript) OnStepError(ctx context.Context, step plan.Step, result *trace.StepResult) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.StepsFailed, 1)
	run.print(stepLabel(step), "*** Step Error ***", result.Error)
}

func (l *Transcript) OnStepSkipped(ctx context.Context, step plan.Step) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.StepsSkipped, 1)
	run.print(stepLabel(step), "*** Step Skipped ***")
}

func (l *Transcript) OnStepRetry(ctx context.Context, step plan.Step, attempt int, err error) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.StepsRetried, 1)
	run.print(stepLabel(step), "*** Step Retry ***", fmt.Sprintf("attempt %d:", attempt), err.Error())
}

func stepLabel(step plan.Step) string {
	return fmt.Sprintf("[%d] %s", step.Index, step.Func)
}

type run struct {
	runCtx  trace.RunContext
	w       bytes.Buffer
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}

// print writes the entries to the run's output.
// The entries are written in the following format:
// timestamp runID entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := TimeNowFn()
	ts := now.Format("2006-01-02 15:04:05")

	_, _ = r.w.WriteString(ts)
	_, _ = r.w.WriteString(" ")
	_, _ = r.w.WriteString(r.runCtx.RunID())
	_, _ = r.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = r.w.WriteString(" ")
		}
		_, _ = r.w.WriteString(entry)
	}
	_, _ = r.w.WriteString("\n")
}
