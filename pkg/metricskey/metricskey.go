package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsPlansExecuted is base for counter metric for total plans executed
	StatsPlansExecuted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_plans_executed",
		Help:         "stats_plans_executed provides total plans executed by terminal status",
		RequiredTags: []string{"status"},
	}

	StatsPlanValidationErrors = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_plan_validation_errors",
		Help:         "stats_plan_validation_errors provides total plans rejected before execution",
		RequiredTags: []string{"reason"},
	}

	StatsStepsCompleted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_steps_completed",
		Help:         "stats_steps_completed provides total steps completed",
		RequiredTags: []string{"tool"},
	}

	StatsStepsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_steps_failed",
		Help:         "stats_steps_failed provides total steps failed by failure reason",
		RequiredTags: []string{"tool", "reason"},
	}

	StatsStepsSkipped = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_steps_skipped",
		Help:         "stats_steps_skipped provides total steps skipped after an abort",
		RequiredTags: []string{"tool"},
	}

	StatsStepsRetried = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_steps_retried",
		Help:         "stats_steps_retried provides total step invocation retries",
		RequiredTags: []string{"tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total tool calls not found",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfPlanExecute = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_plan_execute",
		Help:         "perf_plan_execute provides duration of a whole plan run",
		RequiredTags: []string{"status"},
	}

	PerfStepExecute = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_step_execute",
		Help:         "perf_step_execute provides duration of a single step, resolution included",
		RequiredTags: []string{"tool"},
	}

	PerfToolInvoke = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_invoke",
		Help:         "perf_tool_invoke provides duration of the remote tool call",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfPlanExecute,
	&PerfStepExecute,
	&PerfToolInvoke,
	&StatsPlanValidationErrors,
	&StatsPlansExecuted,
	&StatsStepsCompleted,
	&StatsStepsFailed,
	&StatsStepsRetried,
	&StatsStepsSkipped,
	&StatsToolCallsNotFound,
}
