// Package metrics holds the shared metric shapes emitted by the pipeline services.
package metrics

import (
	"time"

	obserrors "github.com/target/mmk-pipeline/internal/observability/errors"
	"github.com/target/mmk-pipeline/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	ResultSkipped = "skipped"
)

// Job lifecycle transitions.
const (
	TransitionCompleted = "completed"
	TransitionRequeued  = "requeued"
	TransitionFailed    = "failed"
	// TransitionExhausted marks a job failed at pickup because it had no attempts left.
	TransitionExhausted = "exhausted"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	TaskType   string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits job.transition and, when a duration is known, job.duration.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"task_type":  in.TaskType,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// ResultFor picks success, noop or error for a batch step.
func ResultFor(count int64, err error) string {
	switch {
	case err != nil:
		return ResultError
	case count == 0:
		return ResultNoop
	default:
		return ResultSuccess
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
