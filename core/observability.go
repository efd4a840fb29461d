package core

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// observer is shared by the manager and the dispatcher. Every observed event
// yields one counter, one duration histogram and one log line.
type observer struct {
	logger  Logger
	metrics MetricsRecorder
}

func newObserver(name string, provider LoggerProvider, logger Logger, metrics MetricsRecorder) observer {
	_, resolved := glog.Resolve(name, provider, logger)
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return observer{logger: resolved, metrics: metrics}
}

// observe records event. An empty status is derived from err.
func (o observer) observe(
	ctx context.Context,
	startedAt time.Time,
	event string,
	status string,
	err error,
	fields map[string]any,
) {
	event = normalizeEvent(event)
	if status == "" {
		status = statusSuccess
		if err != nil {
			status = statusFailure
		}
	}
	elapsed := time.Since(startedAt).Milliseconds()

	if o.metrics != nil {
		tags := metricTags(event, status, fields)
		o.metrics.IncCounter(ctx, counterMetric(event), 1, tags)
		o.metrics.ObserveHistogram(ctx, durationMetric(event), float64(elapsed), maps.Clone(tags))
	}

	logFields := maps.Clone(fields)
	if logFields == nil {
		logFields = map[string]any{}
	}
	logFields["event_type"] = event
	logFields["status"] = status
	logFields["duration_ms"] = elapsed
	if err != nil {
		logFields["error"] = err.Error()
	}
	if status == statusSuccess {
		o.log(ctx, false, event+" succeeded", logFields)
		return
	}
	o.log(ctx, true, event+" failed", logFields)
}

func (o observer) log(ctx context.Context, failed bool, message string, fields map[string]any) {
	if o.logger == nil {
		return
	}
	logger := o.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(maps.Clone(fields))
	}
	args := flattenFields(fields)
	if failed {
		logger.Error(message, args...)
		return
	}
	logger.Info(message, args...)
}

// flattenFields renders fields as sorted key/value pairs.
func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeEvent(event string) string {
	event = strings.ToLower(strings.TrimSpace(event))
	event = strings.NewReplacer(" ", "_", "-", "_", ".", "_").Replace(event)
	if event == "" {
		return "unknown"
	}
	return event
}
