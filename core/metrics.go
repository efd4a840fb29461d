package core

import (
	"context"
	"fmt"
	"strings"
)

const metricPrefix = "gateway."

// Metric tags are limited to these keys so recorders can keep a fixed label
// set. Missing keys are left out rather than sent empty.
var metricTagKeys = []string{"operation", "error_kind"}

func counterMetric(event string) string {
	return metricPrefix + event + ".total"
}

func durationMetric(event string) string {
	return metricPrefix + event + ".duration_ms"
}

func metricTags(event string, status string, fields map[string]any) map[string]string {
	tags := map[string]string{"event": event, "status": status}
	for _, key := range metricTagKeys {
		raw, ok := fields[key]
		if !ok || raw == nil {
			continue
		}
		if value := strings.TrimSpace(fmt.Sprint(raw)); value != "" {
			tags[key] = value
		}
	}
	return tags
}

// NopMetricsRecorder drops everything. Used when no recorder is configured.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}
