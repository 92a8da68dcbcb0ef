package seo

import (
	"context"

	"go.uber.org/zap"

	"github.com/seo-export/backend/internal/metrics"
	"github.com/seo-export/backend/pkg/logger"
)

// Target identifies the record a chain resolves a metric for.
type Target struct {
	ID   int64
	Type string
}

// Step is one source in a resolution chain. Lookup fetches the raw value and
// Accept decides whether it counts as a hit, returning the formatted value.
type Step struct {
	Source string
	Key    string
	Lookup func(ctx context.Context, t Target) (string, error)
	Accept func(raw string) (string, bool)
}

// Chain tries its steps in order and returns the first accepted value, or
// Default when every step comes up empty. A failing lookup is logged and
// skipped.
type Chain struct {
	Kind    string
	Steps   []Step
	Default string
}

func (c Chain) Resolve(ctx context.Context, t Target) string {
	for _, step := range c.Steps {
		raw, err := step.Lookup(ctx, t)
		if err != nil {
			logger.Warn("Metric lookup failed",
				zap.String("metric", c.Kind),
				zap.String("source", step.Source),
				zap.String("key", step.Key),
				zap.Int64("post_id", t.ID),
				zap.Error(err),
			)
			continue
		}
		if value, ok := step.Accept(raw); ok {
			metrics.MetricSources.WithLabelValues(c.Kind, step.Source).Inc()
			return value
		}
	}

	metrics.MetricSources.WithLabelValues(c.Kind, "default").Inc()
	return c.Default
}

// isBlank reports the host store's notion of an empty metadata value.
func isBlank(s string) bool {
	return s == "" || s == "0"
}

func acceptPresent(raw string) (string, bool) {
	return raw, raw != ""
}

func acceptNonBlank(raw string) (string, bool) {
	return raw, !isBlank(raw)
}
