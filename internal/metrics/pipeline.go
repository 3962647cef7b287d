package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineCollector records extraction pipeline activity. A nil collector is
// valid and records nothing.
type PipelineCollector struct {
	stageDuration *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	userErrors    *prometheus.CounterVec
}

// NewPipelineCollector registers pipeline metrics on reg.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "productbridge",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages by outcome.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"stage", "outcome"})

	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "productbridge",
		Subsystem: "pipeline",
		Name:      "retries_total",
		Help:      "Retried attempts by retry policy.",
	}, []string{"policy"})

	userErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "productbridge",
		Subsystem: "pipeline",
		Name:      "user_errors_total",
		Help:      "Errors returned to operators by code.",
	}, []string{"code"})

	for _, c := range []prometheus.Collector{stageDuration, retries, userErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &PipelineCollector{
		stageDuration: stageDuration,
		retries:       retries,
		userErrors:    userErrors,
	}, nil
}

// ObserveStage records how long a stage took and whether it succeeded.
func (c *PipelineCollector) ObserveStage(stage string, d time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// IncRetry counts a retried attempt under policy.
func (c *PipelineCollector) IncRetry(policy string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(policy).Inc()
}

// IncUserError counts an error returned to the operator.
func (c *PipelineCollector) IncUserError(code string) {
	if c == nil {
		return
	}
	c.userErrors.WithLabelValues(code).Inc()
}
