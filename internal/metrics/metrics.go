// Package metrics reports the result of a run to a Prometheus Pushgateway.
//
// A run is a short-lived process, so nothing is scraped. The Recorder collects
// into its own registry and Push sends the whole registry once, replacing the
// previous group for the job.
//
//	predictions_last_run_duration_seconds - Wall time of the cycle.
//	predictions_last_run_outcome{outcome} - 1 for the outcome of the cycle, 0 for the others.
//	predictions_last_success_timestamp_seconds - Unix time of the cycle, set only when a row was stored or already present.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/router-for-me/predictions/internal/config"
	"github.com/router-for-me/predictions/internal/prediction"
	log "github.com/sirupsen/logrus"
)

const namespace = "predictions"

// Recorder holds the gauges for one run.
type Recorder struct {
	registry    *prometheus.Registry
	duration    prometheus.Gauge
	outcome     *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last prediction cycle, in seconds.",
		}),
		outcome: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_outcome",
			Help:      "Outcome of the last prediction cycle, 1 for the outcome reached.",
		}, []string{"outcome"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that stored a prediction or found it already stored.",
		}),
	}
	r.registry.MustRegister(r.duration, r.outcome, r.lastSuccess)
	return r
}

// Observe records a finished cycle.
func (r *Recorder) Observe(result prediction.Result, elapsed time.Duration, finished time.Time) {
	r.duration.Set(elapsed.Seconds())
	for _, outcome := range prediction.Outcomes {
		value := 0.0
		if outcome == result.Outcome {
			value = 1
		}
		r.outcome.WithLabelValues(string(outcome)).Set(value)
	}
	if result.Outcome == prediction.OutcomeStored || result.Outcome == prediction.OutcomeDuplicate {
		r.lastSuccess.Set(float64(finished.Unix()))
	}
}

// Gatherer exposes the registry, mainly for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Push sends the registry to the configured Pushgateway. It does nothing when no URL is set.
func (r *Recorder) Push(ctx context.Context, cfg config.MetricsConfig) error {
	if cfg.PushgatewayURL == "" {
		return nil
	}
	job := cfg.Job
	if job == "" {
		job = namespace
	}
	if err := push.New(cfg.PushgatewayURL, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", cfg.PushgatewayURL, err)
	}
	log.Debugf("pushed metrics to %s as job %s", cfg.PushgatewayURL, job)
	return nil
}
