// Package observability registers the service's Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	synthesisDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "workout_service",
		Subsystem: "speech",
		Name:      "synthesis_duration_seconds",
		Help:      "Wall time of narration synthesis calls by provider and outcome.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"provider", "outcome"})

	instructionPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "workout_service",
		Subsystem: "persistence",
		Name:      "last_instruction_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent voice instruction persisted.",
	})

	instructionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workout_service",
		Subsystem: "persistence",
		Name:      "voice_instructions_total",
		Help:      "Count of voice instructions persisted.",
	})

	staleWriteCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "workout_service",
		Subsystem: "linker",
		Name:      "stale_pointer_writes_total",
		Help:      "Count of voice-pointer updates rejected by the version guard.",
	})
)

func init() {
	prometheus.MustRegister(synthesisDuration, instructionPersistGauge, instructionsCounter, staleWriteCounter)
}

// ObserveSynthesis records one synthesis attempt.
func ObserveSynthesis(provider string, elapsed time.Duration, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	synthesisDuration.WithLabelValues(provider, outcome).Observe(elapsed.Seconds())
}

// RecordInstructionPersisted updates the persistence watermark and counter.
func RecordInstructionPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	instructionPersistGauge.Set(float64(ts.Unix()))
	instructionsCounter.Inc()
}

// RecordStaleWrite counts a lost optimistic-concurrency race.
func RecordStaleWrite() {
	staleWriteCounter.Inc()
}
