package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
)

var (
	// ChallengesIssued counts challenges minted per organiser session open.
	ChallengesIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "presenced",
			Name:      "challenges_issued_total",
			Help:      "Total number of presence challenges issued",
		},
	)

	// ResponsesVerified counts processed responses by final outcome.
	ResponsesVerified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presenced",
			Name:      "responses_verified_total",
			Help:      "Total number of signed responses processed, by outcome",
		},
		[]string{"outcome"},
	)

	// FlagsTripped counts individual anti-proxy flags across all analyses.
	FlagsTripped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presenced",
			Name:      "flags_tripped_total",
			Help:      "Total number of anti-proxy flags tripped, by flag",
		},
		[]string{"flag"},
	)

	// RiskScores observes the distribution of per-response risk scores.
	RiskScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "presenced",
			Name:      "risk_score",
			Help:      "Distribution of per-response risk scores",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// VerifyDuration observes end-to-end verification latency.
	VerifyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "presenced",
			Name:      "verify_duration_seconds",
			Help:      "Wall time spent verifying one response",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// Idempotent; safe to call from tests and from bootstrap.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(ChallengesIssued)
		prometheus.DefaultRegisterer.Register(ResponsesVerified)
		prometheus.DefaultRegisterer.Register(FlagsTripped)
		prometheus.DefaultRegisterer.Register(RiskScores)
		prometheus.DefaultRegisterer.Register(VerifyDuration)
	})
}

// ObserveAnalysis records the metric side of one completed analysis.
func ObserveAnalysis(a domain.Analysis) {
	RiskScores.Observe(float64(a.RiskScore))
	for _, flag := range a.Flags.Tripped() {
		FlagsTripped.WithLabelValues(flag).Inc()
	}
}
