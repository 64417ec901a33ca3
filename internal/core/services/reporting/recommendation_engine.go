package reporting

import "github.com/lcalzada-xor/presenced/internal/core/domain"

// Recommendation thresholds.
const (
	flaggedRatioThreshold = 0.10
	weakSignalThreshold   = 5
)

// RecommendationEngine turns session statistics into actionable advice for
// the organiser.
type RecommendationEngine struct{}

// NewRecommendationEngine creates a new recommendation engine instance.
func NewRecommendationEngine() *RecommendationEngine {
	return &RecommendationEngine{}
}

// Generate applies the fixed rule set to a session report. An empty result
// means nothing stood out.
func (re *RecommendationEngine) Generate(report domain.SessionReport) []string {
	var recs []string

	if report.TotalResponses > 0 &&
		float64(report.FlaggedResponses)/float64(report.TotalResponses) > flaggedRatioThreshold {
		recs = append(recs, "review attendance policies")
	}
	if report.FlagTypeCounts["duplicateDevice"] > 0 {
		recs = append(recs, "enforce device binding")
	}
	if report.FlagTypeCounts["weakSignal"] > weakSignalThreshold {
		recs = append(recs, "check short-range radio range")
	}

	return recs
}
