package reporting

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
	"github.com/lcalzada-xor/presenced/internal/core/ports"
)

// Reporter aggregates the analyses recorded for a session. It reads the
// by-session index written at analysis time, never the whole keyspace.
type Reporter struct {
	store       ports.EvidenceStore
	clock       ports.Clock
	recommender *RecommendationEngine
}

// NewReporter creates a session reporter.
func NewReporter(store ports.EvidenceStore, clock ports.Clock) *Reporter {
	return &Reporter{
		store:       store,
		clock:       clock,
		recommender: NewRecommendationEngine(),
	}
}

// BuildReport assembles the session report. Analyses whose entries expired
// between index read and value read are skipped silently.
func (r *Reporter) BuildReport(ctx context.Context, sessionID string) (domain.SessionReport, error) {
	report := domain.SessionReport{
		SessionID:      sessionID,
		FlagTypeCounts: make(map[string]int),
		GeneratedAt:    r.clock.Now().UnixMilli(),
	}

	keys, err := r.store.SetMembers(ctx, ports.SessionIndexKey(sessionID))
	if err != nil {
		return domain.SessionReport{}, err
	}

	for _, key := range keys {
		raw, err := r.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var analysis domain.Analysis
		if err := json.Unmarshal(raw, &analysis); err != nil {
			slog.Warn("skipping corrupt analysis record", "key", key, "sessionId", sessionID)
			continue
		}

		report.TotalResponses++
		if analysis.Flags.Any() {
			report.FlaggedResponses++
		}
		for _, flag := range analysis.Flags.Tripped() {
			report.FlagTypeCounts[flag]++
		}
		switch domain.RiskLevel(analysis.RiskScore) {
		case domain.RiskLow:
			report.RiskDistribution.Low++
		case domain.RiskMedium:
			report.RiskDistribution.Medium++
		default:
			report.RiskDistribution.High++
		}
	}

	report.Recommendations = r.recommender.Generate(report)
	return report, nil
}
