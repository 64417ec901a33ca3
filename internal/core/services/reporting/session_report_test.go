package reporting

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/presenced/internal/adapters/evidence"
	"github.com/lcalzada-xor/presenced/internal/core/domain"
	"github.com/lcalzada-xor/presenced/internal/core/ports"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestReporter() (*Reporter, *evidence.MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	store := evidence.NewMemoryStore(clock)
	return NewReporter(store, clock), store, clock
}

func putAnalysis(t *testing.T, store *evidence.MemoryStore, a domain.Analysis) {
	t.Helper()
	ctx := context.Background()
	raw, err := json.Marshal(a)
	require.NoError(t, err)
	key := ports.AnalysisKey(a.ParticipantID, a.Timestamp)
	require.NoError(t, store.Put(ctx, key, raw, time.Hour))
	require.NoError(t, store.AppendSetMember(ctx, ports.SessionIndexKey(a.SessionID), key, time.Hour))
}

func TestBuildReportEmptySession(t *testing.T) {
	r, _, clock := newTestReporter()

	report, err := r.BuildReport(context.Background(), "s-empty")
	require.NoError(t, err)

	assert.Equal(t, "s-empty", report.SessionID)
	assert.Equal(t, 0, report.TotalResponses)
	assert.Empty(t, report.Recommendations)
	assert.Equal(t, clock.now.UnixMilli(), report.GeneratedAt)
}

func TestBuildReportAggregates(t *testing.T) {
	r, store, clock := newTestReporter()
	now := clock.now.UnixMilli()

	putAnalysis(t, store, domain.Analysis{
		AnalysisID: "a1", ParticipantID: "p1", SessionID: "s-1", Timestamp: now,
		RiskScore: 0,
	})
	putAnalysis(t, store, domain.Analysis{
		AnalysisID: "a2", ParticipantID: "p2", SessionID: "s-1", Timestamp: now + 1,
		Flags:     domain.AntiProxyFlags{WeakSignal: true, InvalidLocation: true},
		RiskScore: 20,
	})
	putAnalysis(t, store, domain.Analysis{
		AnalysisID: "a3", ParticipantID: "p3", SessionID: "s-1", Timestamp: now + 2,
		Flags:     domain.AntiProxyFlags{InvalidChallenge: true, DuplicateDevice: true, RootedDevice: true},
		RiskScore: 47,
	})

	report, err := r.BuildReport(context.Background(), "s-1")
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalResponses)
	assert.Equal(t, 2, report.FlaggedResponses)
	assert.Equal(t, 2, report.RiskDistribution.Low)
	assert.Equal(t, 1, report.RiskDistribution.Medium)
	assert.Equal(t, 0, report.RiskDistribution.High)
	assert.Equal(t, 1, report.FlagTypeCounts["weakSignal"])
	assert.Equal(t, 1, report.FlagTypeCounts["duplicateDevice"])

	assert.Contains(t, report.Recommendations, "review attendance policies")
	assert.Contains(t, report.Recommendations, "enforce device binding")
}

func TestBuildReportSkipsExpiredEntries(t *testing.T) {
	r, store, clock := newTestReporter()
	ctx := context.Background()
	now := clock.now.UnixMilli()

	// Index outlives the analysis value.
	a := domain.Analysis{AnalysisID: "a1", ParticipantID: "p1", SessionID: "s-1", Timestamp: now}
	raw, err := json.Marshal(a)
	require.NoError(t, err)
	key := ports.AnalysisKey("p1", now)
	require.NoError(t, store.Put(ctx, key, raw, time.Second))
	require.NoError(t, store.AppendSetMember(ctx, ports.SessionIndexKey("s-1"), key, time.Hour))

	clock.now = clock.now.Add(2 * time.Second)
	report, err := r.BuildReport(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalResponses)
}

func TestRecommendationRules(t *testing.T) {
	re := NewRecommendationEngine()

	tests := []struct {
		name   string
		report domain.SessionReport
		want   []string
	}{
		{
			"quiet session",
			domain.SessionReport{TotalResponses: 30, FlaggedResponses: 2},
			nil,
		},
		{
			"high flag ratio",
			domain.SessionReport{TotalResponses: 10, FlaggedResponses: 2},
			[]string{"review attendance policies"},
		},
		{
			"device sharing",
			domain.SessionReport{TotalResponses: 100, FlaggedResponses: 1,
				FlagTypeCounts: map[string]int{"duplicateDevice": 3}},
			[]string{"enforce device binding"},
		},
		{
			"coverage problem",
			domain.SessionReport{TotalResponses: 100, FlaggedResponses: 8,
				FlagTypeCounts: map[string]int{"weakSignal": 6}},
			[]string{"check short-range radio range"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, re.Generate(tt.report))
		})
	}
}
