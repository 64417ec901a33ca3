package reporting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
)

func TestExportSessionReport(t *testing.T) {
	report := domain.SessionReport{
		SessionID:        "session-42",
		TotalResponses:   12,
		FlaggedResponses: 3,
		RiskDistribution: domain.RiskDistribution{Low: 9, Medium: 2, High: 1},
		FlagTypeCounts:   map[string]int{"weakSignal": 2, "duplicateDevice": 1},
		Recommendations:  []string{"review attendance policies", "enforce device binding"},
		GeneratedAt:      1_700_000_000_000,
	}
	records := []domain.AttendanceRecord{
		{
			RecordID:      "rec-1",
			ParticipantID: "student-1",
			Outcome:       domain.OutcomePresent,
			RiskScore:     0,
		},
		{
			RecordID:      "rec-2",
			ParticipantID: "student-2",
			Outcome:       domain.OutcomeFlagged,
			RiskScore:     22,
			Flags:         domain.AntiProxyFlags{WeakSignal: true},
			Override: &domain.Override{
				ActorID: "organiser-1",
				Outcome: domain.OutcomePresent,
			},
		},
	}

	data, err := NewPDFExporter().ExportSessionReport(report, records)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestExportEmptyReport(t *testing.T) {
	data, err := NewPDFExporter().ExportSessionReport(domain.SessionReport{SessionID: "empty"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
