package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
)

func newTestAdapter(t *testing.T) *SQLiteAdapter {
	t.Helper()
	adapter, err := NewSQLiteAdapter(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	return adapter
}

func sampleRecord(id string) domain.AttendanceRecord {
	return domain.AttendanceRecord{
		RecordID:      id,
		SessionID:     "session-1",
		ParticipantID: "student-7",
		DeviceID:      "device-abc",
		Outcome:       domain.OutcomeFlagged,
		RiskScore:     20,
		Flags:         domain.AntiProxyFlags{WeakSignal: true},
		AnalysisID:    "analysis-1",
		Timestamp:     1_700_000_000_000,
	}
}

func TestSaveAndGet(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	rec := sampleRecord("rec-1")
	require.NoError(t, adapter.Save(ctx, rec))

	got, err := adapter.Get(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.Equal(t, rec.Outcome, got.Outcome)
	assert.True(t, got.Flags.WeakSignal)
	assert.Nil(t, got.Override)
}

func TestGetMissing(t *testing.T) {
	adapter := newTestAdapter(t)
	_, err := adapter.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestUpdateOverride(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	rec := sampleRecord("rec-2")
	require.NoError(t, adapter.Save(ctx, rec))

	rec.Outcome = domain.OutcomePresent
	rec.Override = &domain.Override{
		ActorID:   "organiser-1",
		Reason:    "verified in person",
		Outcome:   domain.OutcomePresent,
		AppliedAt: 1_700_000_100_000,
	}
	require.NoError(t, adapter.Update(ctx, rec))

	got, err := adapter.Get(ctx, "rec-2")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomePresent, got.Outcome)
	require.NotNil(t, got.Override)
	assert.Equal(t, "organiser-1", got.Override.ActorID)
	assert.Equal(t, "verified in person", got.Override.Reason)
}

func TestUpdateMissing(t *testing.T) {
	adapter := newTestAdapter(t)
	err := adapter.Update(context.Background(), sampleRecord("ghost"))
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestListBySession(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	a := sampleRecord("rec-a")
	a.Timestamp = 100
	b := sampleRecord("rec-b")
	b.Timestamp = 200
	other := sampleRecord("rec-c")
	other.SessionID = "session-2"

	require.NoError(t, adapter.Save(ctx, a))
	require.NoError(t, adapter.Save(ctx, b))
	require.NoError(t, adapter.Save(ctx, other))

	records, err := adapter.ListBySession(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec-b", records[0].RecordID) // newest first
	assert.Equal(t, "rec-a", records[1].RecordID)
}
