package storage

import (
	"encoding/json"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
)

func toModel(rec domain.AttendanceRecord) (RecordModel, error) {
	flags, err := json.Marshal(rec.Flags)
	if err != nil {
		return RecordModel{}, err
	}

	model := RecordModel{
		RecordID:      rec.RecordID,
		SessionID:     rec.SessionID,
		ParticipantID: rec.ParticipantID,
		DeviceID:      rec.DeviceID,
		Outcome:       string(rec.Outcome),
		RiskScore:     rec.RiskScore,
		Flags:         string(flags),
		AnalysisID:    rec.AnalysisID,
		Timestamp:     rec.Timestamp,
	}
	if rec.Override != nil {
		model.OverrideActor = rec.Override.ActorID
		model.OverrideReason = rec.Override.Reason
		model.OverrideOutcome = string(rec.Override.Outcome)
		model.OverrideAt = rec.Override.AppliedAt
	}
	return model, nil
}

func fromModel(model RecordModel) (domain.AttendanceRecord, error) {
	var flags domain.AntiProxyFlags
	if model.Flags != "" {
		if err := json.Unmarshal([]byte(model.Flags), &flags); err != nil {
			return domain.AttendanceRecord{}, err
		}
	}

	rec := domain.AttendanceRecord{
		RecordID:      model.RecordID,
		SessionID:     model.SessionID,
		ParticipantID: model.ParticipantID,
		DeviceID:      model.DeviceID,
		Outcome:       domain.Outcome(model.Outcome),
		RiskScore:     model.RiskScore,
		Flags:         flags,
		AnalysisID:    model.AnalysisID,
		Timestamp:     model.Timestamp,
	}
	if model.OverrideActor != "" {
		rec.Override = &domain.Override{
			ActorID:   model.OverrideActor,
			Reason:    model.OverrideReason,
			Outcome:   domain.Outcome(model.OverrideOutcome),
			AppliedAt: model.OverrideAt,
		}
	}
	return rec, nil
}
