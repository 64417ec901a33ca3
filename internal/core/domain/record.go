package domain

// Outcome is the compositor's verdict for one response.
type Outcome string

const (
	OutcomePresent  Outcome = "present"
	OutcomeFlagged  Outcome = "flagged"
	OutcomeRejected Outcome = "rejected"
)

// Override records a human decision on a flagged record. Only flagged
// records may transition, and only to present or rejected.
type Override struct {
	ActorID   string  `json:"actorId"`
	Reason    string  `json:"reason"`
	Outcome   Outcome `json:"outcome"`
	AppliedAt int64   `json:"appliedAt"`
}

// AttendanceRecord is the engine's result for one verified response. At most
// one canonical record exists per (sessionId, participantId) until the
// session closes.
type AttendanceRecord struct {
	RecordID      string         `json:"recordId"`
	SessionID     string         `json:"sessionId"`
	ParticipantID string         `json:"participantId"`
	DeviceID      string         `json:"deviceId"`
	Outcome       Outcome        `json:"outcome"`
	RiskScore     int            `json:"riskScore"`
	Flags         AntiProxyFlags `json:"flags"`
	Timestamp     int64          `json:"timestamp"`
	AnalysisID    string         `json:"analysisId,omitempty"`
	Duplicate     bool           `json:"duplicate,omitempty"` // lost the commit race or re-submission
	Override      *Override      `json:"override,omitempty"`
}
