package domain

// ResponsePayload is the authenticated part of a signed response. The JSON
// tags match the client wire format and must not change: the signature is
// computed over the canonical JSON encoding of exactly these keys.
type ResponsePayload struct {
	ChallengeCode  string         `json:"challengeCode"`
	Nonce          string         `json:"nonce"`
	ParticipantID  string         `json:"studentId"`
	DeviceID       string         `json:"deviceId"`
	SessionID      string         `json:"sessionId"`
	RespondedAt    int64          `json:"timestamp"` // unix ms
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

// VerdictStatus is the verifier's pre-analysis judgement.
type VerdictStatus string

const (
	VerdictOK      VerdictStatus = "ok"
	VerdictExpired VerdictStatus = "expired"
	VerdictFail    VerdictStatus = "fail"
)

// StructuralVerdict is the outcome of the cryptographic and timing checks.
// It never reflects radio, location or wifi evidence.
type StructuralVerdict struct {
	Status            VerdictStatus `json:"status"`
	Reason            string        `json:"reason,omitempty"`
	ResponseLatencyMs int64         `json:"responseLatency"`
}

// OK reports whether the response passed every structural check, including
// the expiry window.
func (v StructuralVerdict) OK() bool { return v.Status == VerdictOK }
