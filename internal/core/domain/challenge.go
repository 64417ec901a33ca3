package domain

// Challenge is a server-minted, time-bounded secret a participant's signed
// response must echo exactly. All timestamps are absolute Unix milliseconds.
type Challenge struct {
	SessionID     string            `json:"sessionId"`
	ChallengeCode string            `json:"challengeCode"` // base64url, >=32 random bytes
	Nonce         string            `json:"nonce"`         // base64url, >=16 random bytes
	IssuedAt      int64             `json:"issuedAt"`
	ExpiresAt     int64             `json:"expiresAt"`
	OrganiserID   string            `json:"organiserId"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ValidAt reports whether the challenge window covers the given instant.
// The window is inclusive on both ends.
func (c Challenge) ValidAt(unixMs int64) bool {
	return unixMs >= c.IssuedAt && unixMs <= c.ExpiresAt
}
