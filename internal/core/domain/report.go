package domain

// RiskDistribution counts analyses per risk band.
type RiskDistribution struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// SessionReport aggregates every analysis recorded for a session.
type SessionReport struct {
	SessionID        string           `json:"sessionId"`
	TotalResponses   int              `json:"totalResponses"`
	FlaggedResponses int              `json:"flaggedResponses"`
	RiskDistribution RiskDistribution `json:"riskDistribution"`
	FlagTypeCounts   map[string]int   `json:"flagTypeCounts"`
	Recommendations  []string         `json:"recommendations"`
	GeneratedAt      int64            `json:"generatedAt"`
}
