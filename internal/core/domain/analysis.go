package domain

import "math"

// AntiProxyFlags is the closed set of per-response fraud indicators. Each
// flag maps to one sub-analysis; diagnostics that do not fit a flag travel
// in Analysis.Details and are never branched on.
type AntiProxyFlags struct {
	WeakSignal       bool `json:"weakSignal"`
	DuplicateDevice  bool `json:"duplicateDevice"`
	InvalidLocation  bool `json:"invalidLocation"`
	SuspiciousWifi   bool `json:"suspiciousWifi"`
	LateResponse     bool `json:"lateResponse"`
	InvalidChallenge bool `json:"invalidChallenge"`
	RootedDevice     bool `json:"rootedDevice"`
	MockedLocation   bool `json:"mockedLocation"`
	UnusualPattern   bool `json:"unusualPattern"`
}

// Flag weights are fixed; the denominator of the risk score is always the
// sum of all weights, so a response that trips everything scores exactly 100.
const (
	weightWeakSignal       = 0.20
	weightDuplicateDevice  = 0.30
	weightInvalidLocation  = 0.25
	weightSuspiciousWifi   = 0.15
	weightLateResponse     = 0.10
	weightInvalidChallenge = 0.40
	weightRootedDevice     = 0.35
	weightMockedLocation   = 0.30
	weightUnusualPattern   = 0.20
)

const totalFlagWeight = weightWeakSignal + weightDuplicateDevice + weightInvalidLocation +
	weightSuspiciousWifi + weightLateResponse + weightInvalidChallenge +
	weightRootedDevice + weightMockedLocation + weightUnusualPattern

// Tripped returns the names of the set flags in declaration order.
func (f AntiProxyFlags) Tripped() []string {
	var out []string
	for _, e := range f.entries() {
		if e.set {
			out = append(out, e.name)
		}
	}
	return out
}

// Any reports whether at least one flag is set.
func (f AntiProxyFlags) Any() bool {
	for _, e := range f.entries() {
		if e.set {
			return true
		}
	}
	return false
}

type flagEntry struct {
	name   string
	weight float64
	set    bool
}

func (f AntiProxyFlags) entries() []flagEntry {
	return []flagEntry{
		{"weakSignal", weightWeakSignal, f.WeakSignal},
		{"duplicateDevice", weightDuplicateDevice, f.DuplicateDevice},
		{"invalidLocation", weightInvalidLocation, f.InvalidLocation},
		{"suspiciousWifi", weightSuspiciousWifi, f.SuspiciousWifi},
		{"lateResponse", weightLateResponse, f.LateResponse},
		{"invalidChallenge", weightInvalidChallenge, f.InvalidChallenge},
		{"rootedDevice", weightRootedDevice, f.RootedDevice},
		{"mockedLocation", weightMockedLocation, f.MockedLocation},
		{"unusualPattern", weightUnusualPattern, f.UnusualPattern},
	}
}

// RiskScore computes the normalised weighted score in [0,100].
func (f AntiProxyFlags) RiskScore() int {
	var tripped float64
	for _, e := range f.entries() {
		if e.set {
			tripped += e.weight
		}
	}
	score := math.Round(100 * tripped / totalFlagWeight)
	if score > 100 {
		score = 100
	}
	return int(score)
}

// Risk classification bands.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// RiskLevel maps a 0-100 score onto the low/medium/high bands.
func RiskLevel(score int) string {
	switch {
	case score < 30:
		return RiskLow
	case score < 70:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// EvidenceSummary is the echoed, non-sensitive view of the evidence bundle
// persisted with each analysis.
type EvidenceSummary struct {
	RSSI               int     `json:"rssi"`
	SignalClass        string  `json:"signalClass"`
	EstimatedDistanceM float64 `json:"estimatedDistance"`
	ResponseLatencyMs  int64   `json:"responseLatency"`
	WifiCount          int     `json:"wifiCount"`
	HasLocation        bool    `json:"hasLocation"`
	AttestationTokens  int     `json:"attestationTokens"`
}

// Analysis is the persisted result of the anti-proxy battery for one
// response. Stored under analysis:{participantId}:{timestamp} for seven days.
type Analysis struct {
	AnalysisID    string            `json:"analysisId"`
	ParticipantID string            `json:"participantId"`
	SessionID     string            `json:"sessionId"`
	DeviceID      string            `json:"deviceId"`
	Timestamp     int64             `json:"timestamp"`
	Flags         AntiProxyFlags    `json:"flags"`
	RiskScore     int               `json:"riskScore"`
	RiskLevel     string            `json:"riskLevel"`
	Details       map[string]string `json:"details,omitempty"`
	Evidence      EvidenceSummary   `json:"evidence"`
}
