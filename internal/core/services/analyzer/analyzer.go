package analyzer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
	"github.com/lcalzada-xor/presenced/internal/core/ports"
	"github.com/lcalzada-xor/presenced/internal/telemetry"
)

// Config holds the thresholds for every sub-analysis.
type Config struct {
	RSSIWeakThreshold   int // dBm, inclusive
	RSSIMediumThreshold int // dBm, inclusive

	SuspiciousFastMs  int64
	MinHumanMs        int64
	MaxReasonableMs   int64
	ChallengeValidity time.Duration

	JumpDistanceM   float64
	MinMovementTime time.Duration
	LocationTTL     time.Duration

	WifiMinExpected    int
	WifiMaxReasonable  int
	WifiBlacklist      []string
	AttestationTokens  []string
	BehavioralAlpha    float64
	AnalysisTTL        time.Duration
	DeviceBindingTTL   time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		RSSIWeakThreshold:   -70,
		RSSIMediumThreshold: -50,
		SuspiciousFastMs:    200,
		MinHumanMs:          500,
		MaxReasonableMs:     10000,
		ChallengeValidity:   15 * time.Second,
		JumpDistanceM:       1000,
		MinMovementTime:     30 * time.Second,
		LocationTTL:         time.Hour,
		WifiMinExpected:     1,
		WifiMaxReasonable:   20,
		WifiBlacklist: []string{
			"MOCK_WIFI", "TEST_AP", "FAKE_NETWORK", "EMULATOR_WIFI",
			"SIMULATOR_AP", "DEBUG_WIFI", "PROXY_NETWORK",
		},
		AttestationTokens: []string{"rooted", "jailbroken", "emulator"},
		BehavioralAlpha:   0.2,
		AnalysisTTL:       7 * 24 * time.Hour,
		DeviceBindingTTL:  7 * 24 * time.Hour,
	}
}

// Input is one response's worth of facts handed to the detector battery.
// Identity fields come from the authenticated payload, never the evidence.
type Input struct {
	ParticipantID string
	DeviceID      string
	SessionID     string
	Evidence      domain.Evidence
	RespondedAt   int64 // unix ms, from the authenticated payload
	LatencyMs     int64 // respondedAt - issuedAt, verifier-computed
	Expired       bool  // structural verdict was "expired"
}

// Accumulator collects flags and diagnostics across the battery.
type Accumulator struct {
	Flags     domain.AntiProxyFlags
	Details   map[string]string
	Proximity domain.ProximityFacts
}

// Detector is one sub-analysis of the anti-proxy battery.
type Detector interface {
	Name() string
	Analyze(ctx context.Context, in *Input, acc *Accumulator)
}

// Analyzer runs the fixed battery and persists the resulting analysis.
// History lookups fail open: a store outage downgrades to "no prior data".
type Analyzer struct {
	store     ports.EvidenceStore
	clock     ports.Clock
	cfg       Config
	detectors []Detector
}

// New creates an analyzer with the six default detectors in fixed order.
func New(store ports.EvidenceStore, clock ports.Clock, cfg Config) *Analyzer {
	a := &Analyzer{store: store, clock: clock, cfg: cfg}
	a.detectors = []Detector{
		&SignalDetector{cfg: cfg},
		&TimingDetector{cfg: cfg, clock: clock},
		&LocationDetector{cfg: cfg, store: store, clock: clock},
		&WifiDetector{cfg: cfg},
		&DeviceBindingDetector{cfg: cfg, store: store, clock: clock},
		&BehaviorDetector{cfg: cfg, store: store, clock: clock},
	}
	return a
}

// Analyze runs every detector, computes the risk score and writes the
// analysis plus its by-session index entry.
func (a *Analyzer) Analyze(ctx context.Context, in Input) domain.Analysis {
	acc := &Accumulator{Details: make(map[string]string)}
	if in.Expired {
		acc.Flags.LateResponse = true
	}

	for _, d := range a.detectors {
		d.Analyze(ctx, &in, acc)
	}

	now := a.clock.Now().UnixMilli()
	analysis := domain.Analysis{
		AnalysisID:    uuid.NewString(),
		ParticipantID: in.ParticipantID,
		SessionID:     in.SessionID,
		DeviceID:      in.DeviceID,
		Timestamp:     now,
		Flags:         acc.Flags,
		RiskScore:     acc.Flags.RiskScore(),
		Details:       acc.Details,
		Evidence: domain.EvidenceSummary{
			RSSI:               in.Evidence.RSSI,
			SignalClass:        string(acc.Proximity.SignalClass),
			EstimatedDistanceM: acc.Proximity.EstimatedDistanceM,
			ResponseLatencyMs:  in.LatencyMs,
			WifiCount:          len(in.Evidence.WifiNetworks),
			HasLocation:        in.Evidence.Location != nil,
			AttestationTokens:  len(in.Evidence.DeviceAttestation),
		},
	}
	analysis.RiskLevel = domain.RiskLevel(analysis.RiskScore)

	a.persist(ctx, analysis)
	telemetry.ObserveAnalysis(analysis)
	return analysis
}

func (a *Analyzer) persist(ctx context.Context, analysis domain.Analysis) {
	raw, err := json.Marshal(analysis)
	if err != nil {
		slog.Error("analysis encoding failed", "analysisId", analysis.AnalysisID, "error", err)
		return
	}

	key := ports.AnalysisKey(analysis.ParticipantID, analysis.Timestamp)
	if err := a.store.Put(ctx, key, raw, a.cfg.AnalysisTTL); err != nil {
		slog.Warn("analysis write failed", "analysisId", analysis.AnalysisID,
			"sessionId", analysis.SessionID, "error", err)
		return
	}
	if err := a.store.AppendSetMember(ctx, ports.SessionIndexKey(analysis.SessionID), key, a.cfg.AnalysisTTL); err != nil {
		slog.Warn("session index write failed", "analysisId", analysis.AnalysisID,
			"sessionId", analysis.SessionID, "error", err)
	}
}
