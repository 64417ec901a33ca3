package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
	"github.com/lcalzada-xor/presenced/internal/core/ports"
	"github.com/lcalzada-xor/presenced/internal/core/services/analyzer"
	"github.com/lcalzada-xor/presenced/internal/core/services/issuer"
	"github.com/lcalzada-xor/presenced/internal/core/services/mac"
	"github.com/lcalzada-xor/presenced/internal/core/services/reporting"
	"github.com/lcalzada-xor/presenced/internal/core/services/verifier"
	"github.com/lcalzada-xor/presenced/internal/telemetry"
)

// Config captures every engine tunable in one struct-shaped value. The
// secret is bytes, loaded from configuration at init and never logged.
type Config struct {
	Secret            []byte
	ChallengeValidity time.Duration
	CodeSize          int
	NonceSize         int
	Analyzer          analyzer.Config
}

// DefaultConfig returns the documented defaults with an empty secret; the
// host must supply one.
func DefaultConfig() Config {
	return Config{
		ChallengeValidity: 15 * time.Second,
		CodeSize:          issuer.DefaultCodeSize,
		NonceSize:         issuer.DefaultNonceSize,
		Analyzer:          analyzer.DefaultConfig(),
	}
}

func (c Config) validate() error {
	if c.Analyzer.RSSIWeakThreshold > c.Analyzer.RSSIMediumThreshold {
		return fmt.Errorf("%w: weak RSSI threshold above medium threshold", domain.ErrConfiguration)
	}
	if !(c.Analyzer.SuspiciousFastMs < c.Analyzer.MinHumanMs && c.Analyzer.MinHumanMs < c.Analyzer.MaxReasonableMs) {
		return fmt.Errorf("%w: timing thresholds must be ordered fast < human < reasonable", domain.ErrConfiguration)
	}
	if c.Analyzer.BehavioralAlpha <= 0 || c.Analyzer.BehavioralAlpha > 1 {
		return fmt.Errorf("%w: behavioral alpha must be in (0,1]", domain.ErrConfiguration)
	}
	if c.Analyzer.WifiMinExpected < 0 || c.Analyzer.WifiMaxReasonable < c.Analyzer.WifiMinExpected {
		return fmt.Errorf("%w: wifi bounds inverted", domain.ErrConfiguration)
	}
	return nil
}

// Engine is the presence verification engine: an explicit value constructed
// at process init and passed by reference to handlers. No per-request global
// state; the only shared mutable state is the evidence store.
type Engine struct {
	mac       *mac.KeyedMAC
	issuer    *issuer.Issuer
	verifier  *verifier.Verifier
	analyzer  *analyzer.Analyzer
	reporter  *reporting.Reporter
	store     ports.EvidenceStore
	records   ports.RecordStore
	clock     ports.Clock
	authorize ports.OverrideAuthorizer
	validity  time.Duration
	commitTTL time.Duration

	notify func(domain.Analysis)
}

// New wires the engine. A bad secret or inconsistent thresholds fail here
// and nowhere else; per-response problems never surface as errors.
func New(cfg Config, store ports.EvidenceStore, records ports.RecordStore, clock ports.Clock, authorize ports.OverrideAuthorizer) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	keyed, err := mac.New(cfg.Secret)
	if err != nil {
		return nil, err
	}
	iss, err := issuer.New(store, clock, cfg.ChallengeValidity, cfg.CodeSize, cfg.NonceSize)
	if err != nil {
		return nil, err
	}

	// Keep the analyzer's view of the validity window in sync; its future
	// timestamp clamp depends on it.
	cfg.Analyzer.ChallengeValidity = cfg.ChallengeValidity

	return &Engine{
		mac:       keyed,
		issuer:    iss,
		verifier:  verifier.New(keyed, store),
		analyzer:  analyzer.New(store, clock, cfg.Analyzer),
		reporter:  reporting.NewReporter(store, clock),
		store:     store,
		records:   records,
		clock:     clock,
		authorize: authorize,
		validity:  cfg.ChallengeValidity,
		commitTTL: cfg.Analyzer.AnalysisTTL,
	}, nil
}

// SetFlagNotifier registers a hook invoked for every non-present analysis.
// Used by the live dashboard feed; may be left unset.
func (e *Engine) SetFlagNotifier(fn func(domain.Analysis)) { e.notify = fn }

// Close zeroises key material.
func (e *Engine) Close() { e.mac.Zeroize() }

// IssueChallenge mints a challenge for an opening session.
func (e *Engine) IssueChallenge(ctx context.Context, sessionID, organiserID string, metadata map[string]string) (domain.Challenge, error) {
	ch, err := e.issuer.Issue(ctx, sessionID, organiserID, metadata)
	if err != nil {
		return domain.Challenge{}, err
	}
	telemetry.ChallengesIssued.Inc()
	return ch, nil
}

// Sign authenticates canonical payload bytes. Exposed for trusted callers
// that mint responses (mock mode, tests).
func (e *Engine) Sign(payload []byte) string { return e.mac.Sign(payload) }

// VerifyResponse runs the full pipeline for one signed response and always
// returns a record. The context deadline is bounded by the challenge
// validity window.
func (e *Engine) VerifyResponse(ctx context.Context, blob string, ev domain.Evidence) (domain.AttendanceRecord, error) {
	start := time.Now()
	defer func() { telemetry.VerifyDuration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, e.validity)
	defer cancel()

	now := e.clock.Now()
	res := e.verifier.Verify(ctx, blob, now)

	if res.Verdict.Status == domain.VerdictFail {
		rec := domain.AttendanceRecord{
			RecordID:      uuid.NewString(),
			SessionID:     res.Payload.SessionID,
			ParticipantID: res.Payload.ParticipantID,
			DeviceID:      res.Payload.DeviceID,
			Outcome:       domain.OutcomeRejected,
			RiskScore:     100,
			Flags:         domain.AntiProxyFlags{InvalidChallenge: true},
			Timestamp:     now.UnixMilli(),
		}
		if err := e.records.Save(ctx, rec); err != nil {
			slog.Warn("rejected record not persisted", "recordId", rec.RecordID, "error", err)
		}
		telemetry.ResponsesVerified.WithLabelValues(string(domain.OutcomeRejected)).Inc()
		slog.Info("response rejected",
			"sessionId", res.Payload.SessionID,
			"participantId", res.Payload.ParticipantID,
			"reason", res.Verdict.Reason)
		return rec, nil
	}

	analysis := e.analyzer.Analyze(ctx, analyzer.Input{
		ParticipantID: res.Payload.ParticipantID,
		DeviceID:      res.Payload.DeviceID,
		SessionID:     res.Payload.SessionID,
		Evidence:      ev,
		RespondedAt:   res.Payload.RespondedAt,
		LatencyMs:     res.Verdict.ResponseLatencyMs,
		Expired:       res.Verdict.Status == domain.VerdictExpired,
	})

	rec := domain.AttendanceRecord{
		RecordID:      uuid.NewString(),
		SessionID:     analysis.SessionID,
		ParticipantID: analysis.ParticipantID,
		DeviceID:      analysis.DeviceID,
		Outcome:       compose(res.Verdict, analysis.Flags),
		RiskScore:     analysis.RiskScore,
		Flags:         analysis.Flags,
		Timestamp:     analysis.Timestamp,
		AnalysisID:    analysis.AnalysisID,
	}

	rec = e.commit(ctx, rec)

	telemetry.ResponsesVerified.WithLabelValues(string(rec.Outcome)).Inc()
	if rec.Outcome != domain.OutcomePresent && e.notify != nil {
		e.notify(analysis)
	}
	slog.Info("response verified",
		"analysisId", analysis.AnalysisID,
		"sessionId", rec.SessionID,
		"participantId", rec.ParticipantID,
		"outcome", rec.Outcome,
		"riskScore", rec.RiskScore,
		"duplicate", rec.Duplicate)
	return rec, nil
}

// compose merges the structural verdict and the anti-proxy flags into the
// final outcome.
func compose(verdict domain.StructuralVerdict, flags domain.AntiProxyFlags) domain.Outcome {
	if verdict.Status == domain.VerdictExpired {
		return domain.OutcomeFlagged
	}
	if flags.Any() {
		return domain.OutcomeFlagged
	}
	return domain.OutcomePresent
}

// commit performs the compare-and-set against attendance:{session}:{participant}
// so two simultaneous responses for the same pair cannot both become the
// canonical record. The loser is a duplicate submission; if the canonical
// record is flagged, the duplicate refreshes its evidence pointer.
func (e *Engine) commit(ctx context.Context, rec domain.AttendanceRecord) domain.AttendanceRecord {
	key := ports.AttendanceKey(rec.SessionID, rec.ParticipantID)
	raw, err := json.Marshal(rec)
	if err != nil {
		slog.Error("record encoding failed", "recordId", rec.RecordID, "error", err)
		return rec
	}

	won, err := e.store.PutIfAbsent(ctx, key, raw, e.commitTTL)
	if err != nil {
		// Degraded mode: duplicate suppression is lost, the record is not.
		slog.Warn("attendance commit unavailable", "recordId", rec.RecordID, "error", err)
		won = true
	}

	if won {
		if err := e.records.Save(ctx, rec); err != nil {
			slog.Warn("record not persisted", "recordId", rec.RecordID, "error", err)
		}
		return rec
	}

	existing, ok := e.canonicalRecord(ctx, key)
	if !ok {
		rec.Duplicate = true
		return rec
	}

	if existing.Outcome == domain.OutcomeFlagged {
		existing.AnalysisID = rec.AnalysisID
		if updated, err := json.Marshal(existing); err == nil {
			if err := e.store.Put(ctx, key, updated, e.commitTTL); err != nil {
				slog.Warn("flagged record evidence refresh failed", "recordId", existing.RecordID, "error", err)
			}
		}
		if err := e.records.Update(ctx, existing); err != nil {
			slog.Warn("flagged record update failed", "recordId", existing.RecordID, "error", err)
		}
	}

	existing.Duplicate = true
	return existing
}

func (e *Engine) canonicalRecord(ctx context.Context, key string) (domain.AttendanceRecord, bool) {
	raw, err := e.store.Get(ctx, key)
	if err != nil {
		return domain.AttendanceRecord{}, false
	}
	var rec domain.AttendanceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.AttendanceRecord{}, false
	}
	return rec, true
}

// SessionReport aggregates all analyses recorded for a session.
func (e *Engine) SessionReport(ctx context.Context, sessionID string) (domain.SessionReport, error) {
	return e.reporter.BuildReport(ctx, sessionID)
}

// ApplyOverride transitions a flagged record per an authorised human
// decision. Present and rejected are the only admissible targets.
func (e *Engine) ApplyOverride(ctx context.Context, recordID, actorID, reason string, newOutcome domain.Outcome) (domain.AttendanceRecord, error) {
	if e.authorize == nil || !e.authorize(ctx, actorID, recordID) {
		return domain.AttendanceRecord{}, domain.ErrOverrideUnauthorised
	}
	if newOutcome != domain.OutcomePresent && newOutcome != domain.OutcomeRejected {
		return domain.AttendanceRecord{}, domain.ErrOverrideNotAllowed
	}

	rec, err := e.records.Get(ctx, recordID)
	if err != nil {
		return domain.AttendanceRecord{}, err
	}
	if rec.Outcome != domain.OutcomeFlagged {
		return domain.AttendanceRecord{}, domain.ErrOverrideNotAllowed
	}

	rec.Override = &domain.Override{
		ActorID:   actorID,
		Reason:    reason,
		Outcome:   newOutcome,
		AppliedAt: e.clock.Now().UnixMilli(),
	}
	rec.Outcome = newOutcome

	if err := e.records.Update(ctx, rec); err != nil {
		return domain.AttendanceRecord{}, err
	}

	// Best effort: keep the commit key in step for later duplicates.
	if raw, err := json.Marshal(rec); err == nil {
		key := ports.AttendanceKey(rec.SessionID, rec.ParticipantID)
		if err := e.store.Put(ctx, key, raw, e.commitTTL); err != nil {
			slog.Warn("commit key refresh after override failed", "recordId", rec.RecordID, "error", err)
		}
	}

	slog.Info("override applied", "recordId", rec.RecordID, "actorId", actorID, "outcome", newOutcome)
	return rec, nil
}
