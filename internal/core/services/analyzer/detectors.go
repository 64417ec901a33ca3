package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
	"github.com/lcalzada-xor/presenced/internal/core/ports"
	"github.com/lcalzada-xor/presenced/internal/geo"
)

// SignalDetector classifies the short-range radio reading. The estimated
// distance uses log-distance path loss with a -69 dBm reference at 1 m and
// is informational only.
type SignalDetector struct {
	cfg Config
}

func (d *SignalDetector) Name() string { return "SignalDetector" }

func (d *SignalDetector) Analyze(_ context.Context, in *Input, acc *Accumulator) {
	rssi := in.Evidence.RSSI

	class := domain.SignalStrong
	switch {
	case rssi <= d.cfg.RSSIWeakThreshold:
		class = domain.SignalWeak
	case rssi <= d.cfg.RSSIMediumThreshold:
		class = domain.SignalMedium
	}

	acc.Proximity = domain.ProximityFacts{
		SignalClass:        class,
		EstimatedDistanceM: math.Pow(10, float64(-69-rssi)/20),
	}
	if class == domain.SignalWeak {
		acc.Flags.WeakSignal = true
		acc.Details["signal"] = fmt.Sprintf("rssi %d dBm below weak threshold %d", rssi, d.cfg.RSSIWeakThreshold)
	}
}

// TimingDetector checks how old the response is relative to server time.
type TimingDetector struct {
	cfg   Config
	clock ports.Clock
}

func (d *TimingDetector) Name() string { return "TimingDetector" }

func (d *TimingDetector) Analyze(_ context.Context, in *Input, acc *Accumulator) {
	age := d.clock.Now().UnixMilli() - in.RespondedAt

	switch {
	case age > d.cfg.MaxReasonableMs:
		acc.Flags.LateResponse = true
		acc.Details["timing"] = fmt.Sprintf("response %dms old, above %dms", age, d.cfg.MaxReasonableMs)
	case age < d.cfg.SuspiciousFastMs:
		acc.Flags.UnusualPattern = true
		acc.Details["timing"] = fmt.Sprintf("response %dms old, below %dms", age, d.cfg.SuspiciousFastMs)
	case age < d.cfg.MinHumanMs:
		// Suspicious but not flag-worthy on its own.
		acc.Details["timing"] = fmt.Sprintf("response %dms old, under human floor %dms", age, d.cfg.MinHumanMs)
	}
}

// LocationDetector checks the plausibility of the reported position against
// the participant's last known one, then records the new position.
type LocationDetector struct {
	cfg   Config
	store ports.EvidenceStore
	clock ports.Clock
}

func (d *LocationDetector) Name() string { return "LocationDetector" }

func (d *LocationDetector) Analyze(ctx context.Context, in *Input, acc *Accumulator) {
	loc := in.Evidence.Location
	if loc == nil {
		return
	}

	if loc.Lat == 0 && loc.Lon == 0 {
		acc.Flags.InvalidLocation = true
		acc.Details["location"] = "null island coordinates"
	}

	// No consumer-grade receiver legitimately reports sub-metre accuracy
	// indoors.
	if loc.Accuracy < 1.0 {
		acc.Flags.MockedLocation = true
		acc.Details["locationAccuracy"] = fmt.Sprintf("reported accuracy %.2fm", loc.Accuracy)
	}

	// Client clocks drift, but not by a whole challenge window forward.
	if loc.Timestamp > d.clock.Now().UnixMilli()+d.cfg.ChallengeValidity.Milliseconds() {
		acc.Flags.InvalidLocation = true
		acc.Details["locationClock"] = "location timestamp in the future"
	}

	if last, ok := d.lastLocation(ctx, in.ParticipantID); ok {
		dist := geo.Distance(last.Lat, last.Lon, loc.Lat, loc.Lon)
		deltaMs := loc.Timestamp - last.Timestamp
		if deltaMs < 0 {
			deltaMs = 0
		}
		if dist > d.cfg.JumpDistanceM && deltaMs < d.cfg.MinMovementTime.Milliseconds() {
			acc.Flags.InvalidLocation = true
			acc.Details["locationJump"] = fmt.Sprintf("%.0fm in %dms", dist, deltaMs)
		}
	}

	raw, err := json.Marshal(loc)
	if err == nil {
		if err := d.store.Put(ctx, ports.LastLocationKey(in.ParticipantID), raw, d.cfg.LocationTTL); err != nil {
			slog.Warn("last location write failed", "participantId", in.ParticipantID, "error", err)
		}
	}
}

func (d *LocationDetector) lastLocation(ctx context.Context, participantID string) (domain.Location, bool) {
	raw, err := d.store.Get(ctx, ports.LastLocationKey(participantID))
	if err != nil {
		// Fail open: no history is no evidence.
		return domain.Location{}, false
	}
	var last domain.Location
	if err := json.Unmarshal(raw, &last); err != nil {
		return domain.Location{}, false
	}
	return last, true
}

// WifiDetector checks the wireless environment fingerprint for emptiness,
// implausible density and blacklisted SSIDs.
type WifiDetector struct {
	cfg Config
}

func (d *WifiDetector) Name() string { return "WifiDetector" }

func (d *WifiDetector) Analyze(_ context.Context, in *Input, acc *Accumulator) {
	n := len(in.Evidence.WifiNetworks)
	if n < d.cfg.WifiMinExpected || n > d.cfg.WifiMaxReasonable {
		acc.Flags.SuspiciousWifi = true
		acc.Details["wifiCount"] = fmt.Sprintf("%d networks visible", n)
	}

	// Substring match, case-insensitive: "guest-MOCK_WIFI-2" still flags.
	for _, ssid := range in.Evidence.WifiNetworks {
		upper := strings.ToUpper(ssid)
		for _, banned := range d.cfg.WifiBlacklist {
			if strings.Contains(upper, banned) {
				acc.Flags.SuspiciousWifi = true
				acc.Details["wifiBlacklist"] = ssid
				return
			}
		}
	}
}

// DeviceBindingDetector enforces one device per participant and reads the
// attestation tokens.
type DeviceBindingDetector struct {
	cfg   Config
	store ports.EvidenceStore
	clock ports.Clock
}

func (d *DeviceBindingDetector) Name() string { return "DeviceBindingDetector" }

func (d *DeviceBindingDetector) Analyze(ctx context.Context, in *Input, acc *Accumulator) {
	key := ports.DeviceUsageKey(in.DeviceID)

	members, err := d.store.SetMembers(ctx, key)
	if err != nil {
		slog.Warn("device usage lookup failed, treating as no history",
			"deviceId", in.DeviceID, "error", err)
		members = nil
	}
	others := 0
	for _, m := range members {
		if pid, _ := parseUsageMember(m); pid != "" && pid != in.ParticipantID {
			others++
		}
	}
	if others > 0 {
		acc.Flags.DuplicateDevice = true
		acc.Details["deviceUsage"] = fmt.Sprintf("device previously bound to %d other participant(s)", others)
	}

	for _, token := range in.Evidence.DeviceAttestation {
		for _, banned := range d.cfg.AttestationTokens {
			if strings.EqualFold(token, banned) {
				acc.Flags.RootedDevice = true
				acc.Details["attestation"] = strings.ToLower(token)
			}
		}
	}

	member := usageMember(in.ParticipantID, d.clock.Now().UnixMilli())
	if err := d.store.AppendSetMember(ctx, key, member, d.cfg.DeviceBindingTTL); err != nil {
		slog.Warn("device usage append failed", "deviceId", in.DeviceID, "error", err)
	}
}

// usageMember encodes a device-usage set member as participantId@unixMs so
// one set carries both the binding and its last-seen time.
func usageMember(participantID string, unixMs int64) string {
	return fmt.Sprintf("%s@%d", participantID, unixMs)
}

func parseUsageMember(member string) (participantID string, unixMs string) {
	idx := strings.LastIndex(member, "@")
	if idx < 0 {
		return member, ""
	}
	return member[:idx], member[idx+1:]
}

// BehaviorDetector compares response latency against the participant's
// rolling baseline and folds the new observation in.
type BehaviorDetector struct {
	cfg   Config
	store ports.EvidenceStore
	clock ports.Clock
}

func (d *BehaviorDetector) Name() string { return "BehaviorDetector" }

func (d *BehaviorDetector) Analyze(ctx context.Context, in *Input, acc *Accumulator) {
	key := ports.BehaviorKey(in.ParticipantID)
	current := float64(in.LatencyMs)

	baseline, ok := d.load(ctx, key)
	if ok && baseline.MeanLatencyMs > 0 &&
		math.Abs(current-baseline.MeanLatencyMs) > 0.5*baseline.MeanLatencyMs {
		acc.Flags.UnusualPattern = true
		acc.Details["behavior"] = fmt.Sprintf("latency %dms deviates from baseline %.0fms",
			in.LatencyMs, baseline.MeanLatencyMs)
	}

	// The baseline only learns from structurally sound responses.
	if in.Expired {
		return
	}

	alpha := d.cfg.BehavioralAlpha
	if !ok {
		baseline = domain.BehavioralBaseline{ParticipantID: in.ParticipantID, MeanLatencyMs: current}
	} else {
		diff := current - baseline.MeanLatencyMs
		baseline.MeanLatencyMs += alpha * diff
		baseline.VarianceMs = (1 - alpha) * (baseline.VarianceMs + alpha*diff*diff)
	}
	baseline.Samples++
	baseline.UpdatedAt = d.clock.Now().UnixMilli()

	raw, err := json.Marshal(baseline)
	if err != nil {
		return
	}
	if err := d.store.Put(ctx, key, raw, d.cfg.AnalysisTTL); err != nil {
		slog.Warn("behavioral baseline write failed", "participantId", in.ParticipantID, "error", err)
	}
}

func (d *BehaviorDetector) load(ctx context.Context, key string) (domain.BehavioralBaseline, bool) {
	raw, err := d.store.Get(ctx, key)
	if err != nil {
		return domain.BehavioralBaseline{}, false
	}
	var b domain.BehavioralBaseline
	if err := json.Unmarshal(raw, &b); err != nil || b.Samples == 0 {
		return domain.BehavioralBaseline{}, false
	}
	return b, true
}
