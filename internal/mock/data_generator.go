package mock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
	"github.com/lcalzada-xor/presenced/internal/core/ports"
	"github.com/lcalzada-xor/presenced/internal/core/services/engine"
	"github.com/lcalzada-xor/presenced/internal/core/services/mac"
)

// Generator feeds the engine synthetic sessions and signed responses so the
// full pipeline, dashboard feed included, can be exercised without clients.
type Generator struct {
	engine *engine.Engine
	clock  ports.Clock
	rng    *rand.Rand

	participants int
	interval     time.Duration
}

func NewGenerator(eng *engine.Engine, clock ports.Clock) *Generator {
	return &Generator{
		engine:       eng,
		clock:        clock,
		rng:          rand.New(rand.NewSource(clock.Now().UnixNano())),
		participants: 8,
		interval:     20 * time.Second,
	}
}

// Start launches the generation loop. One synthetic session per tick.
func (g *Generator) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()

		g.runSession(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.runSession(ctx)
			}
		}
	}()
}

func (g *Generator) runSession(ctx context.Context) {
	sessionID := fmt.Sprintf("mock-session-%d", g.clock.Now().Unix())

	ch, err := g.engine.IssueChallenge(ctx, sessionID, "mock-organiser", map[string]string{"mock": "true"})
	if err != nil {
		slog.Warn("mock challenge issue failed", "error", err)
		return
	}

	for i := 0; i < g.participants; i++ {
		participantID := fmt.Sprintf("mock-student-%02d", i)
		deviceID := fmt.Sprintf("mock-device-%02d", i)

		blob, ev := g.buildResponse(ch, participantID, deviceID)
		rec, err := g.engine.VerifyResponse(ctx, blob, ev)
		if err != nil {
			slog.Warn("mock verification failed", "participant", participantID, "error", err)
			continue
		}
		slog.Debug("mock response verified",
			"participant", participantID, "outcome", rec.Outcome, "risk", rec.RiskScore)
	}
}

// buildResponse mints a signed response blob plus matching evidence. Roughly
// one in five participants is made suspicious.
func (g *Generator) buildResponse(ch domain.Challenge, participantID, deviceID string) (string, domain.Evidence) {
	suspicious := g.rng.Intn(5) == 0
	now := g.clock.Now().UnixMilli()

	payload := domain.ResponsePayload{
		ChallengeCode: ch.ChallengeCode,
		Nonce:         ch.Nonce,
		ParticipantID: participantID,
		DeviceID:      deviceID,
		SessionID:     ch.SessionID,
		RespondedAt:   now,
	}

	raw, _ := json.Marshal(payload)
	canonical, err := mac.Canonicalize(raw)
	if err != nil {
		slog.Warn("mock payload canonicalization failed", "error", err)
		return "", domain.Evidence{}
	}

	wire := struct {
		Payload   json.RawMessage `json:"payload"`
		Signature string          `json:"signature"`
	}{
		Payload:   canonical,
		Signature: g.engine.Sign(canonical),
	}
	blob, _ := json.Marshal(wire)

	ev := domain.Evidence{
		RSSI: -40 - g.rng.Intn(20),
		Location: &domain.Location{
			Lat:       40.4168 + g.rng.Float64()*0.0005,
			Lon:       -3.7038 + g.rng.Float64()*0.0005,
			Accuracy:  5 + g.rng.Float64()*15,
			Timestamp: now,
		},
		WifiNetworks: []string{"CampusNet", "eduroam", "Library-Guest"},
	}
	if suspicious {
		ev.RSSI = -80 - g.rng.Intn(10)
		ev.WifiNetworks = append(ev.WifiNetworks, "MOCK_WIFI")
		ev.DeviceAttestation = []string{"emulator"}
	}

	return base64.RawURLEncoding.EncodeToString(blob), ev
}
