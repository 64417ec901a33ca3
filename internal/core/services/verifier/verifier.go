package verifier

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
	"github.com/lcalzada-xor/presenced/internal/core/ports"
	"github.com/lcalzada-xor/presenced/internal/core/services/mac"
)

// Rejection reasons carried on the structural verdict. Diagnostic only; the
// caller sees a rejected record either way.
const (
	ReasonMalformed        = "malformed response"
	ReasonBadSignature     = "signature mismatch"
	ReasonUnknownChallenge = "unknown or unavailable challenge"
	ReasonCodeMismatch     = "challenge code mismatch"
	ReasonNonceMismatch    = "nonce mismatch"
	ReasonExpired          = "challenge window elapsed"
)

// wireResponse is the outer wrapper exactly as clients send it. The payload
// stays raw so the MAC is computed over the client's own field set.
type wireResponse struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// Result carries the structural verdict plus the identity fields extracted
// from the now-authenticated payload. Identity fields are only trusted when
// the verdict is ok or expired.
type Result struct {
	Verdict   domain.StructuralVerdict
	Payload   domain.ResponsePayload
	Challenge domain.Challenge
}

// Verifier checks cryptography and timing of a signed response. It never
// inspects radio, location or wifi evidence.
type Verifier struct {
	signer ports.Signer
	store  ports.EvidenceStore
}

func New(signer ports.Signer, store ports.EvidenceStore) *Verifier {
	return &Verifier{signer: signer, store: store}
}

// Verify runs the structural checks in order, short-circuiting on the first
// fatal failure. An expired-but-authentic response is not fatal: it is
// forwarded with status expired so the analyzer still sees it.
func (v *Verifier) Verify(ctx context.Context, blob string, now time.Time) Result {
	raw, err := decodeBase64URL(blob)
	if err != nil {
		return fail(ReasonMalformed)
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil || len(wire.Payload) == 0 {
		return fail(ReasonMalformed)
	}

	canonical, err := mac.Canonicalize(wire.Payload)
	if err != nil {
		return fail(ReasonMalformed)
	}
	if !v.signer.Verify(canonical, wire.Signature) {
		return fail(ReasonBadSignature)
	}

	var payload domain.ResponsePayload
	if err := json.Unmarshal(wire.Payload, &payload); err != nil {
		return fail(ReasonMalformed)
	}

	// Fail closed: a challenge we cannot read is a challenge that does not
	// exist.
	ch, err := v.loadChallenge(ctx, payload.SessionID)
	if err != nil {
		return failWith(payload, ReasonUnknownChallenge)
	}

	if subtle.ConstantTimeCompare([]byte(payload.ChallengeCode), []byte(ch.ChallengeCode)) != 1 {
		return failWith(payload, ReasonCodeMismatch)
	}
	if subtle.ConstantTimeCompare([]byte(payload.Nonce), []byte(ch.Nonce)) != 1 {
		return failWith(payload, ReasonNonceMismatch)
	}

	latency := payload.RespondedAt - ch.IssuedAt
	verdict := domain.StructuralVerdict{Status: domain.VerdictOK, ResponseLatencyMs: latency}
	if payload.RespondedAt > ch.ExpiresAt {
		verdict.Status = domain.VerdictExpired
		verdict.Reason = ReasonExpired
	}

	return Result{Verdict: verdict, Payload: payload, Challenge: ch}
}

func (v *Verifier) loadChallenge(ctx context.Context, sessionID string) (domain.Challenge, error) {
	if sessionID == "" {
		return domain.Challenge{}, errors.New("verifier: empty sessionId")
	}
	raw, err := v.store.Get(ctx, ports.ChallengeKey(sessionID))
	if err != nil {
		return domain.Challenge{}, err
	}
	var ch domain.Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return domain.Challenge{}, fmt.Errorf("verifier: corrupt challenge record: %w", err)
	}
	return ch, nil
}

// decodeBase64URL accepts both padded and unpadded URL-safe encodings;
// clients differ on padding.
func decodeBase64URL(blob string) ([]byte, error) {
	if raw, err := base64.URLEncoding.DecodeString(blob); err == nil {
		return raw, nil
	}
	return base64.RawURLEncoding.DecodeString(blob)
}

func fail(reason string) Result {
	return Result{Verdict: domain.StructuralVerdict{Status: domain.VerdictFail, Reason: reason}}
}

func failWith(payload domain.ResponsePayload, reason string) Result {
	r := fail(reason)
	r.Payload = payload
	return r
}
