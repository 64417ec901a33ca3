package issuer

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
	"github.com/lcalzada-xor/presenced/internal/core/ports"
)

// Defaults for challenge material sizing.
const (
	DefaultCodeSize  = 32
	DefaultNonceSize = 16
)

// challengeGrace keeps a challenge resolvable past its expiry so late
// responses still reach the analyzer for observability.
const challengeGrace = 5 * time.Minute

// Issuer mints time-bounded challenges and persists them for the verifier.
type Issuer struct {
	store     ports.EvidenceStore
	clock     ports.Clock
	validity  time.Duration
	codeSize  int
	nonceSize int
}

// New creates an issuer. Code and nonce sizes below the defaults are a
// configuration error: the challenge code is the anti-replay secret.
func New(store ports.EvidenceStore, clock ports.Clock, validity time.Duration, codeSize, nonceSize int) (*Issuer, error) {
	if validity <= 0 {
		return nil, fmt.Errorf("%w: challenge validity must be positive", domain.ErrConfiguration)
	}
	if codeSize < DefaultCodeSize || nonceSize < DefaultNonceSize {
		return nil, fmt.Errorf("%w: challenge code must be >=%d bytes and nonce >=%d bytes",
			domain.ErrConfiguration, DefaultCodeSize, DefaultNonceSize)
	}
	return &Issuer{
		store:     store,
		clock:     clock,
		validity:  validity,
		codeSize:  codeSize,
		nonceSize: nonceSize,
	}, nil
}

// Issue creates a challenge for the session and persists it under
// challenge:{sessionId}. Reissuing for the same session overwrites the prior
// challenge.
func (i *Issuer) Issue(ctx context.Context, sessionID, organiserID string, metadata map[string]string) (domain.Challenge, error) {
	if sessionID == "" {
		return domain.Challenge{}, errors.New("issuer: sessionId required")
	}

	code, err := randomToken(i.codeSize)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("issuer: sampling challenge code: %w", err)
	}
	nonce, err := randomToken(i.nonceSize)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("issuer: sampling nonce: %w", err)
	}

	now := i.clock.Now()
	ch := domain.Challenge{
		SessionID:     sessionID,
		ChallengeCode: code,
		Nonce:         nonce,
		IssuedAt:      now.UnixMilli(),
		ExpiresAt:     now.Add(i.validity).UnixMilli(),
		OrganiserID:   organiserID,
		Metadata:      metadata,
	}

	key := ports.ChallengeKey(sessionID)
	if _, err := i.store.Get(ctx, key); err == nil {
		slog.Warn("reissuing challenge, prior challenge invalidated", "sessionId", sessionID, "organiserId", organiserID)
	}

	raw, err := json.Marshal(ch)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("issuer: encoding challenge: %w", err)
	}
	if err := i.store.Put(ctx, key, raw, i.validity+challengeGrace); err != nil {
		return domain.Challenge{}, fmt.Errorf("issuer: persisting challenge: %w", err)
	}

	slog.Info("challenge issued", "sessionId", sessionID, "organiserId", organiserID,
		"expiresAt", ch.ExpiresAt)
	return ch, nil
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
