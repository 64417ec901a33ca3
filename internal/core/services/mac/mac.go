package mac

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
)

// MinSecretLen is the minimum accepted process secret length in bytes.
const MinSecretLen = 16

// hkdfInfo binds the derived key to this use so the same process secret can
// safely feed other derivations later.
const hkdfInfo = "presenced/challenge-mac/v1"

// KeyedMAC authenticates canonical payload bytes with HMAC-SHA256. The key
// is derived once from the process secret; rotating the secret invalidates
// all in-flight challenges, equivalent to a restart.
type KeyedMAC struct {
	key []byte
}

// New derives the MAC key from the process secret. The secret itself is
// never retained, logged or echoed.
func New(secret []byte) (*KeyedMAC, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes", domain.ErrConfiguration, MinSecretLen)
	}

	key := make([]byte, sha256.Size)
	kdf := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("%w: key derivation failed", domain.ErrConfiguration)
	}

	return &KeyedMAC{key: key}, nil
}

// Sign returns the hex-encoded HMAC-SHA256 digest of the payload.
func (m *KeyedMAC) Sign(payload []byte) string {
	h := hmac.New(sha256.New, m.key)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the digest and compares in constant time.
func (m *KeyedMAC) Verify(payload []byte, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	h := hmac.New(sha256.New, m.key)
	h.Write(payload)
	return hmac.Equal(h.Sum(nil), want)
}

// Zeroize clears the derived key. Call on teardown.
func (m *KeyedMAC) Zeroize() {
	for i := range m.key {
		m.key[i] = 0
	}
}
