package ports

// Signer authenticates canonical payload bytes with a process-scoped secret.
type Signer interface {
	// Sign returns the hex-encoded MAC digest of the payload.
	Sign(payload []byte) string

	// Verify recomputes the MAC and compares in constant time.
	Verify(payload []byte, signature string) bool
}
