package ports

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a key has no live value.
	ErrNotFound = errors.New("evidence store: key not found")

	// ErrUnavailable wraps transport or backend failures. Callers degrade
	// by treating missing reads as "no history"; the challenge lookup is
	// the one fail-closed exception.
	ErrUnavailable = errors.New("evidence store: unavailable")
)

// EvidenceStore is short-TTL keyed storage for per-identity history and
// per-response analyses. An in-memory implementation backs tests and mock
// mode; a networked cache is expected in production. All calls honour the
// context deadline.
type EvidenceStore interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// PutIfAbsent stores the value only when the key has no live entry and
	// reports whether the write won. It is the commit primitive for
	// attendance records.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error

	// AppendSetMember adds a member to the set at key and refreshes the
	// key's TTL. Append-to-set semantics let two concurrent first-uses of a
	// device both land.
	AppendSetMember(ctx context.Context, key, member string, ttl time.Duration) error
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// Key scheme. Stable and part of the contract: reports read these keys.

func ChallengeKey(sessionID string) string { return "challenge:" + sessionID }

func AnalysisKey(participantID string, unixMs int64) string {
	return fmt.Sprintf("analysis:%s:%d", participantID, unixMs)
}

func LastLocationKey(participantID string) string { return "location:" + participantID + ":last" }

func DeviceUsageKey(deviceID string) string { return "device:" + deviceID + ":usage" }

func BehaviorKey(participantID string) string { return "behavior:" + participantID + ":pattern" }

func AttendanceKey(sessionID, participantID string) string {
	return "attendance:" + sessionID + ":" + participantID
}

// SessionIndexKey holds the set of analysis keys written for a session, so
// reporting never scans the whole keyspace.
func SessionIndexKey(sessionID string) string { return "analyses:by-session:" + sessionID }
