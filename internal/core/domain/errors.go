package domain

import "errors"

// Engine error kinds. Per-response failures are never surfaced as errors;
// they become rejected or flagged records. These sentinels cover the
// remaining cases.
var (
	// ErrConfiguration is raised only at init (bad secret, bad thresholds).
	ErrConfiguration = errors.New("configuration error")

	// ErrOverrideUnauthorised is returned from ApplyOverride when the
	// external authorisation predicate denies the actor.
	ErrOverrideUnauthorised = errors.New("override unauthorised")

	// ErrOverrideNotAllowed is returned when the target record is not in a
	// state that admits an override.
	ErrOverrideNotAllowed = errors.New("override not allowed for record state")

	// ErrRecordNotFound is returned when a record id resolves to nothing.
	ErrRecordNotFound = errors.New("attendance record not found")
)
