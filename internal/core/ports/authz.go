package ports

import "context"

// OverrideAuthorizer decides whether an actor may override an attendance
// record. The predicate is supplied by the host at engine construction; the
// engine never authenticates users itself.
type OverrideAuthorizer func(ctx context.Context, actorID, recordID string) bool
