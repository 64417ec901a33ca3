package ports

import (
	"context"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
)

// RecordStore is the durable home of attendance records. The engine hands
// every composed record to it; overrides update in place.
type RecordStore interface {
	Save(ctx context.Context, rec domain.AttendanceRecord) error
	Get(ctx context.Context, recordID string) (domain.AttendanceRecord, error)
	Update(ctx context.Context, rec domain.AttendanceRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]domain.AttendanceRecord, error)
}
